package extract

import (
	"encoding/json"
	"testing"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "already clean",
			input: `{"a": 1}`,
			want:  `{"a": 1}`,
		},
		{
			name:  "trailing comma in object",
			input: `{"a": 1,}`,
			want:  `{"a": 1}`,
		},
		{
			name:  "trailing commas nested",
			input: `{"a": [1, 2,], "b": {"c": 3,},}`,
			want:  `{"a": [1, 2], "b": {"c": 3}}`,
		},
		{
			name:  "stacked trailing commas",
			input: `[1,,,]`,
			want:  `[1]`,
		},
		{
			name:  "line comment",
			input: "{\n\"a\": 1 // count\n}",
			want:  "{\n\"a\": 1\n}",
		},
		{
			name:  "block comment",
			input: `{"a": /* inline */ 1}`,
			want:  `{"a":  1}`,
		},
		{
			name:  "url survives comment stripping",
			input: `{"img": "https://cdn.example.com/x.jpg"}`,
			want:  `{"img": "https://cdn.example.com/x.jpg"}`,
		},
		{
			name:  "leading and trailing junk",
			input: `var dataToReturn = {"a": 1}; more js here`,
			want:  `{"a": 1}`,
		},
		{
			name:  "blank lines removed",
			input: "{\n\n  \"a\": 1\n\n}",
			want:  "{\n\"a\": 1\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanJSON(tt.input)
			if got != tt.want {
				t.Errorf("CleanJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanJSONIdempotent(t *testing.T) {
	inputs := []string{
		`{"a": [1, 2,], "b": {"c": 3,},}`,
		"junk {\n\"a\": 1, // note\n\"b\": [2,],\n} trailing",
		`{"img": "https://cdn.example.com/x.jpg",}`,
	}

	for _, in := range inputs {
		once := CleanJSON(in)
		twice := CleanJSON(once)
		if once != twice {
			t.Errorf("not idempotent:\n once: %q\ntwice: %q", once, twice)
		}
	}
}

func TestCleanJSONProducesValidJSON(t *testing.T) {
	input := `var dataToReturn = {
		// variation data
		"dimensionValuesDisplayData": {
			"B0EXAMPLE1": ["Black",],
			"B0EXAMPLE2": ["Blue"],
		},
	};`

	cleaned := CleanJSON(input)
	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		t.Fatalf("cleaned output not valid JSON: %v\n%s", err, cleaned)
	}
	if _, ok := parsed["dimensionValuesDisplayData"]; !ok {
		t.Error("expected dimensionValuesDisplayData key to survive cleanup")
	}
}

func BenchmarkCleanJSON(b *testing.B) {
	input := `var dataToReturn = {"a": [1, 2,], /* c */ "b": {"c": 3,},};`
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CleanJSON(input)
	}
}
