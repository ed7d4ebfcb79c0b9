package extract

import (
	"regexp"
	"strings"
)

// The variant data embedded in product pages is JavaScript-flavored
// JSON: comments, trailing commas, and stray bytes around the object.
// CleanJSON normalizes such a fragment into something json.Unmarshal
// accepts. Pure string transformation, no parsing.

var (
	// Line comments only when preceded by whitespace or line start, so
	// the "//" inside https:// URLs survives.
	lineCommentRe   = regexp.MustCompile(`(?m)(^|\s)//[^\n]*`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	leadingJunkRe   = regexp.MustCompile(`^[^{\[]*`)
	trailingJunkRe  = regexp.MustCompile(`[^}\]]*$`)
)

// trailingCommaPasses bounds the fixpoint loop: nested structures can
// expose a new trailing comma once an inner one is removed.
const trailingCommaPasses = 5

// CleanJSON strips comments, blank lines, trailing commas, and any bytes
// before the first opening or after the last closing bracket. Idempotent:
// cleaning already-clean JSON returns it unchanged.
func CleanJSON(s string) string {
	s = lineCommentRe.ReplaceAllString(s, "$1")
	s = blockCommentRe.ReplaceAllString(s, "")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	s = strings.Join(lines, "\n")

	for i := 0; i < trailingCommaPasses; i++ {
		next := trailingCommaRe.ReplaceAllString(s, "$1")
		if next == s {
			break
		}
		s = next
	}

	s = leadingJunkRe.ReplaceAllString(s, "")
	s = trailingJunkRe.ReplaceAllString(s, "")
	s = trailingCommaRe.ReplaceAllString(s, "$1")

	return strings.TrimSpace(s)
}
