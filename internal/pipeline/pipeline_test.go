package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/IshaanNene/martstalk/internal/crawl"
	"github.com/IshaanNene/martstalk/internal/identity"
	"github.com/IshaanNene/martstalk/internal/types"
)

var pipelineLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type namedStage struct {
	name string
	fn   func(rec *types.ProductRecord) (*types.ProductRecord, error)
}

func (s *namedStage) Name() string { return s.name }

func (s *namedStage) Process(_ context.Context, rec *types.ProductRecord) (*types.ProductRecord, error) {
	return s.fn(rec)
}

func record(asin string) *types.ProductRecord {
	return &types.ProductRecord{
		Keyword:    "widgets",
		ProductURL: "https://www.amazon.com/dp/" + asin,
		ASIN:       asin,
		Title:      "Widget",
	}
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	p := New(pipelineLogger)
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		p.Use(&namedStage{name: name, fn: func(rec *types.ProductRecord) (*types.ProductRecord, error) {
			order = append(order, name)
			return rec, nil
		}})
	}

	out, err := p.Process(context.Background(), record("B0AAAAAAA1"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out == nil {
		t.Fatal("record dropped unexpectedly")
	}
	if got := strings.Join(order, ","); got != "first,second,third" {
		t.Errorf("stage order = %q", got)
	}
}

func TestPipelineStopsOnDrop(t *testing.T) {
	p := New(pipelineLogger)
	p.Use(&namedStage{name: "dropper", fn: func(rec *types.ProductRecord) (*types.ProductRecord, error) {
		return nil, nil
	}})
	reached := false
	p.Use(&namedStage{name: "after", fn: func(rec *types.ProductRecord) (*types.ProductRecord, error) {
		reached = true
		return rec, nil
	}})

	out, err := p.Process(context.Background(), record("B0AAAAAAA1"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != nil {
		t.Error("dropped record came out non-nil")
	}
	if reached {
		t.Error("stage after the drop still ran")
	}
}

func TestPipelineWrapsStageError(t *testing.T) {
	p := New(pipelineLogger)
	boom := errors.New("boom")
	p.Use(&namedStage{name: "failing", fn: func(rec *types.ProductRecord) (*types.ProductRecord, error) {
		return nil, boom
	}})

	_, err := p.Process(context.Background(), record("B0AAAAAAA1"))
	var pipeErr *types.PipelineError
	if !errors.As(err, &pipeErr) {
		t.Fatalf("error %v is not a PipelineError", err)
	}
	if pipeErr.Stage != "failing" {
		t.Errorf("stage = %q, want %q", pipeErr.Stage, "failing")
	}
	if !errors.Is(err, boom) {
		t.Error("wrapped error lost the cause")
	}
}

func TestDedupStageDropsSecondOccurrence(t *testing.T) {
	stage := NewDedupStage(crawl.NewState(0, 0), pipelineLogger)

	first, err := stage.Process(context.Background(), record("B0AAAAAAA1"))
	if err != nil || first == nil {
		t.Fatalf("first pass: rec=%v err=%v", first, err)
	}
	second, err := stage.Process(context.Background(), record("B0AAAAAAA1"))
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second != nil {
		t.Error("duplicate record not dropped")
	}

	other, err := stage.Process(context.Background(), record("B0BBBBBBB2"))
	if err != nil || other == nil {
		t.Fatalf("distinct record dropped: rec=%v err=%v", other, err)
	}
}

func TestDedupStageFallsBackToURL(t *testing.T) {
	stage := NewDedupStage(crawl.NewState(0, 0), pipelineLogger)

	rec := record("")
	rec.ProductURL = "https://www.amazon.com/some-page"
	if out, err := stage.Process(context.Background(), rec); err != nil || out == nil {
		t.Fatalf("first pass: rec=%v err=%v", out, err)
	}

	dup := record("")
	dup.ProductURL = "https://www.amazon.com/some-page"
	out, err := stage.Process(context.Background(), dup)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if out != nil {
		t.Error("record with same URL not dropped")
	}
}

func TestDedupStagePassesUnidentifiedRecords(t *testing.T) {
	stage := NewDedupStage(crawl.NewState(0, 0), pipelineLogger)

	for i := 0; i < 2; i++ {
		rec := &types.ProductRecord{Keyword: "widgets"}
		out, err := stage.Process(context.Background(), rec)
		if err != nil || out == nil {
			t.Fatalf("pass %d: unidentified record dropped: rec=%v err=%v", i, out, err)
		}
	}
}

type stubMediaStore struct {
	fail map[string]bool
}

func (s *stubMediaStore) Save(_ context.Context, rawURL string, _ *identity.Identity) (string, error) {
	if s.fail[rawURL] {
		return "", fmt.Errorf("download %s: unreachable", rawURL)
	}
	parts := strings.Split(rawURL, "/")
	return parts[len(parts)-1], nil
}

func TestImageStageKeepsOriginalOrder(t *testing.T) {
	stage := NewImageStage(&stubMediaStore{fail: map[string]bool{
		"https://img.example/a.jpg": true,
	}}, pipelineLogger)

	rec := record("B0AAAAAAA1")
	rec.ImageURLs = []string{
		"https://img.example/a.jpg",
		"https://img.example/b.jpg",
		"https://img.example/c.jpg",
	}

	out, err := stage.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.DownloadedImage != "b.jpg" {
		t.Errorf("DownloadedImage = %q, want first successful in original order %q",
			out.DownloadedImage, "b.jpg")
	}
}

func TestImageStageSurvivesTotalFailure(t *testing.T) {
	stage := NewImageStage(&stubMediaStore{fail: map[string]bool{
		"https://img.example/a.jpg": true,
	}}, pipelineLogger)

	rec := record("B0AAAAAAA1")
	rec.ImageURLs = []string{"https://img.example/a.jpg"}

	out, err := stage.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out == nil {
		t.Fatal("record dropped after image failure")
	}
	if out.DownloadedImage != "" {
		t.Errorf("DownloadedImage = %q, want empty", out.DownloadedImage)
	}
}

func TestImageStageNoImages(t *testing.T) {
	stage := NewImageStage(&stubMediaStore{}, pipelineLogger)

	out, err := stage.Process(context.Background(), record("B0AAAAAAA1"))
	if err != nil || out == nil {
		t.Fatalf("record without images mishandled: rec=%v err=%v", out, err)
	}
}

type captureStorage struct {
	recs []*types.ProductRecord
	fail bool
}

func (s *captureStorage) Append(rec *types.ProductRecord) error {
	if s.fail {
		return &types.StorageError{Backend: s.Name(), Err: errors.New("disk full")}
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *captureStorage) Close() error { return nil }
func (s *captureStorage) Name() string { return "capture" }

func TestExportStageNormalizesRecord(t *testing.T) {
	store := &captureStorage{}
	stage := NewExportStage(store, pipelineLogger)

	rec := record("B0AAAAAAA1")
	rec.Title = "  Acme \n  Buds\tPro  "
	rec.MainImageURL = ""
	rec.ImageURLs = []string{"https://img.example/a.jpg"}

	out, err := stage.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Title != "Acme Buds Pro" {
		t.Errorf("title = %q, want collapsed whitespace", out.Title)
	}
	if out.MainImageURL != "https://img.example/a.jpg" {
		t.Errorf("main image not backfilled: %q", out.MainImageURL)
	}
	if len(store.recs) != 1 {
		t.Fatalf("storage received %d records, want 1", len(store.recs))
	}
}

func TestExportStagePropagatesStorageError(t *testing.T) {
	stage := NewExportStage(&captureStorage{fail: true}, pipelineLogger)

	_, err := stage.Process(context.Background(), record("B0AAAAAAA1"))
	var storeErr *types.StorageError
	if !errors.As(err, &storeErr) {
		t.Fatalf("error %v is not a StorageError", err)
	}
}
