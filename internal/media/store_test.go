package media

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/IshaanNene/martstalk/internal/config"
	"github.com/IshaanNene/martstalk/internal/fetcher"
)

var mediaLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestStore(t *testing.T) (*ImageStore, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Fetcher.RetryAttempts = 1
	store, err := NewImageStore(dir, fetcher.NewClient(&cfg.Fetcher, mediaLogger), mediaLogger)
	if err != nil {
		t.Fatalf("NewImageStore: %v", err)
	}
	return store, dir
}

func TestSaveWritesImage(t *testing.T) {
	payload := []byte("\xff\xd8\xff fake jpeg bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	store, dir := newTestStore(t)
	name, err := store.Save(context.Background(), srv.URL+"/images/I/71abc.jpg", nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(name, ".jpg") {
		t.Errorf("filename %q does not keep the .jpg extension", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != string(payload) {
		t.Error("stored bytes differ from served bytes")
	}
}

func TestSaveReusesExistingFile(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	store, _ := newTestStore(t)
	url := srv.URL + "/images/I/71abc.png"

	first, err := store.Save(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("first Save: %v", err)
	}
	second, err := store.Save(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}

	if first != second {
		t.Errorf("filenames differ for same URL: %q vs %q", first, second)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1", got)
	}
}

func TestSaveFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	store, dir := newTestStore(t)
	if _, err := store.Save(context.Background(), srv.URL+"/gone.jpg", nil); err == nil {
		t.Fatal("Save succeeded against a 404")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files written after failed download, want 0", len(entries))
	}
}

func TestFilenameStability(t *testing.T) {
	store, _ := newTestStore(t)

	a := store.filename("https://m.media-amazon.com/images/I/71abc.jpg")
	b := store.filename("https://m.media-amazon.com/images/I/71abc.jpg")
	c := store.filename("https://m.media-amazon.com/images/I/81xyz.jpg")

	if a != b {
		t.Error("same URL produced different filenames")
	}
	if a == c {
		t.Error("different URLs produced the same filename")
	}
	if !strings.HasSuffix(store.filename("https://example.com/img"), ".jpg") {
		t.Error("extension-less URL did not fall back to .jpg")
	}
}
