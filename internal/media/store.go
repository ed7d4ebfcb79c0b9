package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/IshaanNene/martstalk/internal/fetcher"
	"github.com/IshaanNene/martstalk/internal/identity"
)

// Store persists remote images locally and returns the stored filename.
type Store interface {
	Save(ctx context.Context, rawURL string, id *identity.Identity) (string, error)
}

// knownExtensions are the extensions kept from an image URL. Anything
// else falls back to .jpg, which is what the CDN serves in practice.
var knownExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ImageStore downloads images over plain HTTP (no browser) and writes
// them under a single directory, named by the hash of their URL so the
// same image is never fetched twice across runs.
type ImageStore struct {
	dir    string
	client *fetcher.Client
	logger *slog.Logger
}

// NewImageStore creates the target directory and returns a store.
func NewImageStore(dir string, client *fetcher.Client, logger *slog.Logger) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir %s: %w", dir, err)
	}
	return &ImageStore{
		dir:    dir,
		client: client,
		logger: logger.With("component", "image_store"),
	}, nil
}

// Save downloads rawURL through the given identity (nil = direct) and
// returns the stored filename. An already-present file is reused
// without a network round trip.
func (s *ImageStore) Save(ctx context.Context, rawURL string, id *identity.Identity) (string, error) {
	name := s.filename(rawURL)
	path := filepath.Join(s.dir, name)

	if _, err := os.Stat(path); err == nil {
		s.logger.Debug("image already stored", "file", name)
		return name, nil
	}

	data, err := s.client.Get(ctx, rawURL, id)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("download image %s: empty body", rawURL)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("store image %s: %w", name, err)
	}

	s.logger.Debug("image stored", "file", name, "bytes", len(data))
	return name, nil
}

// filename derives a stable name from the URL: sha256 of the full URL
// plus the URL's own extension when it is a known image type.
func (s *ImageStore) filename(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))

	ext := ".jpg"
	if u, err := url.Parse(rawURL); err == nil {
		if e := strings.ToLower(filepath.Ext(u.Path)); knownExtensions[e] {
			ext = e
		}
	}
	return hex.EncodeToString(sum[:]) + ext
}
