package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/martstalk/internal/crawl"
	"github.com/IshaanNene/martstalk/internal/media"
	"github.com/IshaanNene/martstalk/internal/storage"
	"github.com/IshaanNene/martstalk/internal/types"
)

// DedupStage drops records whose ID has already passed through. The
// seen set lives in crawl.State so it can be preloaded from a previous
// run's store.
type DedupStage struct {
	state  *crawl.State
	logger *slog.Logger
}

// NewDedupStage creates a dedup stage backed by the shared crawl state.
func NewDedupStage(state *crawl.State, logger *slog.Logger) *DedupStage {
	return &DedupStage{
		state:  state,
		logger: logger.With("stage", "dedup"),
	}
}

func (s *DedupStage) Name() string { return "dedup" }

func (s *DedupStage) Process(_ context.Context, rec *types.ProductRecord) (*types.ProductRecord, error) {
	id := rec.ID()
	if id == "" {
		// No ASIN and no URL. Cannot dedup, let it through.
		s.logger.Warn("record has no identifier, skipping dedup")
		return rec, nil
	}
	if !s.state.MarkSeen(id) {
		s.logger.Debug("duplicate record dropped", "id", id)
		return nil, nil
	}
	return rec, nil
}

// ImageStage downloads a record's images concurrently and fills in
// DownloadedImage with the first stored file, in the original URL
// order. Download failures degrade the record, they never drop it.
type ImageStage struct {
	store  media.Store
	logger *slog.Logger
}

// NewImageStage creates an image stage over the given store.
func NewImageStage(store media.Store, logger *slog.Logger) *ImageStage {
	return &ImageStage{
		store:  store,
		logger: logger.With("stage", "images"),
	}
}

func (s *ImageStage) Name() string { return "images" }

func (s *ImageStage) Process(ctx context.Context, rec *types.ProductRecord) (*types.ProductRecord, error) {
	if len(rec.ImageURLs) == 0 {
		return rec, nil
	}
	if rec.Identity == nil {
		s.logger.Warn("record carries no identity, downloading images directly", "id", rec.ID())
	}

	names := make([]string, len(rec.ImageURLs))
	g := new(errgroup.Group)
	for i, rawURL := range rec.ImageURLs {
		i, rawURL := i, rawURL
		g.Go(func() error {
			name, err := s.store.Save(ctx, rawURL, rec.Identity)
			if err != nil {
				s.logger.Warn("image download failed", "id", rec.ID(), "url", rawURL, "error", err)
				return nil
			}
			names[i] = name
			return nil
		})
	}
	g.Wait()

	for _, name := range names {
		if name != "" {
			rec.DownloadedImage = name
			break
		}
	}
	if rec.DownloadedImage == "" {
		s.logger.Warn("no image stored for record", "id", rec.ID())
	}
	return rec, nil
}

// ExportStage normalizes a record and appends it to the configured
// storage backend. It is the terminal stage.
type ExportStage struct {
	store  storage.Storage
	logger *slog.Logger
}

// NewExportStage creates an export stage over the given storage.
func NewExportStage(store storage.Storage, logger *slog.Logger) *ExportStage {
	return &ExportStage{
		store:  store,
		logger: logger.With("stage", "export"),
	}
}

func (s *ExportStage) Name() string { return "export" }

func (s *ExportStage) Process(_ context.Context, rec *types.ProductRecord) (*types.ProductRecord, error) {
	// Collapse runs of whitespace left over from the page markup.
	rec.Title = strings.Join(strings.Fields(rec.Title), " ")
	if rec.MainImageURL == "" && len(rec.ImageURLs) > 0 {
		rec.MainImageURL = rec.ImageURLs[0]
	}

	if err := s.store.Append(rec); err != nil {
		return nil, err
	}
	s.logger.Debug("record exported", "id", rec.ID())
	return rec, nil
}
