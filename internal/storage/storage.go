package storage

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IshaanNene/martstalk/internal/config"
	"github.com/IshaanNene/martstalk/internal/types"
)

// Storage is the interface for all record sinks.
type Storage interface {
	// Append persists one record.
	Append(rec *types.ProductRecord) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// DefaultColumns is the CSV column order used when the configuration
// does not override it.
var DefaultColumns = []string{
	"keyword",
	"product_url",
	"asin",
	"title",
	"downloaded_image",
	"is_variation",
	"variation_type",
	"variation_value",
	"crawled_at",
	"main_image_url",
}

// fieldValue projects one record field to its CSV cell.
func fieldValue(rec *types.ProductRecord, column string) string {
	switch column {
	case "keyword":
		return rec.Keyword
	case "product_url":
		return rec.ProductURL
	case "asin":
		return rec.ASIN
	case "title":
		return rec.Title
	case "main_image_url":
		return rec.MainImageURL
	case "downloaded_image":
		return rec.DownloadedImage
	case "is_variation":
		return strconv.FormatBool(rec.IsVariation)
	case "variation_type":
		return rec.VariationType
	case "variation_value":
		return rec.VariationValue
	case "crawled_at":
		if rec.CrawledAt.IsZero() {
			return ""
		}
		return rec.CrawledAt.Format(time.RFC3339)
	default:
		return ""
	}
}

// New builds the configured storage backend. "multi" fans out to CSV
// and MongoDB together.
func New(cfg *config.StorageConfig, logger *slog.Logger) (Storage, error) {
	switch cfg.Type {
	case "csv":
		return NewCSVStorage(cfg, logger)
	case "mongo":
		return NewMongoStorage(cfg, logger)
	case "multi":
		csvStore, err := NewCSVStorage(cfg, logger)
		if err != nil {
			return nil, err
		}
		mongoStore, err := NewMongoStorage(cfg, logger)
		if err != nil {
			csvStore.Close()
			return nil, err
		}
		return NewMultiStorage([]Storage{csvStore, mongoStore}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
