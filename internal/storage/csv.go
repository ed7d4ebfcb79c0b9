package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/IshaanNene/martstalk/internal/config"
	"github.com/IshaanNene/martstalk/internal/types"
)

// CSVStorage appends records as CSV rows with a fixed column order.
// The byte encoding is configurable for downstream tools that choke on
// UTF-8 spreadsheets.
type CSVStorage struct {
	path    string
	file    *os.File
	writer  *csv.Writer
	columns []string
	mu      sync.Mutex
	count   int
	logger  *slog.Logger
}

// NewCSVStorage opens (or creates) the output file and writes the
// header row when configured to.
func NewCSVStorage(cfg *config.StorageConfig, logger *slog.Logger) (*CSVStorage, error) {
	dir := filepath.Dir(cfg.OutputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	var sink io.Writer = f
	if enc := encoderFor(cfg.Encoding); enc != nil {
		sink = transform.NewWriter(f, enc.NewEncoder())
	}

	columns := cfg.Columns
	if len(columns) == 0 {
		columns = DefaultColumns
	}

	s := &CSVStorage{
		path:    cfg.OutputPath,
		file:    f,
		writer:  csv.NewWriter(sink),
		columns: columns,
		logger:  logger.With("component", "csv_storage"),
	}

	if cfg.IncludeHeader {
		if err := s.writer.Write(columns); err != nil {
			f.Close()
			return nil, fmt.Errorf("write CSV header: %w", err)
		}
		s.writer.Flush()
	}
	return s, nil
}

func (s *CSVStorage) Name() string { return "csv" }

// Append writes one record row and flushes, so a crash mid-crawl loses
// at most the record in flight.
func (s *CSVStorage) Append(rec *types.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := make([]string, len(s.columns))
	for i, col := range s.columns {
		row[i] = fieldValue(rec, col)
	}
	if err := s.writer.Write(row); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	s.count++
	return nil
}

func (s *CSVStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("CSV written", "path", s.path, "records", s.count)
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	return s.file.Close()
}

// encoderFor maps an encoding name to its charmap. Returns nil for
// UTF-8 (no transformation needed).
func encoderFor(name string) encoding.Encoding {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil
	case "latin-1", "latin1", "iso-8859-1":
		return charmap.ISO8859_1
	case "windows-1252", "cp1252":
		return charmap.Windows1252
	default:
		return nil
	}
}
