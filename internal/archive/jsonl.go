package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// JSONLArchive appends entries as newline-delimited JSON.
type JSONLArchive struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLArchive opens outputPath for appending, so successive runs share one file.
func NewJSONLArchive(outputPath string, logger *slog.Logger) (*JSONLArchive, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open archive file: %w", err)
	}

	return &JSONLArchive{
		path:   outputPath,
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "jsonl_archive"),
	}, nil
}

func (s *JSONLArchive) Name() string { return "jsonl" }

func (s *JSONLArchive) Store(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if err := s.enc.Encode(e); err != nil {
			return fmt.Errorf("encode JSONL: %w", err)
		}
		s.count++
	}
	return nil
}

func (s *JSONLArchive) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("JSONL archive written", "path", s.path, "records", s.count)
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}
