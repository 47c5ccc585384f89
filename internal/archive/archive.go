// Package archive keeps the raw records extracted during a run so they can be re-normalized
// later without scraping again. Archives are write-only from the pipeline's point of view.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// Entry is one archived raw record with the context it was extracted in.
type Entry struct {
	RunID      string            `json:"run_id"`
	Source     types.Source      `json:"source"`
	Author     string            `json:"author"`
	ProfileURL string            `json:"profile_url"`
	Page       int               `json:"page"`
	Category   types.Category    `json:"category,omitempty"`
	Rule       string            `json:"rule,omitempty"`
	Fields     map[string]string `json:"fields"`
	// CitationsByYear is keyed by the year as a string so it encodes as a document.
	CitationsByYear map[string]int `json:"citations_by_year,omitempty"`
	ArchivedAt      time.Time      `json:"archived_at"`
}

// NewEntry flattens rec into an Entry. Only present fields are kept.
func NewEntry(runID string, entry types.RosterEntry, page int, rec types.RawRecord, cat types.Category, rule string, at time.Time) Entry {
	fields := make(map[string]string)
	for _, name := range rec.Names() {
		if f := rec.Get(name); f.Present {
			fields[name] = f.Value
		}
	}
	var byYear map[string]int
	if len(rec.CitationsByYear) > 0 {
		byYear = make(map[string]int, len(rec.CitationsByYear))
		for y, n := range rec.CitationsByYear {
			byYear[strconv.Itoa(y)] = n
		}
	}
	return Entry{
		RunID:           runID,
		Source:          rec.Source,
		Author:          entry.Name,
		ProfileURL:      entry.ProfileURL,
		Page:            page,
		Category:        cat,
		Rule:            rule,
		Fields:          fields,
		CitationsByYear: byYear,
		ArchivedAt:      at,
	}
}

// Archive is the interface for all archive backends.
type Archive interface {
	// Store persists a batch of entries.
	Store(ctx context.Context, entries []Entry) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the backend identifier.
	Name() string
}

// New builds the archive selected by cfg.Types. No types yields a nil Archive.
func New(cfg config.ArchiveConfig, logger *slog.Logger) (Archive, error) {
	var backends []Archive
	closeAll := func() {
		for _, b := range backends {
			b.Close()
		}
	}

	for _, t := range cfg.Types {
		switch t {
		case "jsonl":
			s, err := NewJSONLArchive(cfg.OutputPath, logger)
			if err != nil {
				closeAll()
				return nil, err
			}
			backends = append(backends, s)
		case "mongodb":
			s, err := NewMongoArchive(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
			if err != nil {
				closeAll()
				return nil, err
			}
			backends = append(backends, s)
		default:
			closeAll()
			return nil, fmt.Errorf("unsupported archive type %q", t)
		}
	}

	switch len(backends) {
	case 0:
		return nil, nil
	case 1:
		return backends[0], nil
	}
	return NewMultiArchive(backends, logger), nil
}

// --- Multi-Archive Fan-Out ---

// MultiArchive writes entries to multiple backends.
type MultiArchive struct {
	backends []Archive
	logger   *slog.Logger
}

// NewMultiArchive creates an archive that fans out to multiple backends.
func NewMultiArchive(backends []Archive, logger *slog.Logger) *MultiArchive {
	return &MultiArchive{
		backends: backends,
		logger:   logger.With("component", "multi_archive"),
	}
}

func (s *MultiArchive) Name() string { return "multi" }

func (s *MultiArchive) Store(ctx context.Context, entries []Entry) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(ctx, entries); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiArchive) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
