package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational metrics for harvest runs.
type Metrics struct {
	// Run metrics
	RunsStarted atomic.Int64
	RunsFailed  atomic.Int64
	ActiveRuns  atomic.Int32

	// Author metrics
	AuthorsProcessed atomic.Int64
	AuthorsFailed    atomic.Int64

	// Publication metrics
	RecordsExtracted    atomic.Int64
	RecordsDropped      atomic.Int64
	PublicationsCreated atomic.Int64
	PublicationsUpdated atomic.Int64
	PublicationsFailed  atomic.Int64
	PagesLoaded         atomic.Int64
	DetailPagesLoaded   atomic.Int64

	// Session metrics
	Challenges     atomic.Int64
	Rotations      atomic.Int64
	RotationResets atomic.Int64
	DriverRestarts atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		kind  string
		value int64
	}{
		{"pubharvest_runs_started_total", "Total runs started", "counter", m.RunsStarted.Load()},
		{"pubharvest_runs_failed_total", "Total runs that ended in failure", "counter", m.RunsFailed.Load()},
		{"pubharvest_active_runs", "Runs currently in progress", "gauge", int64(m.ActiveRuns.Load())},
		{"pubharvest_authors_processed_total", "Total authors completed", "counter", m.AuthorsProcessed.Load()},
		{"pubharvest_authors_failed_total", "Total authors marked error", "counter", m.AuthorsFailed.Load()},
		{"pubharvest_records_extracted_total", "Total raw records extracted", "counter", m.RecordsExtracted.Load()},
		{"pubharvest_records_dropped_total", "Total records dropped by the pipeline", "counter", m.RecordsDropped.Load()},
		{"pubharvest_publications_created_total", "Total publications created", "counter", m.PublicationsCreated.Load()},
		{"pubharvest_publications_updated_total", "Total publications matched to an existing row", "counter", m.PublicationsUpdated.Load()},
		{"pubharvest_publications_failed_total", "Total publications skipped on a persistence error", "counter", m.PublicationsFailed.Load()},
		{"pubharvest_pages_loaded_total", "Total listing pages loaded", "counter", m.PagesLoaded.Load()},
		{"pubharvest_detail_pages_loaded_total", "Total detail pages loaded", "counter", m.DetailPagesLoaded.Load()},
		{"pubharvest_challenges_total", "Total bot challenges seen", "counter", m.Challenges.Load()},
		{"pubharvest_credential_rotations_total", "Total credentials marked failed", "counter", m.Rotations.Load()},
		{"pubharvest_rotation_resets_total", "Total credential cycle resets", "counter", m.RotationResets.Load()},
		{"pubharvest_driver_restarts_total", "Total driver restarts", "counter", m.DriverRestarts.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the standalone metrics HTTP server.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"runs_started":         m.RunsStarted.Load(),
		"runs_failed":          m.RunsFailed.Load(),
		"active_runs":          int64(m.ActiveRuns.Load()),
		"authors_processed":    m.AuthorsProcessed.Load(),
		"authors_failed":       m.AuthorsFailed.Load(),
		"records_extracted":    m.RecordsExtracted.Load(),
		"records_dropped":      m.RecordsDropped.Load(),
		"publications_created": m.PublicationsCreated.Load(),
		"publications_updated": m.PublicationsUpdated.Load(),
		"publications_failed":  m.PublicationsFailed.Load(),
		"pages_loaded":         m.PagesLoaded.Load(),
		"detail_pages_loaded":  m.DetailPagesLoaded.Load(),
		"challenges":           m.Challenges.Load(),
		"credential_rotations": m.Rotations.Load(),
		"rotation_resets":      m.RotationResets.Load(),
		"driver_restarts":      m.DriverRestarts.Load(),
	}
}
