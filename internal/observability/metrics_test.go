package observability

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestServeHTTP(t *testing.T) {
	m := NewMetrics(testLogger)
	m.AuthorsProcessed.Add(3)
	m.ActiveRuns.Store(1)
	m.Challenges.Add(2)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"pubharvest_authors_processed_total 3",
		"# TYPE pubharvest_active_runs gauge",
		"pubharvest_active_runs 1",
		"# TYPE pubharvest_challenges_total counter",
		"pubharvest_challenges_total 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output", want)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics(testLogger)
	m.PublicationsCreated.Add(5)
	m.RotationResets.Add(1)

	snap := m.Snapshot()
	if snap["publications_created"] != 5 || snap["rotation_resets"] != 1 {
		t.Errorf("unexpected snapshot %v", snap)
	}
}
