package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/IshaanNene/pubharvest/internal/engine"
	"github.com/IshaanNene/pubharvest/internal/observability"
	"github.com/IshaanNene/pubharvest/internal/store"
	"github.com/IshaanNene/pubharvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeRuns is a RunController that records calls.
type fakeRuns struct {
	running bool
	started []engine.StartOptions
}

func (f *fakeRuns) Start(opts engine.StartOptions) error {
	if _, err := types.ParseSource(opts.Source); opts.Source != "" && err != nil {
		return err
	}
	if f.running {
		return types.ErrRunInProgress
	}
	f.running = true
	f.started = append(f.started, opts)
	return nil
}

func (f *fakeRuns) Stop() error {
	if !f.running {
		return types.ErrNoRunInProgress
	}
	f.running = false
	return nil
}

func (f *fakeRuns) Current() engine.Status {
	return engine.Status{Running: f.running, State: "running"}
}

func newTestServer(runs RunController) (*Server, *store.MemoryRepository) {
	repo := store.NewMemoryRepository()
	return NewServer(0, repo, runs, testLogger), repo
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// --- Health Tests ---

func TestHealth(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestDashboard(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s.Handler(), http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/runs/current") {
		t.Errorf("unexpected dashboard %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html, got %q", ct)
	}
}

// --- Roster Tests ---

func TestAddAndListRoster(t *testing.T) {
	s, _ := newTestServer(nil)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/roster",
		`{"name":"Siti Rahma","profile_url":"https://sinta.example/authors/profile/7","source":"sinta-scopus"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var entry types.RosterEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Status != types.StatusPending || entry.Source != types.SourceSintaScopus {
		t.Errorf("unexpected entry %+v", entry)
	}

	do(t, h, http.MethodPost, "/api/roster",
		`{"name":"Budi","profile_url":"https://scholar.example/citations?user=B","source":"scholar"}`)

	rec = do(t, h, http.MethodGet, "/api/roster?source=sinta-scopus", "")
	var list struct {
		Data  []types.RosterEntry `json:"data"`
		Count int                 `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || list.Data[0].Name != "Siti Rahma" {
		t.Errorf("expected the sinta entry only, got %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/api/roster", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 2 {
		t.Errorf("expected both entries, got %d", list.Count)
	}
}

func TestAddRosterValidation(t *testing.T) {
	s, _ := newTestServer(nil)
	h := s.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"name":`},
		{"missing url", `{"name":"A","source":"scholar"}`},
		{"unknown source", `{"name":"A","profile_url":"https://x.example","source":"orcid"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/roster", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}

	rec := do(t, h, http.MethodGet, "/api/roster?source=orcid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown source filter, got %d", rec.Code)
	}
}

// --- Run Tests ---

func TestStartAndStopRun(t *testing.T) {
	runs := &fakeRuns{}
	s, _ := newTestServer(runs)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/runs", `{"source":"scholar","target_count":5}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", rec.Code, rec.Body.String())
	}
	if len(runs.started) != 1 || runs.started[0].TargetCount != 5 || runs.started[0].Trigger != "api" {
		t.Errorf("unexpected start options %+v", runs.started)
	}

	rec = do(t, h, http.MethodPost, "/api/runs", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 while running, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/runs/current", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"running":true`) {
		t.Errorf("unexpected current run %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/runs/stop", "")
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/runs/stop", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 when idle, got %d", rec.Code)
	}
}

func TestStartRunUnknownSource(t *testing.T) {
	s, _ := newTestServer(&fakeRuns{})
	rec := do(t, s.Handler(), http.MethodPost, "/api/runs", `{"source":"orcid"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRunControlUnavailable(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s.Handler(), http.MethodPost, "/api/runs", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestListAndGetRuns(t *testing.T) {
	s, repo := newTestServer(nil)
	h := s.Handler()

	run, err := store.NewRunService(repo).Start(context.Background(), types.SourceScholar, "cli", nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := do(t, h, http.MethodGet, "/api/runs?limit=5", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), run.RunKey) {
		t.Errorf("expected run in list, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/runs/"+run.RunKey, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"trigger_source":"cli"`) {
		t.Errorf("unexpected run %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/runs/does-not-exist", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// --- Metrics Tests ---

func TestMetricsRoute(t *testing.T) {
	m := observability.NewMetrics(testLogger)
	m.PublicationsCreated.Add(7)
	s := NewServer(0, store.NewMemoryRepository(), nil, testLogger, WithMetrics("/metrics", m))

	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "pubharvest_publications_created_total 7") {
		t.Errorf("unexpected metrics %d %s", rec.Code, rec.Body.String())
	}
}
