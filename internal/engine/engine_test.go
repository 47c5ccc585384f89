package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/fetcher"
	"github.com/IshaanNene/pubharvest/internal/progress"
	"github.com/IshaanNene/pubharvest/internal/session"
	"github.com/IshaanNene/pubharvest/internal/source"
	"github.com/IshaanNene/pubharvest/internal/store"
	"github.com/IshaanNene/pubharvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var fixedNow = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

const captchaPage = `<html><body><div id="gs_captcha_f">unusual traffic from your computer network</div></body></html>`

func testConfig(src types.Source) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Run.Source = string(src)
	cfg.Run.AuthorBackoffMin = 0
	cfg.Run.AuthorBackoffMax = 0
	cfg.Fetcher.Type = "http"
	cfg.Fetcher.RequestTimeout = 5 * time.Second
	cfg.Delays.StepMin = 0
	cfg.Delays.StepMax = 0
	cfg.Delays.RateLimit = 0
	cfg.Navigator.WaitTimeout = time.Second
	cfg.Navigator.DetailTimeout = time.Second
	cfg.Navigator.GraphTimeout = time.Second
	return cfg
}

// fakeProvider hands out one HTTP session and counts recoveries.
type fakeProvider struct {
	sess       *session.Session
	acquireErr error
	recovers   atomic.Int32
	closed     atomic.Bool
}

func newFakeProvider(t *testing.T, cfg *config.Config) *fakeProvider {
	t.Helper()
	d, err := fetcher.NewHTTPDriver(cfg, testLogger, nil)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	page, err := d.NewPage(context.Background())
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	return &fakeProvider{sess: &session.Session{Driver: d, Page: page}}
}

func (p *fakeProvider) Acquire(ctx context.Context) (*session.Session, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	return p.sess, nil
}

func (p *fakeProvider) Recover(ctx context.Context) (*session.Session, error) {
	p.recovers.Add(1)
	return p.sess, nil
}

func (p *fakeProvider) Stats() session.ProviderStats {
	return session.ProviderStats{Challenges: int64(p.recovers.Load())}
}

func (p *fakeProvider) Close() error {
	p.closed.Store(true)
	return nil
}

// sintaSite serves SINTA-style profiles:
//
//	/authors/profile/1  two pages of two publications
//	/authors/profile/2  no listing container
//	/authors/profile/3  a challenge on the first visit, then one publication
//	/authors/profile/9  like 1, but the first request waits for release
func sintaSite(release <-chan struct{}, entered chan<- struct{}) *httptest.Server {
	var challenged atomic.Bool
	var blocked atomic.Bool

	listing := func(w http.ResponseWriter, page string, total int, titles ...string) {
		fmt.Fprint(w, `<html><body>
<div class="profile-name">Ani Lestari</div>
<div class="meta-profile"><a href="#">Universitas Contoh</a><a href="#">Teknik Informatika</a></div>
<table class="stat-table"><tbody>
<tr><td>Citation</td><td>120</td><td>340</td></tr>
<tr><td>H-Index</td><td>5</td><td>9</td></tr>
</tbody></table>`)
		for i, title := range titles {
			fmt.Fprintf(w, `<div class="ar-list-item">
<div class="ar-title"><a href="/doc/%s-%d">%s</a></div>
<div class="ar-meta"><a href="#">Author Order : %d of 3</a></div>
<div class="ar-pub">Journal of Testing</div>
<div class="ar-year">2021</div>
<div class="ar-cited">%d cited</div>
</div>`, page, i, title, i+1, 3+i)
		}
		fmt.Fprintf(w, `<div class="text-center"><small>Page %s of %d</small></div></body></html>`, page, total)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/authors/profile/1", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		listing(w, page, 2, "Paper "+page+" A", "Paper "+page+" B")
	})
	mux.HandleFunc("/authors/profile/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>profile not found</p></body></html>`)
	})
	mux.HandleFunc("/authors/profile/3", func(w http.ResponseWriter, r *http.Request) {
		if challenged.CompareAndSwap(false, true) {
			fmt.Fprint(w, captchaPage)
			return
		}
		listing(w, "1", 1, "Recovered Paper")
	})
	mux.HandleFunc("/authors/profile/9", func(w http.ResponseWriter, r *http.Request) {
		if release != nil && blocked.CompareAndSwap(false, true) {
			entered <- struct{}{}
			<-release
		}
		listing(w, "1", 1, "Slow Paper")
	})
	return httptest.NewServer(mux)
}

func newOrchestrator(t *testing.T, cfg *config.Config, baseURL string, provider SessionProvider, repo store.Repository, opts ...Option) *Orchestrator {
	t.Helper()
	src, err := types.ParseSource(cfg.Run.Source)
	if err != nil {
		t.Fatal(err)
	}
	adapter, err := source.New(src, baseURL)
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]Option{WithPacer(nil), WithClock(fixedNow)}, opts...)
	return New(cfg, adapter, provider, repo, testLogger, opts...)
}

func addAuthors(t *testing.T, repo store.Repository, src types.Source, authors map[string]string) {
	t.Helper()
	roster := store.NewRoster(repo)
	for name, url := range authors {
		if _, err := roster.Add(context.Background(), name, url, src); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
}

func rosterStatus(t *testing.T, repo store.Repository, src types.Source) map[string]types.RosterEntry {
	t.Helper()
	entries, err := store.NewRoster(repo).List(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]types.RosterEntry, len(entries))
	for _, e := range entries {
		out[e.Name] = e
	}
	return out
}

// --- Run Tests ---

func TestRunHarvestsRoster(t *testing.T) {
	srv := sintaSite(nil, nil)
	defer srv.Close()

	cfg := testConfig(types.SourceSintaScopus)
	repo := store.NewMemoryRepository()
	addAuthors(t, repo, types.SourceSintaScopus, map[string]string{
		"Ani Lestari":  srv.URL + "/authors/profile/1",
		"Budi Santoso": srv.URL + "/authors/profile/2",
	})

	rec := progress.NewRecorder(50)
	o := newOrchestrator(t, cfg, srv.URL, newFakeProvider(t, cfg), repo, WithReporter(rec))

	summary, err := o.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Status != StatusSuccess {
		t.Errorf("expected success, got %s", summary.Status)
	}
	c := summary.Counters
	if c.AuthorsProcessed != 1 || c.AuthorsWithErrors != 1 {
		t.Errorf("unexpected author counters %+v", c)
	}
	if c.PublicationsFetched != 4 || c.PublicationsCreated != 4 {
		t.Errorf("unexpected publication counters %+v", c)
	}

	status := rosterStatus(t, repo, types.SourceSintaScopus)
	if status["Ani Lestari"].Status != types.StatusCompleted {
		t.Errorf("expected Ani completed, got %s", status["Ani Lestari"].Status)
	}
	budi := status["Budi Santoso"]
	if budi.Status != types.StatusError || budi.ErrorMessage == "" {
		t.Errorf("expected Budi error with message, got %+v", budi)
	}

	counts := repo.Counts()
	if counts["publications"] != 4 || counts["author_publications"] != 4 || counts["authors"] != 1 {
		t.Errorf("unexpected row counts %v", counts)
	}
	if counts["departments"] != 1 {
		t.Errorf("expected department from profile header, got %d", counts["departments"])
	}

	runs, err := store.NewRunService(repo).List(context.Background(), 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one run record, got %d (%v)", len(runs), err)
	}
	if runs[0].Status != store.RunStatusSuccess || runs[0].PublicationsCreated != 4 {
		t.Errorf("unexpected run record %+v", runs[0])
	}

	history := rec.History()
	if len(history) == 0 || history[0].Status != types.ProgressStarted {
		t.Fatalf("expected started event first, got %v", history)
	}
	if last := history[len(history)-1]; last.Status != types.ProgressCompleted || last.RunID != summary.RunID {
		t.Errorf("unexpected final event %+v", last)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	srv := sintaSite(nil, nil)
	defer srv.Close()

	cfg := testConfig(types.SourceSintaScopus)
	repo := store.NewMemoryRepository()
	addAuthors(t, repo, types.SourceSintaScopus, map[string]string{"Ani Lestari": srv.URL + "/authors/profile/1"})

	first := newOrchestrator(t, cfg, srv.URL, newFakeProvider(t, cfg), repo)
	if _, err := first.Run(context.Background(), "test"); err != nil {
		t.Fatal(err)
	}
	before := repo.Counts()

	again := *cfg
	again.Run.FromBeginning = true
	second := newOrchestrator(t, &again, srv.URL, newFakeProvider(t, &again), repo)
	summary, err := second.Run(context.Background(), "test")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counters.PublicationsFetched != 4 || summary.Counters.PublicationsCreated != 0 {
		t.Errorf("expected a re-scrape without new rows, got %+v", summary.Counters)
	}

	after := repo.Counts()
	for _, table := range []string{"publications", "authors", "venues", "satellites", "author_publications", "yearly_citations"} {
		if before[table] != after[table] {
			t.Errorf("%s changed on re-run: %d -> %d", table, before[table], after[table])
		}
	}
}

func TestRunSkipsCompletedAuthors(t *testing.T) {
	srv := sintaSite(nil, nil)
	defer srv.Close()

	cfg := testConfig(types.SourceSintaScopus)
	repo := store.NewMemoryRepository()
	addAuthors(t, repo, types.SourceSintaScopus, map[string]string{"Ani Lestari": srv.URL + "/authors/profile/1"})

	if _, err := newOrchestrator(t, cfg, srv.URL, newFakeProvider(t, cfg), repo).Run(context.Background(), "test"); err != nil {
		t.Fatal(err)
	}
	summary, err := newOrchestrator(t, cfg, srv.URL, newFakeProvider(t, cfg), repo).Run(context.Background(), "test")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counters.AuthorsProcessed != 0 {
		t.Errorf("completed authors must be skipped, processed %d", summary.Counters.AuthorsProcessed)
	}
}

func TestRunRecoversFromChallenge(t *testing.T) {
	srv := sintaSite(nil, nil)
	defer srv.Close()

	cfg := testConfig(types.SourceSintaScopus)
	repo := store.NewMemoryRepository()
	addAuthors(t, repo, types.SourceSintaScopus, map[string]string{"Citra Dewi": srv.URL + "/authors/profile/3"})

	provider := newFakeProvider(t, cfg)
	o := newOrchestrator(t, cfg, srv.URL, provider, repo)
	summary, err := o.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if provider.recovers.Load() != 1 {
		t.Errorf("expected one recovery, got %d", provider.recovers.Load())
	}
	if summary.Counters.AuthorsProcessed != 1 || summary.Counters.PublicationsCreated != 1 {
		t.Errorf("unexpected counters %+v", summary.Counters)
	}
	if st := rosterStatus(t, repo, types.SourceSintaScopus)["Citra Dewi"].Status; st != types.StatusCompleted {
		t.Errorf("expected completed after retry, got %s", st)
	}
}

func TestRunPublicationWriteFailureContinues(t *testing.T) {
	srv := sintaSite(nil, nil)
	defer srv.Close()

	cfg := testConfig(types.SourceSintaScopus)
	repo := store.NewMemoryRepository()
	addAuthors(t, repo, types.SourceSintaScopus, map[string]string{"Ani Lestari": srv.URL + "/authors/profile/1"})
	repo.FailOnce("create_publication", errors.New("lock wait timeout exceeded"))

	summary, err := newOrchestrator(t, cfg, srv.URL, newFakeProvider(t, cfg), repo).Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Status != StatusSuccess {
		t.Errorf("expected success, got %s", summary.Status)
	}
	c := summary.Counters
	if c.PublicationsFailed != 1 || c.PublicationsCreated != 3 || c.PublicationsFetched != 4 {
		t.Errorf("unexpected counters %+v", c)
	}
	if n := repo.Counts()["publications"]; n != 3 {
		t.Errorf("expected the other 3 publications stored, got %d", n)
	}
	if st := rosterStatus(t, repo, types.SourceSintaScopus)["Ani Lestari"].Status; st != types.StatusCompleted {
		t.Errorf("expected completed, got %s", st)
	}
}

func TestRunSessionDiedLeavesAuthorProcessing(t *testing.T) {
	srv := sintaSite(nil, nil)
	defer srv.Close()

	cfg := testConfig(types.SourceSintaScopus)
	repo := store.NewMemoryRepository()
	addAuthors(t, repo, types.SourceSintaScopus, map[string]string{"Ani Lestari": srv.URL + "/authors/profile/1"})

	provider := newFakeProvider(t, cfg)
	provider.sess.Page.Close()

	summary, err := newOrchestrator(t, cfg, srv.URL, provider, repo).Run(context.Background(), "test")
	if !errors.Is(err, types.ErrSessionDied) {
		t.Fatalf("expected ErrSessionDied, got %v", err)
	}
	if summary.Status != StatusFailed {
		t.Errorf("expected failed run, got %s", summary.Status)
	}
	if st := rosterStatus(t, repo, types.SourceSintaScopus)["Ani Lestari"].Status; st != types.StatusProcessing {
		t.Errorf("expected author left processing, got %s", st)
	}
}

func TestRunAuthExhaustedIsFatal(t *testing.T) {
	cfg := testConfig(types.SourceSintaScopus)
	repo := store.NewMemoryRepository()
	addAuthors(t, repo, types.SourceSintaScopus, map[string]string{"Ani Lestari": "https://sinta.example/authors/profile/1"})

	provider := newFakeProvider(t, cfg)
	provider.acquireErr = &types.AuthExhaustedError{Source: types.SourceSintaScopus, Credentials: 2, Cycles: 3}

	summary, err := newOrchestrator(t, cfg, "https://sinta.example", provider, repo).Run(context.Background(), "test")
	if !errors.Is(err, types.ErrAuthExhausted) {
		t.Fatalf("expected ErrAuthExhausted, got %v", err)
	}
	runs, _ := store.NewRunService(repo).List(context.Background(), 1)
	if len(runs) != 1 || runs[0].Status != store.RunStatusFailed || runs[0].ErrorMessage == nil {
		t.Errorf("expected failed run record with message, got %+v", runs)
	}
	if summary.Error == "" {
		t.Error("expected summary error text")
	}
}

func TestRunTargetCount(t *testing.T) {
	srv := sintaSite(nil, nil)
	defer srv.Close()

	cfg := testConfig(types.SourceSintaScopus)
	cfg.Run.TargetCount = 3
	repo := store.NewMemoryRepository()
	addAuthors(t, repo, types.SourceSintaScopus, map[string]string{
		"Ani Lestari": srv.URL + "/authors/profile/1",
		"Citra Dewi":  srv.URL + "/authors/profile/3",
	})

	summary, err := newOrchestrator(t, cfg, srv.URL, newFakeProvider(t, cfg), repo).Run(context.Background(), "test")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counters.PublicationsFetched != 3 {
		t.Errorf("expected 3 fetched, got %d", summary.Counters.PublicationsFetched)
	}
	status := rosterStatus(t, repo, types.SourceSintaScopus)
	if status["Ani Lestari"].Status != types.StatusCompleted {
		t.Errorf("expected Ani completed, got %s", status["Ani Lestari"].Status)
	}
	if status["Citra Dewi"].Status != types.StatusPending {
		t.Errorf("expected Citra untouched, got %s", status["Citra Dewi"].Status)
	}
}

func TestRunAbortBeforeFirstAuthor(t *testing.T) {
	srv := sintaSite(nil, nil)
	defer srv.Close()

	cfg := testConfig(types.SourceSintaScopus)
	repo := store.NewMemoryRepository()
	addAuthors(t, repo, types.SourceSintaScopus, map[string]string{"Ani Lestari": srv.URL + "/authors/profile/1"})

	o := newOrchestrator(t, cfg, srv.URL, newFakeProvider(t, cfg), repo)
	o.Abort()
	summary, err := o.Run(context.Background(), "test")
	if !errors.Is(err, types.ErrRunAborted) {
		t.Fatalf("expected ErrRunAborted, got %v", err)
	}
	if summary.Status != StatusAborted {
		t.Errorf("expected aborted, got %s", summary.Status)
	}
	if ev, ok := o.Progress(); !ok || ev.Status != types.ProgressAborted {
		t.Errorf("expected aborted event, got %+v", ev)
	}
	if st := rosterStatus(t, repo, types.SourceSintaScopus)["Ani Lestari"].Status; st != types.StatusPending {
		t.Errorf("expected author untouched, got %s", st)
	}
}

func TestRunEmptyRoster(t *testing.T) {
	cfg := testConfig(types.SourceSintaScopus)
	repo := store.NewMemoryRepository()
	provider := newFakeProvider(t, cfg)
	provider.acquireErr = errors.New("must not be called")

	summary, err := newOrchestrator(t, cfg, "https://sinta.example", provider, repo).Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("empty roster should succeed: %v", err)
	}
	if summary.Status != StatusSuccess {
		t.Errorf("expected success, got %s", summary.Status)
	}
}

func TestRunTwice(t *testing.T) {
	cfg := testConfig(types.SourceSintaScopus)
	o := newOrchestrator(t, cfg, "https://sinta.example", newFakeProvider(t, cfg), store.NewMemoryRepository())
	if _, err := o.Run(context.Background(), "test"); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Run(context.Background(), "test"); !errors.Is(err, types.ErrRunInProgress) {
		t.Errorf("expected a used orchestrator to refuse, got %v", err)
	}
}

// --- Setup Tests ---

// scholarSite serves a Scholar profile with two works. The first work's detail page has a
// citation graph; the second has none. With challengeDetail set, the first visit to the
// first work's detail page returns a captcha.
func scholarSite(challengeDetail bool) *httptest.Server {
	var challenged atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form action="/scholar"><input name="q"></form></body></html>`)
	})
	mux.HandleFunc("/citations", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("view_op") == "view_citation" {
			if q.Get("citation_for_view") == "U1:A" {
				if challengeDetail && challenged.CompareAndSwap(false, true) {
					fmt.Fprint(w, captchaPage)
					return
				}
				fmt.Fprint(w, `<html><body><div id="gsc_oci_table">
<div class="gs_scl"><div class="gsc_oci_field">Authors</div><div class="gsc_oci_value">Budi Santoso, Siti Rahma</div></div>
<div class="gs_scl"><div class="gsc_oci_field">Journal</div><div class="gsc_oci_value">Journal of Testing</div></div>
<div class="gs_scl"><div class="gsc_oci_field">Volume</div><div class="gsc_oci_value">9</div></div>
<div class="gs_scl"><div class="gsc_oci_field">Pages</div><div class="gsc_oci_value">2939-2952</div></div>
</div>
<div id="gsc_oci_graph_bars">
<span class="gsc_oci_g_t" style="left:8px">2023</span>
<span class="gsc_oci_g_t" style="left:52px">2024</span>
<a class="gsc_oci_g_a" style="left:10px;height:4px"><span class="gsc_oci_g_al">10</span></a>
<a class="gsc_oci_g_a" style="left:50px;height:9px"><span class="gsc_oci_g_al">32</span></a>
</div></body></html>`)
				return
			}
			fmt.Fprint(w, `<html><body><p>detail unavailable</p></body></html>`)
			return
		}

		rows := ""
		if q.Get("cstart") == "0" {
			rows = `<tr class="gsc_a_tr"><td class="gsc_a_t"><a class="gsc_a_at" href="/citations?view_op=view_citation&amp;citation_for_view=U1:A">Rice Yield Modelling</a><div class="gs_gray">B Santoso, S Rahma</div><div class="gs_gray">Journal of Testing 9 (1), 2939-2952, 2023</div></td><td class="gsc_a_c"><a class="gsc_a_ac">42</a></td><td class="gsc_a_y"><span>2023</span></td></tr>
<tr class="gsc_a_tr"><td class="gsc_a_t"><a class="gsc_a_at" href="/citations?view_op=view_citation&amp;citation_for_view=U1:B">Irrigation Scheduling</a><div class="gs_gray">S Rahma</div><div class="gs_gray">Proceedings of the Conference on Agriculture, 2024</div></td><td class="gsc_a_c"><a class="gsc_a_ac">5</a></td><td class="gsc_a_y"><span>2024</span></td></tr>`
		}
		fmt.Fprintf(w, `<html><body>
<div id="gsc_prf_in">Siti Rahma</div><div class="gsc_prf_il">Universitas Contoh</div>
<table id="gsc_rsb_st"><tr><td class="gsc_rsb_std">47</td><td class="gsc_rsb_std">40</td><td class="gsc_rsb_std">2</td><td class="gsc_rsb_std">2</td></tr></table>
<table><tbody id="gsc_a_b">%s</tbody></table>
<button id="gsc_bpf_more" type="button">Show more</button></body></html>`, rows)
	})
	return httptest.NewServer(mux)
}

func TestSetupScholarDetailAndGraph(t *testing.T) {
	srv := scholarSite(false)
	defer srv.Close()

	cfg := testConfig(types.SourceScholar)
	cfg.Run.BaseURL = srv.URL
	repo := store.NewMemoryRepository()
	addAuthors(t, repo, types.SourceScholar, map[string]string{"Siti Rahma": srv.URL + "/citations?user=U1&hl=en"})

	o, err := Setup(cfg, repo, testLogger, WithClock(fixedNow))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer o.Close()

	summary, err := o.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Counters.PublicationsCreated != 2 {
		t.Errorf("expected 2 publications, got %+v", summary.Counters)
	}

	counts := repo.Counts()
	// two graph years for the first work, the current-year fallback for the second
	if counts["yearly_citations"] != 3 {
		t.Errorf("expected 3 yearly citation rows, got %d", counts["yearly_citations"])
	}
	if counts["authors"] != 1 || counts["departments"] != 1 {
		t.Errorf("unexpected author rows %v", counts)
	}
}

func TestRunDetailChallengeKeepsRecord(t *testing.T) {
	srv := scholarSite(true)
	defer srv.Close()

	cfg := testConfig(types.SourceScholar)
	repo := store.NewMemoryRepository()
	addAuthors(t, repo, types.SourceScholar, map[string]string{"Siti Rahma": srv.URL + "/citations?user=U1&hl=en"})

	provider := newFakeProvider(t, cfg)
	summary, err := newOrchestrator(t, cfg, srv.URL, provider, repo).Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if provider.recovers.Load() != 1 {
		t.Errorf("expected one recovery, got %d", provider.recovers.Load())
	}
	if summary.Counters.PublicationsCreated != 2 {
		t.Errorf("records seen before the challenge must be saved on retry, got %+v", summary.Counters)
	}
	if counts := repo.Counts(); counts["publications"] != 2 {
		t.Errorf("expected 2 publications, got %d", counts["publications"])
	}
	if st := rosterStatus(t, repo, types.SourceScholar)["Siti Rahma"].Status; st != types.StatusCompleted {
		t.Errorf("expected completed, got %s", st)
	}
}

func TestSetupUnknownSource(t *testing.T) {
	cfg := testConfig(types.SourceScholar)
	cfg.Run.Source = "orcid"
	if _, err := Setup(cfg, store.NewMemoryRepository(), testLogger); !errors.Is(err, types.ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
}

// --- Manager Tests ---

func TestManagerLifecycle(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	srv := sintaSite(release, entered)
	defer srv.Close()

	cfg := testConfig(types.SourceSintaScopus)
	repo := store.NewMemoryRepository()
	addAuthors(t, repo, types.SourceSintaScopus, map[string]string{
		"Ani Lestari":  srv.URL + "/authors/profile/9",
		"Budi Santoso": srv.URL + "/authors/profile/1",
	})

	var mu sync.Mutex
	var providers []*fakeProvider
	setup := func(c *config.Config) (*Orchestrator, error) {
		p := newFakeProvider(t, c)
		mu.Lock()
		providers = append(providers, p)
		mu.Unlock()
		return newOrchestrator(t, c, srv.URL, p, repo), nil
	}
	m := NewManager(cfg, setup, testLogger)

	if err := m.Stop(); !errors.Is(err, types.ErrNoRunInProgress) {
		t.Errorf("expected ErrNoRunInProgress when idle, got %v", err)
	}
	if err := m.Start(StartOptions{Source: "orcid"}); !errors.Is(err, types.ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}

	if err := m.Start(StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-entered

	if err := m.Start(StartOptions{}); !errors.Is(err, types.ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
	st := m.Current()
	if !st.Running || st.Source != types.SourceSintaScopus || st.RunID == "" {
		t.Errorf("unexpected status %+v", st)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(release)
	m.Wait()

	last, ok := m.Last()
	if !ok || last.Status != StatusAborted {
		t.Fatalf("expected aborted summary, got %+v", last)
	}
	if last.Counters.AuthorsProcessed != 1 {
		t.Errorf("expected the author in flight to finish, got %+v", last.Counters)
	}
	status := rosterStatus(t, repo, types.SourceSintaScopus)
	if status["Ani Lestari"].Status != types.StatusCompleted || status["Budi Santoso"].Status != types.StatusPending {
		t.Errorf("unexpected roster after abort: %+v", status)
	}
	if st := m.Current(); st.Running || st.Last == nil {
		t.Errorf("expected idle status with last summary, got %+v", st)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(providers) != 1 || !providers[0].closed.Load() {
		t.Error("expected the run's provider to be closed")
	}
}

// --- Stats Tests ---

func TestStatsCounters(t *testing.T) {
	var s Stats
	s.AuthorsProcessed.Add(2)
	s.PublicationsCreated.Add(5)
	s.RecordsDropped.Add(1)

	c := s.Counters()
	if c.AuthorsProcessed != 2 || c.PublicationsCreated != 5 {
		t.Errorf("unexpected counters %+v", c)
	}
	snap := s.Snapshot()
	if snap["records_dropped"] != int64(1) {
		t.Errorf("unexpected snapshot %v", snap)
	}
	if _, ok := snap["elapsed"]; ok {
		t.Error("elapsed needs a start time")
	}
}

func TestStateString(t *testing.T) {
	if StateRunning.String() != "running" || State(42).String() != "unknown" {
		t.Error("unexpected state names")
	}
}
