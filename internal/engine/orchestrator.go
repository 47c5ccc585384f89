// Package engine runs harvests: it walks the roster for one source and drives each author
// through navigation, extraction, normalization and persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/pubharvest/internal/archive"
	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/fetcher"
	"github.com/IshaanNene/pubharvest/internal/navigator"
	"github.com/IshaanNene/pubharvest/internal/normalize"
	"github.com/IshaanNene/pubharvest/internal/observability"
	"github.com/IshaanNene/pubharvest/internal/parser"
	"github.com/IshaanNene/pubharvest/internal/pipeline"
	"github.com/IshaanNene/pubharvest/internal/progress"
	"github.com/IshaanNene/pubharvest/internal/session"
	"github.com/IshaanNene/pubharvest/internal/source"
	"github.com/IshaanNene/pubharvest/internal/store"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// Run outcomes reported in Summary.Status.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
)

// maxAuthorAttempts bounds retries of one author after a challenge.
const maxAuthorAttempts = 2

// SessionProvider hands out authenticated sessions for one source.
type SessionProvider interface {
	Acquire(ctx context.Context) (*session.Session, error)
	Recover(ctx context.Context) (*session.Session, error)
	Stats() session.ProviderStats
	Close() error
}

// RunOptions is the snapshot of run settings stored with each scrape run.
type RunOptions struct {
	Source        string `json:"source"`
	Trigger       string `json:"trigger"`
	FromBeginning bool   `json:"from_beginning"`
	MaxPages      int    `json:"max_pages"`
	TargetCount   int    `json:"target_count"`
	DedupPolicy   string `json:"dedup_policy"`
}

// Summary describes a finished run.
type Summary struct {
	RunID    string            `json:"run_id"`
	Source   types.Source      `json:"source"`
	Status   string            `json:"status"`
	Counters store.RunCounters `json:"counters"`
	Error    string            `json:"error,omitempty"`
	Started  time.Time         `json:"started_at"`
	Finished time.Time         `json:"finished_at"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithArchive stores every accepted raw record in a.
func WithArchive(a archive.Archive) Option {
	return func(o *Orchestrator) { o.archive = a }
}

// WithReporter adds a progress reporter. Reporter failures never reach the run.
func WithReporter(r progress.Reporter) Option {
	return func(o *Orchestrator) { o.reporters = append(o.reporters, r) }
}

// WithMetrics shares a process-wide metrics instance.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPacer replaces the pacer built from the delay settings.
func WithPacer(p *fetcher.Pacer) Option {
	return func(o *Orchestrator) {
		o.pacer = p
		o.pacerSet = true
	}
}

// WithClock sets the time source for timestamps and citation years.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs one harvest for one source.
type Orchestrator struct {
	cfg      *config.Config
	adapter  source.Adapter
	provider SessionProvider
	logger   *slog.Logger

	nav        *navigator.Navigator
	extractor  *parser.Extractor
	normalizer *normalize.Normalizer
	pipeline   *pipeline.Pipeline
	dedup      *pipeline.DedupMiddleware
	upserter   *store.Upserter
	roster     *store.Roster
	runs       *store.RunService

	archive   archive.Archive
	reporters []progress.Reporter
	reporter  *progress.Safe
	recorder  *progress.Recorder
	metrics   *observability.Metrics
	pacer     *fetcher.Pacer
	pacerSet  bool
	now       func() time.Time

	state atomic.Int32
	abort atomic.Bool
	stats *Stats

	mu        sync.RWMutex
	runKey    string
	sess      *session.Session
	lastStats session.ProviderStats
}

// New creates an Orchestrator over an adapter, a session provider and a repository.
func New(cfg *config.Config, adapter source.Adapter, provider SessionProvider, repo store.Repository, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		adapter:  adapter,
		provider: provider,
		logger:   logger.With("component", "orchestrator", "source", adapter.Source()),
		recorder: progress.NewRecorder(100),
		now:      time.Now,
		stats:    &Stats{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if !o.pacerSet {
		o.pacer = fetcher.NewPacer(cfg.Delays.StepMin, cfg.Delays.StepMax, cfg.Delays.RateLimit, cfg.Delays.Burst)
	}
	if o.metrics == nil {
		o.metrics = observability.NewMetrics(logger)
	}
	o.stats.StartTime = o.now()

	reporters := append([]progress.Reporter{o.recorder}, o.reporters...)
	o.reporter = progress.NewSafe(progress.NewMulti(reporters...), logger)

	o.nav = navigator.New(cfg.Navigator, cfg.Run.MaxPages, o.pacer, logger)
	o.extractor = parser.NewExtractor(logger)
	o.normalizer = normalize.New(
		normalize.WithClock(o.now),
		normalize.WithPageCeiling(cfg.Navigator.PageCeiling),
		normalize.WithDedupPolicy(cfg.Run.DedupPolicy),
	)
	o.pipeline, o.dedup = pipeline.Default(logger)
	o.upserter = store.NewUpserter(repo, logger)
	o.roster = store.NewRoster(repo)
	o.runs = store.NewRunService(repo)
	return o
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Stats returns the live run counters.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// RunID returns the key of the current or last run.
func (o *Orchestrator) RunID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.runKey
}

// Progress returns the last progress event reported.
func (o *Orchestrator) Progress() (types.ProgressEvent, bool) {
	return o.recorder.Last()
}

// History returns recent progress events, oldest first.
func (o *Orchestrator) History() []types.ProgressEvent {
	return o.recorder.History()
}

// Abort asks the run to stop before the next author. The author in flight finishes.
func (o *Orchestrator) Abort() {
	o.abort.Store(true)
	if o.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		o.logger.Info("abort requested")
	}
}

// Close releases the session provider.
func (o *Orchestrator) Close() error {
	return o.provider.Close()
}

// Run processes the roster for the adapter's source. A run that cannot finish still
// writes its scrape-run record and reports a terminal progress event.
func (o *Orchestrator) Run(ctx context.Context, trigger string) (Summary, error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return Summary{}, types.ErrRunInProgress
	}
	defer o.state.Store(int32(StateStopped))

	src := o.adapter.Source()
	opts := RunOptions{
		Source:        string(src),
		Trigger:       trigger,
		FromBeginning: o.cfg.Run.FromBeginning,
		MaxPages:      o.cfg.Run.MaxPages,
		TargetCount:   o.cfg.Run.TargetCount,
		DedupPolicy:   o.cfg.Run.DedupPolicy,
	}

	run, err := o.runs.Start(ctx, src, trigger, opts)
	if err != nil {
		return Summary{}, fmt.Errorf("record run start: %w", err)
	}
	o.mu.Lock()
	o.runKey = run.RunKey
	o.mu.Unlock()

	o.metrics.RunsStarted.Add(1)
	o.metrics.ActiveRuns.Add(1)
	defer o.metrics.ActiveRuns.Add(-1)

	o.logger.Info("run starting", "run_id", run.RunKey, "trigger", trigger)
	runErr := o.loop(ctx)

	// The run record is written even when ctx is done.
	finishCtx := context.WithoutCancel(ctx)
	summary := Summary{
		RunID:    run.RunKey,
		Source:   src,
		Counters: o.stats.Counters(),
		Started:  o.stats.StartTime,
		Finished: o.now(),
	}

	switch {
	case runErr == nil:
		summary.Status = StatusSuccess
		if err := o.runs.MarkSuccess(finishCtx, run.RunKey, summary.Counters); err != nil {
			o.logger.Error("failed to record run success", "error", err)
		}
		o.report(finishCtx, types.ProgressCompleted, o.finalMessage(), 0, 0)
	case errors.Is(runErr, types.ErrRunAborted) || errors.Is(runErr, context.Canceled):
		summary.Status = StatusAborted
		summary.Error = runErr.Error()
		if err := o.runs.MarkFailure(finishCtx, run.RunKey, summary.Counters, runErr); err != nil {
			o.logger.Error("failed to record run abort", "error", err)
		}
		o.report(finishCtx, types.ProgressAborted, "run aborted", 0, 0)
	default:
		summary.Status = StatusFailed
		summary.Error = runErr.Error()
		o.metrics.RunsFailed.Add(1)
		if err := o.runs.MarkFailure(finishCtx, run.RunKey, summary.Counters, runErr); err != nil {
			o.logger.Error("failed to record run failure", "error", err)
		}
		o.report(finishCtx, types.ProgressFailed, runErr.Error(), 0, 0)
	}

	o.logger.Info("run finished",
		"run_id", run.RunKey,
		"status", summary.Status,
		"authors_processed", summary.Counters.AuthorsProcessed,
		"authors_with_errors", summary.Counters.AuthorsWithErrors,
		"publications_created", summary.Counters.PublicationsCreated,
		"publications_updated", summary.Counters.PublicationsUpdated,
		"elapsed", summary.Finished.Sub(summary.Started).Round(time.Second),
	)
	if runErr != nil {
		return summary, runErr
	}
	return summary, nil
}

func (o *Orchestrator) loop(ctx context.Context) error {
	src := o.adapter.Source()
	queue, err := o.roster.Queue(ctx, src, o.cfg.Run.FromBeginning)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	total := len(queue)
	o.report(ctx, types.ProgressStarted, fmt.Sprintf("%d author(s) queued", total), 0, total)
	if total == 0 {
		o.logger.Info("roster is empty, nothing to do")
		return nil
	}

	sess, err := o.provider.Acquire(ctx)
	o.syncSessionMetrics()
	if err != nil {
		return fmt.Errorf("acquire session: %w", err)
	}
	o.setSession(sess)

	for i, entry := range queue {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.abort.Load() {
			return types.ErrRunAborted
		}
		if o.targetReached() {
			o.logger.Info("target count reached", "target", o.cfg.Run.TargetCount)
			return nil
		}
		if i > 0 {
			if err := o.pacer.Between(ctx, o.cfg.Run.AuthorBackoffMin, o.cfg.Run.AuthorBackoffMax); err != nil {
				return err
			}
			if o.abort.Load() {
				return types.ErrRunAborted
			}
		}

		o.report(ctx, types.ProgressProcessing, entry.Name, i+1, total)
		err := o.processAuthor(ctx, entry)
		o.syncSessionMetrics()

		if err == nil {
			o.stats.AuthorsProcessed.Add(1)
			o.metrics.AuthorsProcessed.Add(1)
			o.report(ctx, types.ProgressAuthorDone, entry.Name, i+1, total)
			continue
		}
		if fatal(err) {
			o.logger.Error("run stopped, author left processing", "author", entry.Name, "error", err)
			return err
		}

		o.stats.AuthorsWithErrors.Add(1)
		o.metrics.AuthorsFailed.Add(1)
		o.logger.Warn("author failed", "author", entry.Name, "profile_url", entry.ProfileURL, "error", err)
		if merr := o.roster.MarkError(ctx, entry.ID, err); merr != nil {
			o.logger.Error("failed to mark author error", "author", entry.Name, "error", merr)
		}
		o.report(ctx, types.ProgressAuthorFail, fmt.Sprintf("%s: %v", entry.Name, err), i+1, total)
	}
	return nil
}

// processAuthor harvests one author. A challenge recovers the session and retries once.
func (o *Orchestrator) processAuthor(ctx context.Context, entry types.RosterEntry) error {
	if err := o.roster.MarkProcessing(ctx, entry.ID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	var err error
	for attempt := 1; attempt <= maxAuthorAttempts; attempt++ {
		// a retry re-reads the listing from the first page
		o.dedup.Reset()
		err = o.harvestAuthor(ctx, entry)
		if !errors.Is(err, types.ErrChallengeDetected) {
			break
		}
		o.logger.Warn("challenge during author, recovering session",
			"author", entry.Name,
			"attempt", attempt,
			"error", err,
		)
		sess, rerr := o.provider.Recover(ctx)
		if rerr != nil {
			return rerr
		}
		o.setSession(sess)
	}
	if err != nil {
		return err
	}

	if err := o.roster.MarkCompleted(ctx, entry.ID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (o *Orchestrator) harvestAuthor(ctx context.Context, entry types.RosterEntry) error {
	sess := o.session()
	listing, err := o.nav.Open(ctx, sess, o.adapter, entry)
	if err != nil {
		return err
	}

	target, err := o.saveAuthor(ctx, entry, listing)
	if err != nil {
		return err
	}

	for listing != nil {
		o.stats.PagesLoaded.Add(1)
		o.metrics.PagesLoaded.Add(1)
		if err := o.processPage(ctx, sess, entry, target, listing); err != nil {
			return err
		}
		if o.targetReached() {
			return nil
		}
		listing, err = o.nav.Next(ctx, listing)
		if err != nil {
			return err
		}
	}
	return nil
}

// saveAuthor upserts the profile header of the first listing page.
func (o *Orchestrator) saveAuthor(ctx context.Context, entry types.RosterEntry, l *navigator.Listing) (normalize.Target, error) {
	profile, err := o.extractor.Profile(l.HTML, l.URL, o.adapter.Profile())
	if err != nil {
		o.logger.Warn("profile header unreadable", "author", entry.Name, "error", err)
		profile = types.AuthorProfile{}
	}
	if profile.Name == "" {
		profile.Name = entry.Name
	}
	profile.ExternalID = o.adapter.ExternalID(entry.ProfileURL)
	profile.ProfileURL = entry.ProfileURL

	authorID, err := o.upserter.UpsertAuthor(ctx, profile, o.adapter.Source())
	if err != nil {
		return normalize.Target{}, err
	}
	return normalize.Target{
		AuthorID:   authorID,
		AuthorName: profile.Name,
		Policy:     o.adapter.CitationPolicy(),
	}, nil
}

func (o *Orchestrator) processPage(ctx context.Context, sess *session.Session, entry types.RosterEntry, target normalize.Target, l *navigator.Listing) error {
	records, err := o.extractor.Records(l.HTML, l.URL, o.adapter.Records(), o.adapter.Source())
	if err != nil {
		return err
	}
	o.metrics.RecordsExtracted.Add(int64(len(records)))

	var entries []archive.Entry
	defer func() { o.store(ctx, entries) }()

	for i := range records {
		if o.targetReached() {
			return nil
		}

		rec, err := o.pipeline.Process(&records[i])
		if err != nil || rec == nil {
			o.stats.RecordsDropped.Add(1)
			o.metrics.RecordsDropped.Add(1)
			if err != nil {
				o.logger.Debug("record dropped", "author", entry.Name, "error", err)
			}
			continue
		}

		if err := o.enrich(ctx, sess, rec); err != nil {
			return err
		}
		o.stats.PublicationsFetched.Add(1)

		pub := o.normalizer.Normalize(*rec, target)
		if o.archive != nil {
			entries = append(entries, archive.NewEntry(o.RunID(), entry, l.Page, *rec, pub.Category, pub.Rule, o.now()))
		}

		res, err := o.upserter.Upsert(ctx, pub)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.stats.PublicationsFailed.Add(1)
			o.metrics.PublicationsFailed.Add(1)
			o.logger.Warn("publication skipped", "author", entry.Name, "title", pub.Title, "error", err)
			continue
		}
		switch {
		case res.Created:
			o.stats.PublicationsCreated.Add(1)
			o.metrics.PublicationsCreated.Add(1)
		case res.Updated:
			o.stats.PublicationsUpdated.Add(1)
			o.metrics.PublicationsUpdated.Add(1)
		}
		if res.SatelliteSkipped {
			o.logger.Warn("satellite skipped", "title", pub.Title, "category", pub.Category)
		}
	}
	return nil
}

// enrich fills rec from its detail page and citation graph. Detail failures keep the
// listing fields; challenges and dead sessions propagate.
func (o *Orchestrator) enrich(ctx context.Context, sess *session.Session, rec *types.RawRecord) error {
	detail, ok := o.adapter.Detail()
	if !ok || !rec.DetailURL.Has() {
		return nil
	}
	graph, hasGraph := o.adapter.Graph()

	err := o.nav.WithDetail(ctx, sess, rec.DetailURL.Value, detail.Marker, func(page fetcher.Page, html string) error {
		o.metrics.DetailPagesLoaded.Add(1)

		pairs, err := o.extractor.Detail(html, detail)
		if err != nil {
			o.logger.Debug("detail panel unreadable", "url", rec.DetailURL.Value, "error", err)
		} else {
			parser.ApplyDetail(rec, pairs, detail.Routes)
		}
		if !hasGraph {
			return nil
		}

		found, err := o.nav.WaitOptional(ctx, page, graph.Marker, o.cfg.Navigator.GraphTimeout)
		if err != nil || !found {
			return err
		}
		if fresh, err := page.HTML(ctx); err == nil {
			html = fresh
		}
		minYear, maxYear := o.cfg.Citations.YearWindow(o.now().Year())
		byYear, err := o.extractor.Graph(html, graph, minYear, maxYear)
		if err != nil {
			o.logger.Debug("citation graph unreadable", "url", rec.DetailURL.Value, "error", err)
			return nil
		}
		if len(byYear) > 0 {
			rec.CitationsByYear = byYear
		}
		return nil
	})
	if err == nil || fatal(err) || errors.Is(err, types.ErrChallengeDetected) {
		return err
	}
	o.logger.Warn("detail page failed, keeping listing fields", "url", rec.DetailURL.Value, "error", err)
	return nil
}

func (o *Orchestrator) store(ctx context.Context, entries []archive.Entry) {
	if o.archive == nil || len(entries) == 0 {
		return
	}
	if err := o.archive.Store(context.WithoutCancel(ctx), entries); err != nil {
		o.logger.Error("failed to archive records", "archive", o.archive.Name(), "count", len(entries), "error", err)
	}
}

func (o *Orchestrator) targetReached() bool {
	return o.cfg.Run.TargetCount > 0 && o.stats.PublicationsFetched.Load() >= int64(o.cfg.Run.TargetCount)
}

func (o *Orchestrator) report(ctx context.Context, status, message string, current, total int) {
	o.reporter.Report(ctx, types.ProgressEvent{
		RunID:   o.RunID(),
		Source:  o.adapter.Source(),
		Status:  status,
		Message: message,
		Current: current,
		Total:   total,
		At:      o.now(),
	})
}

func (o *Orchestrator) finalMessage() string {
	c := o.stats.Counters()
	return fmt.Sprintf("%d author(s) done, %d with errors, %d publication(s) fetched",
		c.AuthorsProcessed, c.AuthorsWithErrors, c.PublicationsFetched)
}

// syncSessionMetrics copies provider counter deltas into the metrics.
func (o *Orchestrator) syncSessionMetrics() {
	cur := o.provider.Stats()
	o.mu.Lock()
	last := o.lastStats
	o.lastStats = cur
	o.mu.Unlock()

	o.metrics.Challenges.Add(cur.Challenges - last.Challenges)
	o.metrics.Rotations.Add(cur.Marks - last.Marks)
	o.metrics.RotationResets.Add(cur.Resets - last.Resets)
	o.metrics.DriverRestarts.Add(cur.Restarts - last.Restarts)
}

func (o *Orchestrator) session() *session.Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sess
}

func (o *Orchestrator) setSession(s *session.Session) {
	o.mu.Lock()
	o.sess = s
	o.mu.Unlock()
}

// fatal reports whether err ends the run rather than the author.
func fatal(err error) bool {
	return errors.Is(err, types.ErrSessionDied) ||
		errors.Is(err, types.ErrAuthExhausted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
