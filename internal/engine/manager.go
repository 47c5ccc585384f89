package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// SetupFunc builds an orchestrator for a per-run copy of the configuration.
type SetupFunc func(cfg *config.Config) (*Orchestrator, error)

// StartOptions overrides run settings for one in-process run. Zero values keep the
// configured setting.
type StartOptions struct {
	Source        string `json:"source"`
	FromBeginning bool   `json:"from_beginning"`
	MaxPages      int    `json:"max_pages"`
	TargetCount   int    `json:"target_count"`
	Trigger       string `json:"-"`
}

// Status is the manager's view of the current or last run.
type Status struct {
	Running  bool                  `json:"running"`
	State    string                `json:"state"`
	Source   types.Source          `json:"source,omitempty"`
	RunID    string                `json:"run_id,omitempty"`
	Stats    map[string]any        `json:"stats,omitempty"`
	Progress *types.ProgressEvent  `json:"progress,omitempty"`
	History  []types.ProgressEvent `json:"history,omitempty"`
	Last     *Summary              `json:"last,omitempty"`
}

// Manager owns at most one in-process run at a time.
type Manager struct {
	cfg    *config.Config
	setup  SetupFunc
	logger *slog.Logger

	mu      sync.Mutex
	current *Orchestrator
	source  types.Source
	cancel  context.CancelFunc
	done    chan struct{}
	last    *Summary
}

// NewManager creates a run manager. setup is called once per run.
func NewManager(cfg *config.Config, setup SetupFunc, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		setup:  setup,
		logger: logger.With("component", "run_manager"),
	}
}

// Start launches a run in the background. It fails with types.ErrRunInProgress while
// another run is active.
func (m *Manager) Start(opts StartOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return types.ErrRunInProgress
	}

	cfg := *m.cfg
	if opts.Source != "" {
		cfg.Run.Source = opts.Source
	}
	if opts.FromBeginning {
		cfg.Run.FromBeginning = true
	}
	if opts.MaxPages > 0 {
		cfg.Run.MaxPages = opts.MaxPages
	}
	if opts.TargetCount > 0 {
		cfg.Run.TargetCount = opts.TargetCount
	}
	src, err := types.ParseSource(cfg.Run.Source)
	if err != nil {
		return err
	}

	orch, err := m.setup(&cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.current = orch
	m.source = src
	m.cancel = cancel
	m.done = done

	trigger := opts.Trigger
	if trigger == "" {
		trigger = "api"
	}

	go func() {
		defer close(done)
		defer cancel()

		summary, err := orch.Run(ctx, trigger)
		if err != nil {
			m.logger.Warn("run ended with error", "source", src, "error", err)
		}
		if cerr := orch.Close(); cerr != nil {
			m.logger.Warn("failed to close session provider", "error", cerr)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if summary.RunID != "" {
			m.last = &summary
		}
		m.current = nil
		m.cancel = nil
	}()

	m.logger.Info("run launched", "source", src, "trigger", trigger)
	return nil
}

// Stop asks the active run to finish after the author in flight.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return types.ErrNoRunInProgress
	}
	m.current.Abort()
	return nil
}

// Kill cancels the active run immediately. Used on shutdown.
func (m *Manager) Kill() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the active run, if any, has finished.
func (m *Manager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Current reports the active run, or the last one when idle.
func (m *Manager) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{State: StateIdle.String(), Last: m.last}
	if m.current == nil {
		return st
	}
	st.Running = true
	st.State = m.current.State().String()
	st.Source = m.source
	st.RunID = m.current.RunID()
	st.Stats = m.current.Stats().Snapshot()
	if ev, ok := m.current.Progress(); ok {
		st.Progress = &ev
	}
	st.History = m.current.History()
	return st
}

// Last returns the summary of the last finished run.
func (m *Manager) Last() (Summary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Summary{}, false
	}
	return *m.last, true
}
