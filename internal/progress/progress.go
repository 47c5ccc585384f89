// Package progress delivers live run progress to observers. Delivery is best effort:
// reporter failures and panics are logged and never reach the orchestrator.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IshaanNene/pubharvest/internal/types"
)

// Reporter receives progress events.
type Reporter interface {
	Report(ctx context.Context, ev types.ProgressEvent) error
	Close() error
}

// Safe wraps a Reporter so failures are logged and swallowed.
type Safe struct {
	inner  Reporter
	logger *slog.Logger
}

// NewSafe wraps r. A nil r drops every event.
func NewSafe(r Reporter, logger *slog.Logger) *Safe {
	return &Safe{inner: r, logger: logger.With("component", "progress")}
}

// Report forwards ev, recovering from panics in the wrapped reporter.
func (s *Safe) Report(ctx context.Context, ev types.ProgressEvent) {
	if s == nil || s.inner == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("progress reporter panicked", "status", ev.Status, "panic", r)
		}
	}()
	if err := s.inner.Report(ctx, ev); err != nil {
		s.logger.Warn("progress report failed", "status", ev.Status, "error", err)
	}
}

// Close closes the wrapped reporter.
func (s *Safe) Close() error {
	if s == nil || s.inner == nil {
		return nil
	}
	return s.inner.Close()
}

// LogReporter writes events to the structured log.
type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With("component", "progress_log")}
}

func (l *LogReporter) Report(_ context.Context, ev types.ProgressEvent) error {
	l.logger.Info(ev.Message,
		"run_id", ev.RunID,
		"source", ev.Source,
		"status", ev.Status,
		"current", ev.Current,
		"total", ev.Total,
	)
	return nil
}

func (l *LogReporter) Close() error { return nil }

// Multi fans events out to several reporters. Every reporter is called even when an
// earlier one fails.
type Multi struct {
	reporters []Reporter
}

func NewMulti(reporters ...Reporter) *Multi {
	return &Multi{reporters: reporters}
}

func (m *Multi) Report(ctx context.Context, ev types.ProgressEvent) error {
	var errs []error
	for _, r := range m.reporters {
		if err := m.report(ctx, r, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) report(ctx context.Context, r Reporter, ev types.ProgressEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reporter panicked: %v", p)
		}
	}()
	return r.Report(ctx, ev)
}

func (m *Multi) Close() error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps the latest event and a bounded history in memory. The control API reads
// it for the current run's progress.
type Recorder struct {
	mu      sync.RWMutex
	limit   int
	history []types.ProgressEvent
}

func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 100
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) Report(_ context.Context, ev types.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, ev)
	if len(r.history) > r.limit {
		r.history = r.history[len(r.history)-r.limit:]
	}
	return nil
}

func (r *Recorder) Close() error { return nil }

// Last returns the most recent event.
func (r *Recorder) Last() (types.ProgressEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.history) == 0 {
		return types.ProgressEvent{}, false
	}
	return r.history[len(r.history)-1], true
}

// History returns a copy of the retained events, oldest first.
func (r *Recorder) History() []types.ProgressEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ProgressEvent, len(r.history))
	copy(out, r.history)
	return out
}
