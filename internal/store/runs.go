package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/IshaanNene/pubharvest/internal/types"
)

const maxErrorMessage = 1000

// RunService records one row per orchestrator run.
type RunService struct {
	repo Repository
	now  func() time.Time
}

// NewRunService creates a run service over repo.
func NewRunService(repo Repository) *RunService {
	return &RunService{repo: repo, now: time.Now}
}

// Start creates a running record with a fresh run key and a JSON snapshot of options.
func (s *RunService) Start(ctx context.Context, source types.Source, trigger string, options any) (*ScrapeRun, error) {
	if trigger == "" {
		trigger = "unknown"
	}
	run := &ScrapeRun{
		RunKey:        uuid.NewString(),
		Source:        string(source),
		TriggerSource: trigger,
		Status:        RunStatusRunning,
		StartedAt:     s.now(),
	}
	if options != nil {
		raw, err := json.Marshal(options)
		if err != nil {
			return nil, fmt.Errorf("encode run options: %w", err)
		}
		run.Options = datatypes.JSON(raw)
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *RunService) MarkSuccess(ctx context.Context, runKey string, counters RunCounters) error {
	return s.finish(ctx, runKey, RunStatusSuccess, counters, nil)
}

func (s *RunService) MarkFailure(ctx context.Context, runKey string, counters RunCounters, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.finish(ctx, runKey, RunStatusFailed, counters, &msg)
}

func (s *RunService) finish(ctx context.Context, runKey, status string, counters RunCounters, errMsg *string) error {
	if errMsg != nil {
		truncated := truncateMessage(*errMsg)
		errMsg = &truncated
	}
	return s.repo.FinishRun(ctx, runKey, status, counters, errMsg, s.now())
}

func (s *RunService) Get(ctx context.Context, runKey string) (*ScrapeRun, error) {
	return s.repo.GetRun(ctx, runKey)
}

// List returns the most recent runs first.
func (s *RunService) List(ctx context.Context, limit int) ([]ScrapeRun, error) {
	return s.repo.ListRuns(ctx, limit)
}

func truncateMessage(msg string) string {
	if len(msg) > maxErrorMessage {
		return fmt.Sprintf("%s...", msg[:maxErrorMessage-3])
	}
	return msg
}
