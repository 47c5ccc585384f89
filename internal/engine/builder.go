package engine

import (
	"fmt"
	"log/slog"

	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/fetcher"
	"github.com/IshaanNene/pubharvest/internal/session"
	"github.com/IshaanNene/pubharvest/internal/source"
	"github.com/IshaanNene/pubharvest/internal/store"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// Setup builds an Orchestrator for cfg.Run.Source: the adapter, the configured driver,
// the pacer shared by navigation and login, and a credential-rotating session provider.
func Setup(cfg *config.Config, repo store.Repository, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	src, err := types.ParseSource(cfg.Run.Source)
	if err != nil {
		return nil, err
	}
	adapter, err := source.New(src, cfg.Run.BaseURL)
	if err != nil {
		return nil, err
	}

	driver, err := fetcher.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create driver: %w", err)
	}

	pacer := fetcher.NewPacer(cfg.Delays.StepMin, cfg.Delays.StepMax, cfg.Delays.RateLimit, cfg.Delays.Burst)
	auth := adapter.Authenticator(pacer, cfg.Session.LoginTimeout, logger)
	rotator := session.NewCredentialRotator(session.Pool(cfg.Session.Accounts[adapter.AccountKey()]))
	provider := session.NewProvider(src, driver, auth, rotator, pacer, &cfg.Session, logger)

	logger.Info("orchestrator ready",
		"source", src,
		"driver", driver.Type(),
		"accounts", rotator.Len(),
		"max_pages", cfg.Run.MaxPages,
		"target_count", cfg.Run.TargetCount,
	)

	opts = append([]Option{WithPacer(pacer)}, opts...)
	return New(cfg, adapter, provider, repo, logger, opts...), nil
}
