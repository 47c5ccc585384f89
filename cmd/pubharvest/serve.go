package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/pubharvest/internal/api"
	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/engine"
	"github.com/IshaanNene/pubharvest/internal/observability"
)

var servePort int

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the roster and run control API",
		Long: `Start the HTTP API. Runs are launched with POST /api/runs and stopped with
POST /api/runs/stop; only one run is active at a time. Metrics are served on the
configured path when enabled.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "API port (0 = use config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(func(c *config.Config) {
		if servePort > 0 {
			c.API.Port = servePort
		}
	})
	if err != nil {
		return err
	}

	repo, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	arch, reporters, closeOutputs, err := openOutputs(cfg, logger)
	if err != nil {
		return err
	}
	defer closeOutputs()

	metrics := observability.NewMetrics(logger)
	opts := []engine.Option{engine.WithMetrics(metrics)}
	if arch != nil {
		opts = append(opts, engine.WithArchive(arch))
	}
	for _, r := range reporters {
		opts = append(opts, engine.WithReporter(r))
	}

	manager := engine.NewManager(cfg, func(runCfg *config.Config) (*engine.Orchestrator, error) {
		return engine.Setup(runCfg, repo, logger, opts...)
	}, logger)

	var serverOpts []api.Option
	if cfg.Metrics.Enabled {
		serverOpts = append(serverOpts, api.WithMetrics(cfg.Metrics.Path, metrics))
	}
	server := api.NewServer(cfg.API.Port, repo, manager, logger, serverOpts...)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start api: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down...", "signal", sig)

	manager.Kill()
	manager.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("api shutdown incomplete", "error", err)
	}
	return nil
}
