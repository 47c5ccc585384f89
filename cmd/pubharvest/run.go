package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/engine"
	"github.com/IshaanNene/pubharvest/internal/observability"
)

var (
	runSource        string
	runFromBeginning bool
	runMaxPages      int
	runTargetCount   int
	runBaseURL       string
)

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest publications for the roster of one source",
		Long: `Process the roster of one source in order: interrupted authors first, then
authors that failed last time, then pending ones. Each author's publication list is
paged, classified, normalized and upserted.

The first SIGINT/SIGTERM finishes the author in flight and stops; a second one
cancels immediately.`,
		Args: cobra.NoArgs,
		RunE: runHarvest,
	}

	cmd.Flags().StringVarP(&runSource, "source", "s", "", "source: scholar, sinta-scholar, sinta-scopus, sinta-garuda")
	cmd.Flags().BoolVar(&runFromBeginning, "from-beginning", false, "also re-process completed authors")
	cmd.Flags().IntVar(&runMaxPages, "max-pages", 0, "maximum listing pages per author (0 = use config)")
	cmd.Flags().IntVarP(&runTargetCount, "target-count", "t", 0, "stop after this many publications (0 = unlimited)")
	cmd.Flags().StringVar(&runBaseURL, "base-url", "", "override the source's site root")

	return cmd
}

// runHarvest executes the run command.
func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(applyRunOverrides)
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
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	opts := []engine.Option{engine.WithMetrics(metrics)}
	if arch != nil {
		opts = append(opts, engine.WithArchive(arch))
	}
	for _, r := range reporters {
		opts = append(opts, engine.WithReporter(r))
	}

	orch, err := engine.Setup(cfg, repo, logger, opts...)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer func() {
		if err := orch.Close(); err != nil {
			logger.Warn("failed to close session provider", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, finishing current author...", "signal", sig)
		orch.Abort()
		sig = <-sigCh
		logger.Warn("received second signal, cancelling", "signal", sig)
		cancel()
	}()

	summary, runErr := orch.Run(ctx, "cli")
	printSummary(summary)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run %s: %w", summary.Status, runErr)
	}
	return nil
}

// applyRunOverrides applies command-line flag values to the config.
func applyRunOverrides(cfg *config.Config) {
	if runSource != "" {
		cfg.Run.Source = runSource
	}
	if runFromBeginning {
		cfg.Run.FromBeginning = true
	}
	if runMaxPages > 0 {
		cfg.Run.MaxPages = runMaxPages
	}
	if runTargetCount > 0 {
		cfg.Run.TargetCount = runTargetCount
	}
	if runBaseURL != "" {
		cfg.Run.BaseURL = runBaseURL
	}
}

func printSummary(s engine.Summary) {
	if s.RunID == "" {
		return
	}
	elapsed := s.Finished.Sub(s.Started).Round(time.Millisecond)

	mark := "✅"
	if s.Status != engine.StatusSuccess {
		mark = "⚠️"
	}
	fmt.Printf("\n%s Run %s %s in %s\n", mark, s.RunID, s.Status, elapsed)
	fmt.Printf("   Source:        %s\n", s.Source)
	fmt.Printf("   Authors:       %d processed, %d with errors\n", s.Counters.AuthorsProcessed, s.Counters.AuthorsWithErrors)
	fmt.Printf("   Publications:  %d fetched, %d created, %d updated, %d failed\n",
		s.Counters.PublicationsFetched, s.Counters.PublicationsCreated,
		s.Counters.PublicationsUpdated, s.Counters.PublicationsFailed)
	if s.Error != "" {
		fmt.Printf("   Error:         %s\n", s.Error)
	}
}
