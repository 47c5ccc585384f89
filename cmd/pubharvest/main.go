package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/pubharvest/internal/archive"
	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/progress"
	"github.com/IshaanNene/pubharvest/internal/store"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pubharvest",
		Short: "pubharvest: faculty publication metadata harvester",
		Long: `pubharvest collects publication metadata for a roster of faculty authors from
Google Scholar and SINTA (Scholar, Scopus and Garuda views) and writes it into a
normalized relational store.

Features:
  • Resumable roster processing with per-author status
  • Credential rotation with challenge recovery
  • Publication classification and venue parsing
  • Idempotent upserts with citation counts that only go up
  • Raw record archive (JSONL, MongoDB)
  • Run control API and Prometheus metrics`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(rosterCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration, then builds the logger from it.
func loadConfig(overrides ...func(*config.Config)) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	for _, apply := range overrides {
		apply(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, setupLogger(cfg.Logging), nil
}

// openStore connects the repository selected by the database section.
func openStore(cfg *config.Config, logger *slog.Logger) (store.Repository, error) {
	repo, err := store.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return repo, nil
}

// openOutputs builds the raw-record archive and the external progress reporters.
// The returned close function releases both.
func openOutputs(cfg *config.Config, logger *slog.Logger) (archive.Archive, []progress.Reporter, func(), error) {
	arch, err := archive.New(cfg.Archive, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open archive: %w", err)
	}

	reporters := []progress.Reporter{progress.NewLogReporter(logger)}
	if cfg.Progress.AMQPURL != "" {
		pub, err := progress.NewAMQPReporter(cfg.Progress.AMQPURL, cfg.Progress.Queue, logger)
		if err != nil {
			logger.Warn("progress queue unavailable, continuing without it", "error", err)
		} else {
			reporters = append(reporters, pub)
		}
	}

	closeAll := func() {
		for _, r := range reporters {
			if err := r.Close(); err != nil {
				logger.Warn("failed to close progress reporter", "error", err)
			}
		}
		if arch != nil {
			if err := arch.Close(); err != nil {
				logger.Warn("failed to close archive", "error", err)
			}
		}
	}
	return arch, reporters, closeAll, nil
}

// migrateCmd creates the "migrate" subcommand.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Printf("Schema is up to date (%s)\n", cfg.Database.Name)
			return nil
		},
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pubharvest %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Run:\n")
			fmt.Printf("  Source:            %s\n", cfg.Run.Source)
			fmt.Printf("  Max Pages:         %d\n", cfg.Run.MaxPages)
			fmt.Printf("  Target Count:      %d\n", cfg.Run.TargetCount)
			fmt.Printf("  From Beginning:    %v\n", cfg.Run.FromBeginning)
			fmt.Printf("  Dedup Policy:      %s\n", cfg.Run.DedupPolicy)
			fmt.Printf("  Author Backoff:    %s - %s\n", cfg.Run.AuthorBackoffMin, cfg.Run.AuthorBackoffMax)
			if cfg.Run.BaseURL != "" {
				fmt.Printf("  Base URL:          %s\n", cfg.Run.BaseURL)
			}
			fmt.Printf("\nDelays:\n")
			fmt.Printf("  Step:              %s - %s\n", cfg.Delays.StepMin, cfg.Delays.StepMax)
			fmt.Printf("  Rate Limit:        %.2f/s (burst %d)\n", cfg.Delays.RateLimit, cfg.Delays.Burst)
			fmt.Printf("\nSession:\n")
			fmt.Printf("  Max Cycles:        %d\n", cfg.Session.MaxCycles)
			fmt.Printf("  Login Timeout:     %s\n", cfg.Session.LoginTimeout)
			for key, accounts := range cfg.Session.Accounts {
				fmt.Printf("  Accounts (%s):  %d configured\n", key, len(accounts))
			}
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Type:              %s\n", cfg.Fetcher.Type)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Headless:          %v\n", cfg.Browser.Headless)
			fmt.Printf("  Stealth:           %v\n", cfg.Browser.Stealth)
			fmt.Printf("\nProxy:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Proxy.Enabled)
			fmt.Printf("  Rotation:          %s\n", cfg.Proxy.Rotation)
			fmt.Printf("  Count:             %d\n", len(cfg.Proxy.URLs))
			fmt.Printf("\nDatabase:\n")
			fmt.Printf("  Driver:            %s\n", cfg.Database.Driver)
			fmt.Printf("  Host:              %s:%d\n", cfg.Database.Host, cfg.Database.Port)
			fmt.Printf("  Name:              %s\n", cfg.Database.Name)
			fmt.Printf("\nArchive:\n")
			fmt.Printf("  Types:             %s\n", strings.Join(cfg.Archive.Types, ", "))
			fmt.Printf("\nAPI:\n")
			fmt.Printf("  Port:              %d\n", cfg.API.Port)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
	return cmd
}

// setupLogger creates a structured logger from the logging section.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
