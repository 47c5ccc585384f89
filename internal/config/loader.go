package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and a .env file.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("PUBHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pubharvest")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".pubharvest"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides resolve for every key.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("run.source", cfg.Run.Source)
	v.SetDefault("run.max_pages", cfg.Run.MaxPages)
	v.SetDefault("run.target_count", cfg.Run.TargetCount)
	v.SetDefault("run.from_beginning", cfg.Run.FromBeginning)
	v.SetDefault("run.dedup_policy", cfg.Run.DedupPolicy)
	v.SetDefault("run.author_backoff_min", cfg.Run.AuthorBackoffMin)
	v.SetDefault("run.author_backoff_max", cfg.Run.AuthorBackoffMax)
	v.SetDefault("run.base_url", cfg.Run.BaseURL)

	v.SetDefault("delays.step_min", cfg.Delays.StepMin)
	v.SetDefault("delays.step_max", cfg.Delays.StepMax)
	v.SetDefault("delays.rate_limit", cfg.Delays.RateLimit)
	v.SetDefault("delays.burst", cfg.Delays.Burst)

	v.SetDefault("session.max_cycles", cfg.Session.MaxCycles)
	v.SetDefault("session.exhausted_sleep_min", cfg.Session.ExhaustedSleepMin)
	v.SetDefault("session.exhausted_sleep_max", cfg.Session.ExhaustedSleepMax)
	v.SetDefault("session.login_timeout", cfg.Session.LoginTimeout)

	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)
	v.SetDefault("browser.user_data_dir", cfg.Browser.UserDataDir)
	v.SetDefault("browser.window_size", cfg.Browser.WindowSize)
	v.SetDefault("browser.bin", cfg.Browser.Bin)

	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)

	v.SetDefault("navigator.wait_timeout", cfg.Navigator.WaitTimeout)
	v.SetDefault("navigator.detail_timeout", cfg.Navigator.DetailTimeout)
	v.SetDefault("navigator.graph_timeout", cfg.Navigator.GraphTimeout)
	v.SetDefault("navigator.max_load_more", cfg.Navigator.MaxLoadMore)
	v.SetDefault("navigator.page_ceiling", cfg.Navigator.PageCeiling)

	v.SetDefault("citations.min_year", cfg.Citations.MinYear)
	v.SetDefault("citations.max_year", cfg.Citations.MaxYear)

	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.name", cfg.Database.Name)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.params", cfg.Database.Params)
	v.SetDefault("database.log_level", cfg.Database.LogLevel)
	v.SetDefault("database.auto_migrate", cfg.Database.AutoMigrate)

	v.SetDefault("archive.output_path", cfg.Archive.OutputPath)
	v.SetDefault("archive.mongo_uri", cfg.Archive.MongoURI)
	v.SetDefault("archive.mongo_database", cfg.Archive.MongoDatabase)
	v.SetDefault("archive.mongo_collection", cfg.Archive.MongoCollection)

	v.SetDefault("progress.amqp_url", cfg.Progress.AMQPURL)
	v.SetDefault("progress.queue", cfg.Progress.Queue)

	v.SetDefault("api.port", cfg.API.Port)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
