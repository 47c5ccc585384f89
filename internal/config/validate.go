package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/IshaanNene/pubharvest/internal/types"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if _, err := types.ParseSource(cfg.Run.Source); err != nil {
		return fmt.Errorf("run.source %q is not supported (valid: %s)", cfg.Run.Source, sourceList())
	}
	if cfg.Run.MaxPages < 0 {
		return fmt.Errorf("run.max_pages must be >= 0, got %d", cfg.Run.MaxPages)
	}
	if cfg.Run.TargetCount < 0 {
		return fmt.Errorf("run.target_count must be >= 0, got %d", cfg.Run.TargetCount)
	}
	if cfg.Run.DedupPolicy != "title_category_year" && cfg.Run.DedupPolicy != "title" {
		return fmt.Errorf("run.dedup_policy must be 'title_category_year' or 'title', got %q", cfg.Run.DedupPolicy)
	}
	if cfg.Run.AuthorBackoffMin < 0 || cfg.Run.AuthorBackoffMax < cfg.Run.AuthorBackoffMin {
		return fmt.Errorf("run.author_backoff range is invalid: %s..%s", cfg.Run.AuthorBackoffMin, cfg.Run.AuthorBackoffMax)
	}
	if cfg.Run.BaseURL != "" {
		if err := ValidateURL(cfg.Run.BaseURL); err != nil {
			return fmt.Errorf("run.base_url: %w", err)
		}
	}

	if cfg.Delays.StepMin < 0 || cfg.Delays.StepMax < cfg.Delays.StepMin {
		return fmt.Errorf("delays.step range is invalid: %s..%s", cfg.Delays.StepMin, cfg.Delays.StepMax)
	}
	if cfg.Delays.RateLimit < 0 {
		return fmt.Errorf("delays.rate_limit must be >= 0")
	}

	if cfg.Session.MaxCycles < 1 {
		return fmt.Errorf("session.max_cycles must be >= 1, got %d", cfg.Session.MaxCycles)
	}
	if cfg.Session.ExhaustedSleepMin < 0 || cfg.Session.ExhaustedSleepMax < cfg.Session.ExhaustedSleepMin {
		return fmt.Errorf("session.exhausted_sleep range is invalid: %s..%s",
			cfg.Session.ExhaustedSleepMin, cfg.Session.ExhaustedSleepMax)
	}
	for src, accounts := range cfg.Session.Accounts {
		if _, err := types.ParseSource(src); err != nil {
			return fmt.Errorf("session.accounts: unknown source %q", src)
		}
		for i, a := range accounts {
			if a.Username == "" {
				return fmt.Errorf("session.accounts.%s[%d]: username is required", src, i)
			}
		}
	}

	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Navigator.WaitTimeout <= 0 || cfg.Navigator.DetailTimeout <= 0 {
		return fmt.Errorf("navigator timeouts must be > 0")
	}
	if cfg.Navigator.PageCeiling < 1 {
		return fmt.Errorf("navigator.page_ceiling must be >= 1, got %d", cfg.Navigator.PageCeiling)
	}

	if cfg.Citations.MaxYear != 0 && cfg.Citations.MaxYear < cfg.Citations.MinYear {
		return fmt.Errorf("citations.max_year (%d) is before citations.min_year (%d)",
			cfg.Citations.MaxYear, cfg.Citations.MinYear)
	}

	if cfg.Database.Driver != "mysql" && cfg.Database.Driver != "memory" {
		return fmt.Errorf("database.driver must be 'mysql' or 'memory', got %q", cfg.Database.Driver)
	}

	for _, t := range cfg.Archive.Types {
		switch t {
		case "jsonl":
		case "mongodb":
			if cfg.Archive.MongoURI == "" {
				return fmt.Errorf("archive.mongo_uri is required for the mongodb archive")
			}
		default:
			return fmt.Errorf("archive type %q is not supported (valid: jsonl, mongodb)", t)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be 1-65535, got %d", cfg.API.Port)
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is usable as a profile URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

func sourceList() string {
	names := make([]string, 0, len(types.Sources()))
	for _, s := range types.Sources() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
