package config

import (
	"fmt"
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for pubharvest.
type Config struct {
	Run       RunConfig       `mapstructure:"run"       yaml:"run"`
	Delays    DelayConfig     `mapstructure:"delays"    yaml:"delays"`
	Session   SessionConfig   `mapstructure:"session"   yaml:"session"`
	Browser   BrowserConfig   `mapstructure:"browser"   yaml:"browser"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Proxy     ProxyConfig     `mapstructure:"proxy"     yaml:"proxy"`
	Navigator NavigatorConfig `mapstructure:"navigator" yaml:"navigator"`
	Citations CitationConfig  `mapstructure:"citations" yaml:"citations"`
	Database  DatabaseConfig  `mapstructure:"database"  yaml:"database"`
	Archive   ArchiveConfig   `mapstructure:"archive"   yaml:"archive"`
	Progress  ProgressConfig  `mapstructure:"progress"  yaml:"progress"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
}

// RunConfig controls one orchestrator run.
type RunConfig struct {
	Source           string        `mapstructure:"source"             yaml:"source"`
	MaxPages         int           `mapstructure:"max_pages"          yaml:"max_pages"`
	TargetCount      int           `mapstructure:"target_count"       yaml:"target_count"`
	FromBeginning    bool          `mapstructure:"from_beginning"     yaml:"from_beginning"`
	DedupPolicy      string        `mapstructure:"dedup_policy"       yaml:"dedup_policy"`
	AuthorBackoffMin time.Duration `mapstructure:"author_backoff_min" yaml:"author_backoff_min"`
	AuthorBackoffMax time.Duration `mapstructure:"author_backoff_max" yaml:"author_backoff_max"`
	// BaseURL overrides the source's public site root, e.g. for a mirror.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// DelayConfig controls the randomized pause after every browser interaction.
type DelayConfig struct {
	StepMin   time.Duration `mapstructure:"step_min"   yaml:"step_min"`
	StepMax   time.Duration `mapstructure:"step_max"   yaml:"step_max"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int           `mapstructure:"burst"      yaml:"burst"`
}

// Account is one login credential.
type Account struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// SessionConfig controls credential rotation and recovery.
type SessionConfig struct {
	MaxCycles         int                  `mapstructure:"max_cycles"          yaml:"max_cycles"`
	ExhaustedSleepMin time.Duration        `mapstructure:"exhausted_sleep_min" yaml:"exhausted_sleep_min"`
	ExhaustedSleepMax time.Duration        `mapstructure:"exhausted_sleep_max" yaml:"exhausted_sleep_max"`
	LoginTimeout      time.Duration        `mapstructure:"login_timeout"       yaml:"login_timeout"`
	Accounts          map[string][]Account `mapstructure:"accounts"            yaml:"accounts"`
}

// BrowserConfig controls the headless browser driver.
type BrowserConfig struct {
	Headless    bool   `mapstructure:"headless"      yaml:"headless"`
	Stealth     bool   `mapstructure:"stealth"       yaml:"stealth"`
	UserDataDir string `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	WindowSize  string `mapstructure:"window_size"   yaml:"window_size"`
	Bin         string `mapstructure:"bin"           yaml:"bin"`
}

// FetcherConfig controls the page driver.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
}

// NavigatorConfig bounds the waits used while moving through listings.
type NavigatorConfig struct {
	WaitTimeout   time.Duration `mapstructure:"wait_timeout"   yaml:"wait_timeout"`
	DetailTimeout time.Duration `mapstructure:"detail_timeout" yaml:"detail_timeout"`
	GraphTimeout  time.Duration `mapstructure:"graph_timeout"  yaml:"graph_timeout"`
	MaxLoadMore   int           `mapstructure:"max_load_more"  yaml:"max_load_more"`
	PageCeiling   int           `mapstructure:"page_ceiling"   yaml:"page_ceiling"`
}

// CitationConfig bounds the years accepted from citation graphs.
// A zero MaxYear means the current year.
type CitationConfig struct {
	MinYear int `mapstructure:"min_year" yaml:"min_year"`
	MaxYear int `mapstructure:"max_year" yaml:"max_year"`
}

// DatabaseConfig controls the relational store.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"       yaml:"driver"`
	Host        string `mapstructure:"host"         yaml:"host"`
	Port        int    `mapstructure:"port"         yaml:"port"`
	Name        string `mapstructure:"name"         yaml:"name"`
	User        string `mapstructure:"user"         yaml:"user"`
	Password    string `mapstructure:"password"     yaml:"password"`
	Params      string `mapstructure:"params"       yaml:"params"`
	LogLevel    string `mapstructure:"log_level"    yaml:"log_level"`
	AutoMigrate bool   `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// DSN builds the MySQL data source name.
func (d DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", d.User, d.Password, d.Host, d.Port, d.Name)
	if d.Params != "" {
		dsn += "?" + d.Params
	}
	return dsn
}

// ArchiveConfig controls where raw extracted records are kept.
type ArchiveConfig struct {
	Types           []string `mapstructure:"types"            yaml:"types"`
	OutputPath      string   `mapstructure:"output_path"      yaml:"output_path"`
	MongoURI        string   `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string   `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string   `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// ProgressConfig controls the progress notification channel.
type ProgressConfig struct {
	AMQPURL string `mapstructure:"amqp_url" yaml:"amqp_url"`
	Queue   string `mapstructure:"queue"    yaml:"queue"`
}

// APIConfig controls the control API.
type APIConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Source:           "scholar",
			MaxPages:         50,
			DedupPolicy:      "title_category_year",
			AuthorBackoffMin: 10 * time.Second,
			AuthorBackoffMax: 30 * time.Second,
		},
		Delays: DelayConfig{
			StepMin:   2 * time.Second,
			StepMax:   8 * time.Second,
			RateLimit: 0.5,
			Burst:     1,
		},
		Session: SessionConfig{
			MaxCycles:         3,
			ExhaustedSleepMin: 5 * time.Minute,
			ExhaustedSleepMax: 15 * time.Minute,
			LoginTimeout:      20 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:   true,
			Stealth:    true,
			WindowSize: "1366,768",
		},
		Fetcher: FetcherConfig{
			Type:            "browser",
			RequestTimeout:  45 * time.Second,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			MaxRedirects:    10,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    10,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Proxy: ProxyConfig{
			Enabled:  false,
			Rotation: "round_robin",
		},
		Navigator: NavigatorConfig{
			WaitTimeout:   20 * time.Second,
			DetailTimeout: 10 * time.Second,
			GraphTimeout:  5 * time.Second,
			MaxLoadMore:   100,
			PageCeiling:   10000,
		},
		Citations: CitationConfig{
			MinYear: 1980,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "127.0.0.1",
			Port:     3306,
			Name:     "pubharvest",
			User:     "root",
			Params:   "charset=utf8mb4&parseTime=True&loc=Local",
			LogLevel: "warn",
		},
		Archive: ArchiveConfig{
			OutputPath:      "./output/records.jsonl",
			MongoDatabase:   "pubharvest",
			MongoCollection: "raw_records",
		},
		Progress: ProgressConfig{
			Queue: "pubharvest-progress",
		},
		API: APIConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// YearWindow returns the inclusive citation year window for the given current year.
func (c CitationConfig) YearWindow(currentYear int) (int, int) {
	max := c.MaxYear
	if max == 0 {
		max = currentYear
	}
	return c.MinYear, max
}
