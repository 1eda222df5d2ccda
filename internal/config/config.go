// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Ops      OpsConfig      `mapstructure:"ops"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Anomaly  AnomalyConfig  `mapstructure:"anomaly"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// OpsConfig controls the health/metrics HTTP listener.
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CrawlConfig governs scheduler and session behavior.
type CrawlConfig struct {
	Mode       string `mapstructure:"mode"` // light | heavy | both
	Identities int    `mapstructure:"identities"`
	MaxTargets int    `mapstructure:"max_targets"`
	MaxVideos  int    `mapstructure:"max_videos"`
	MaxScrolls int    `mapstructure:"max_scrolls"`
	Budget     int    `mapstructure:"budget"`
	Recrawl    bool   `mapstructure:"recrawl"`
	Topic      string `mapstructure:"topic"`
}

// BrowserConfig configures the Chrome driver.
type BrowserConfig struct {
	Headless         bool    `mapstructure:"headless"`
	UserAgent        string  `mapstructure:"user_agent"`
	BaseURL          string  `mapstructure:"base_url"`
	LoginURL         string  `mapstructure:"login_url"`
	ActionTimeoutSec int     `mapstructure:"action_timeout_seconds"`
	LoginTimeoutSec  int     `mapstructure:"login_timeout_seconds"`
	NavTimeoutSec    int     `mapstructure:"nav_timeout_seconds"`
	NavQPS           float64 `mapstructure:"nav_qps"`
	ThinkMinMillis   int     `mapstructure:"think_min_ms"`
	ThinkMaxMillis   int     `mapstructure:"think_max_ms"`
	SkipLogin        bool    `mapstructure:"skip_login"`
}

// DatabaseConfig controls access to the relational database.
type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"` // postgres | memory
	DSN            string `mapstructure:"dsn"`
	MaxConns       int32  `mapstructure:"max_conns"`
	MinConns       int32  `mapstructure:"min_conns"`
	MaxConnLifeSec int    `mapstructure:"max_conn_life_seconds"`
}

// StorageConfig selects where anomaly snapshots go.
type StorageConfig struct {
	Driver  string `mapstructure:"driver"` // local | memory | none
	BaseDir string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for session summary events.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// AnomalyConfig overrides the detector's keyword lists.
type AnomalyConfig struct {
	ChallengeKeywords []string `mapstructure:"challenge_keywords"`
	RemovedKeywords   []string `mapstructure:"removed_keywords"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TTCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ops.enabled", true)
	v.SetDefault("ops.port", 8080)
	v.SetDefault("crawl.mode", "both")
	v.SetDefault("crawl.identities", 1)
	v.SetDefault("crawl.max_targets", 20)
	v.SetDefault("crawl.max_videos", 10)
	v.SetDefault("crawl.max_scrolls", 3)
	v.SetDefault("crawl.topic", "crawl-sessions")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.base_url", "https://www.tiktok.com")
	v.SetDefault("browser.login_url", "https://www.tiktok.com/login/phone-or-email/email")
	v.SetDefault("browser.action_timeout_seconds", 15)
	v.SetDefault("browser.login_timeout_seconds", 60)
	v.SetDefault("browser.nav_timeout_seconds", 20)
	v.SetDefault("browser.nav_qps", 0.5)
	v.SetDefault("browser.think_min_ms", 800)
	v.SetDefault("browser.think_max_ms", 2600)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.base_dir", "snapshots")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Crawl.Mode {
	case "light", "heavy", "both":
	default:
		return fmt.Errorf("crawl.mode must be light, heavy or both")
	}
	if c.Crawl.Identities <= 0 {
		return fmt.Errorf("crawl.identities must be > 0")
	}
	if c.Crawl.MaxVideos <= 0 {
		return fmt.Errorf("crawl.max_videos must be > 0")
	}
	if c.Ops.Enabled && c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0 when ops is enabled")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be postgres or memory")
	}
	switch c.Storage.Driver {
	case "local", "memory", "none":
	default:
		return fmt.Errorf("storage.driver must be local, memory or none")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required when pubsub is enabled")
	}
	if c.Browser.ThinkMaxMillis < c.Browser.ThinkMinMillis {
		return fmt.Errorf("browser.think_max_ms must be >= browser.think_min_ms")
	}
	return nil
}

// ActionTimeout returns the browser action timeout as a duration.
func (c BrowserConfig) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSec) * time.Second
}

// LoginTimeout returns the login timeout as a duration.
func (c BrowserConfig) LoginTimeout() time.Duration {
	return time.Duration(c.LoginTimeoutSec) * time.Second
}

// NavTimeout returns the navigation confirm timeout as a duration.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// ThinkMin returns the lower human think-time bound.
func (c BrowserConfig) ThinkMin() time.Duration {
	return time.Duration(c.ThinkMinMillis) * time.Millisecond
}

// ThinkMax returns the upper human think-time bound.
func (c BrowserConfig) ThinkMax() time.Duration {
	return time.Duration(c.ThinkMaxMillis) * time.Millisecond
}

// MaxConnLifetime returns the pool connection lifetime.
func (c DatabaseConfig) MaxConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifeSec) * time.Second
}
