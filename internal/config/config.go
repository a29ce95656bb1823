// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	DB        DBConfig        `mapstructure:"db"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CaptureConfig governs the capture pipeline.
type CaptureConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Concurrency        int    `mapstructure:"concurrency"`
	QueueDepth         int    `mapstructure:"queue_depth"`
	UserAgent          string `mapstructure:"user_agent"`
	PageTimeoutSec     int    `mapstructure:"page_timeout_seconds"`
	ResourceTimeoutSec int    `mapstructure:"resource_timeout_seconds"`
	CSSTimeoutSec      int    `mapstructure:"css_timeout_seconds"`
	MaxParallelFetches int    `mapstructure:"max_parallel_fetches"`
	SendImages         bool   `mapstructure:"send_images"`
	SendDocument       bool   `mapstructure:"send_document"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	MaxParallel    int  `mapstructure:"max_parallel"`
	NavTimeoutSec  int  `mapstructure:"nav_timeout_seconds"`
	SettleMillis   int  `mapstructure:"settle_millis"`
	ViewportWidth  int  `mapstructure:"viewport_width"`
	ViewportHeight int  `mapstructure:"viewport_height"`
	DomainQPS      int  `mapstructure:"domain_qps"`
}

// ArtifactsConfig sets where page directories live and how long they last.
type ArtifactsConfig struct {
	Root             string `mapstructure:"root"`
	DeleteAfterSec   int    `mapstructure:"delete_after_seconds"`
	SweepIntervalSec int    `mapstructure:"sweep_interval_seconds"`
	MaxAgeSec        int    `mapstructure:"max_age_seconds"`
}

// DBConfig controls access to the relational capture store.
type DBConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// ArchiveConfig sets paths and content types for document archiving.
type ArchiveConfig struct {
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGESNAP")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("capture.enabled", true)
	v.SetDefault("capture.concurrency", 2)
	v.SetDefault("capture.queue_depth", 64)
	v.SetDefault("capture.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("capture.page_timeout_seconds", 30)
	v.SetDefault("capture.resource_timeout_seconds", 10)
	v.SetDefault("capture.css_timeout_seconds", 5)
	v.SetDefault("capture.max_parallel_fetches", 8)
	v.SetDefault("capture.send_images", true)
	v.SetDefault("capture.send_document", true)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.settle_millis", 2000)
	v.SetDefault("headless.viewport_width", 1920)
	v.SetDefault("headless.viewport_height", 1080)
	v.SetDefault("headless.domain_qps", 2)
	v.SetDefault("artifacts.root", "")
	v.SetDefault("artifacts.delete_after_seconds", 300)
	v.SetDefault("artifacts.sweep_interval_seconds", 1800)
	v.SetDefault("artifacts.max_age_seconds", 3600)
	v.SetDefault("db.enabled", false)
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Capture.Concurrency <= 0 {
		return fmt.Errorf("capture.concurrency must be > 0")
	}
	if c.Capture.PageTimeoutSec <= 0 {
		return fmt.Errorf("capture.page_timeout_seconds must be > 0")
	}
	if c.Capture.ResourceTimeoutSec > c.Capture.PageTimeoutSec {
		return fmt.Errorf("capture.resource_timeout_seconds must not exceed capture.page_timeout_seconds")
	}
	if c.Capture.CSSTimeoutSec > c.Capture.PageTimeoutSec {
		return fmt.Errorf("capture.css_timeout_seconds must not exceed capture.page_timeout_seconds")
	}
	if c.Capture.MaxParallelFetches <= 0 {
		return fmt.Errorf("capture.max_parallel_fetches must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Artifacts.SweepIntervalSec <= 0 {
		return fmt.Errorf("artifacts.sweep_interval_seconds must be > 0")
	}
	if c.DB.Enabled && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// PageTimeout returns the probe fetch budget for the main document.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.Capture.PageTimeoutSec) * time.Second
}

// ResourceTimeout returns the fetch budget for images, stylesheets, and scripts.
func (c Config) ResourceTimeout() time.Duration {
	return time.Duration(c.Capture.ResourceTimeoutSec) * time.Second
}

// CSSTimeout returns the fetch budget for resources referenced inside CSS.
func (c Config) CSSTimeout() time.Duration {
	return time.Duration(c.Capture.CSSTimeoutSec) * time.Second
}

// DeleteAfter returns how long a page directory lives once delivered.
func (c Config) DeleteAfter() time.Duration {
	return time.Duration(c.Artifacts.DeleteAfterSec) * time.Second
}

// SweepInterval returns how often the retention janitor wakes up.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Artifacts.SweepIntervalSec) * time.Second
}

// MaxArtifactAge returns the age past which a sweep removes page directories.
func (c Config) MaxArtifactAge() time.Duration {
	return time.Duration(c.Artifacts.MaxAgeSec) * time.Second
}
