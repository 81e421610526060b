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
	Apify     ApifyConfig     `mapstructure:"apify"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// RequestTimeoutSeconds bounds a whole request, orchestration included.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// ApifyConfig describes how to reach the job-execution service.
type ApifyConfig struct {
	BaseURL            string  `mapstructure:"base_url"`
	Token              string  `mapstructure:"token"`
	Actor              string  `mapstructure:"actor"`
	ResultsLimit       int     `mapstructure:"results_limit"`
	HTTPTimeoutSeconds int     `mapstructure:"http_timeout_seconds"`
	MaxRPS             float64 `mapstructure:"max_rps"`
	Burst              int     `mapstructure:"burst"`
}

// ScrapeConfig bounds the poll loop.
type ScrapeConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Budget       time.Duration `mapstructure:"budget"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ProgressConfig controls the progress hub and its sinks.
type ProgressConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	LogEnabled    bool                `mapstructure:"log_enabled"`
	BufferSize    int                 `mapstructure:"buffer_size"`
	Batch         ProgressBatchConfig `mapstructure:"batch"`
	SinkTimeoutMs int                 `mapstructure:"sink_timeout_ms"`
}

// ProgressBatchConfig sets hub flush thresholds.
type ProgressBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// DatabaseConfig selects the run log backend. An empty DSN keeps the log in memory.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	ServiceName    string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

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

// bindLegacyEnv keeps the bare PORT and API_TOKEN variables working; the
// prefixed names still take precedence.
func bindLegacyEnv(v *viper.Viper) error {
	if err := v.BindEnv("server.port", "SCRAPER_SERVER_PORT", "PORT"); err != nil {
		return fmt.Errorf("bind server.port env: %w", err)
	}
	if err := v.BindEnv("apify.token", "SCRAPER_APIFY_TOKEN", "API_TOKEN"); err != nil {
		return fmt.Errorf("bind apify.token env: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.request_timeout_seconds", 660)
	v.SetDefault("apify.base_url", "https://api.apify.com")
	v.SetDefault("apify.token", "")
	v.SetDefault("apify.actor", "zuzka~instagram-post-scraper")
	v.SetDefault("apify.results_limit", 20)
	v.SetDefault("apify.http_timeout_seconds", 30)
	v.SetDefault("apify.max_rps", 0)
	v.SetDefault("apify.burst", 1)
	v.SetDefault("scrape.poll_interval", "5s")
	v.SetDefault("scrape.budget", "10m")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", false)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch.max_events", 256)
	v.SetDefault("progress.batch.max_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.migrate", true)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "post-scraper")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Apify.BaseURL == "" {
		return fmt.Errorf("apify.base_url must be set")
	}
	if c.Apify.Actor == "" {
		return fmt.Errorf("apify.actor must be set")
	}
	if c.Apify.ResultsLimit <= 0 {
		return fmt.Errorf("apify.results_limit must be > 0")
	}
	if c.Apify.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("apify.http_timeout_seconds must be > 0")
	}
	if c.Apify.MaxRPS < 0 {
		return fmt.Errorf("apify.max_rps must be >= 0")
	}
	if c.Apify.MaxRPS > 0 && c.Apify.Burst <= 0 {
		return fmt.Errorf("apify.burst must be > 0 when max_rps is set")
	}
	if c.Scrape.PollInterval <= 0 {
		return fmt.Errorf("scrape.poll_interval must be > 0")
	}
	if c.Scrape.Budget < c.Scrape.PollInterval {
		return fmt.Errorf("scrape.budget must be >= scrape.poll_interval")
	}
	if c.Progress.Enabled && c.Progress.BufferSize <= 0 {
		return fmt.Errorf("progress.buffer_size must be > 0 when progress is enabled")
	}
	return nil
}

// RequestTimeout returns the per-request deadline for the HTTP surface.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// HTTPTimeout returns the per-call timeout of the remote client.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Apify.HTTPTimeoutSeconds) * time.Second
}
