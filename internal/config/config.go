// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// emailPattern is the structural check EDGAR requires of the identifying
// User-Agent header.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Edgar    EdgarConfig    `mapstructure:"edgar"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// EdgarConfig identifies the archive, the date range and the output root.
type EdgarConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`
	DataDir   string `mapstructure:"data_dir"`
	FormType  string `mapstructure:"form_type"`
}

// FetchConfig governs download concurrency, rate limiting and retries.
type FetchConfig struct {
	Concurrency      int  `mapstructure:"concurrency"`
	RateIntervalMs   int  `mapstructure:"rate_interval_ms"`
	TimeoutSeconds   int  `mapstructure:"timeout_seconds"`
	MaxRetries       int  `mapstructure:"max_retries"`
	BackoffInitialMs int  `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int  `mapstructure:"backoff_max_ms"`
	RetryFailed      bool `mapstructure:"retry_failed"`
}

// ManifestConfig selects and configures the manifest backend.
type ManifestConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EDGAR")
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
	v.SetDefault("edgar.base_url", "https://www.sec.gov")
	v.SetDefault("edgar.start_date", "1993-01-01")
	v.SetDefault("edgar.end_date", time.Now().Format(time.DateOnly))
	v.SetDefault("edgar.data_dir", "./sec-data/data")
	v.SetDefault("edgar.form_type", "10-K")
	v.SetDefault("fetch.concurrency", 5)
	v.SetDefault("fetch.rate_interval_ms", 100)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 2000)
	v.SetDefault("fetch.retry_failed", true)
	v.SetDefault("manifest.backend", "csv")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values before any network activity.
func (c Config) Validate() error {
	if !emailPattern.MatchString(c.Edgar.UserAgent) {
		return fmt.Errorf("edgar.user_agent must be a valid email address, got %q", c.Edgar.UserAgent)
	}
	if c.Edgar.DataDir == "" {
		return fmt.Errorf("edgar.data_dir must be set")
	}
	if _, _, err := c.DateRange(); err != nil {
		return err
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	switch c.Manifest.Backend {
	case "csv":
	case "postgres":
		if c.Manifest.DSN == "" {
			return fmt.Errorf("manifest.dsn must be set when manifest.backend is postgres")
		}
	default:
		return fmt.Errorf("manifest.backend must be csv or postgres, got %q", c.Manifest.Backend)
	}
	return nil
}

// DateRange parses the configured start and end dates.
func (c Config) DateRange() (start, end time.Time, err error) {
	start, err = time.Parse(time.DateOnly, c.Edgar.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("edgar.start_date: %w", err)
	}
	end, err = time.Parse(time.DateOnly, c.Edgar.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("edgar.end_date: %w", err)
	}
	return start, end, nil
}

// RateInterval converts the configured interval to a duration.
func (c Config) RateInterval() time.Duration {
	return time.Duration(c.Fetch.RateIntervalMs) * time.Millisecond
}

// Timeout converts the configured HTTP timeout to a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the initial retry backoff to a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Fetch.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the retry backoff ceiling to a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Fetch.BackoffMaxMs) * time.Millisecond
}
