// Package config loads sync-core configuration from a TOML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds everything the sync daemon needs to run.
type Config struct {
	// ServiceURL is the base URL of the paper service.
	ServiceURL string

	// PerPage is the default page size for paginated collections.
	PerPage int

	// PollInterval is the background poll cadence for active jobs.
	PollInterval time.Duration

	// GuardTTL is how long a manual edit suppresses derived mutations.
	GuardTTL time.Duration

	// TransitionWindow is how long a filtered-out entity stays visible
	// before its list refreshes.
	TransitionWindow time.Duration

	// CacheTTL is how long cached pages stay fresh. Zero disables caching.
	CacheTTL time.Duration

	// RedisAddr is the page-cache Redis address. Empty disables caching.
	RedisAddr string

	// MetricsBind is the address for the health and metrics listener.
	MetricsBind string

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string

	// LogPretty enables human-readable console output.
	LogPretty bool
}

const (
	defaultPerPage          = 20
	defaultPollInterval     = 5 * time.Second
	defaultGuardTTL         = 5 * time.Second
	defaultTransitionWindow = 300 * time.Millisecond
	defaultCacheTTL         = time.Minute
	defaultMetricsBind      = "127.0.0.1:9187"
	defaultLogLevel         = "info"
)

// Default returns the built-in configuration. ServiceURL is intentionally
// empty; callers must provide it via file or environment.
func Default() Config {
	return Config{
		PerPage:          defaultPerPage,
		PollInterval:     defaultPollInterval,
		GuardTTL:         defaultGuardTTL,
		TransitionWindow: defaultTransitionWindow,
		CacheTTL:         defaultCacheTTL,
		MetricsBind:      defaultMetricsBind,
		LogLevel:         defaultLogLevel,
	}
}

// Load parses the TOML file at path, applies environment overrides, and
// validates the result. A missing file is not an error; defaults plus
// environment overrides are used instead.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else if err := applyTOML(&cfg, data); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyTOML(cfg *Config, data []byte) error {
	var raw struct {
		Service struct {
			URL          string `toml:"url"`
			PerPage      int    `toml:"per_page"`
			PollInterval string `toml:"poll_interval"`
		} `toml:"service"`
		Sync struct {
			GuardTTL         string `toml:"guard_ttl"`
			TransitionWindow string `toml:"transition_window"`
		} `toml:"sync"`
		Cache struct {
			RedisAddr string `toml:"redis_addr"`
			TTL       string `toml:"ttl"`
		} `toml:"cache"`
		Log struct {
			Level  string `toml:"level"`
			Pretty bool   `toml:"pretty"`
		} `toml:"log"`
		Metrics struct {
			Bind string `toml:"bind"`
		} `toml:"metrics"`
	}

	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if s := strings.TrimSpace(raw.Service.URL); s != "" {
		cfg.ServiceURL = s
	}
	if raw.Service.PerPage != 0 {
		cfg.PerPage = raw.Service.PerPage
	}
	if err := setDuration(&cfg.PollInterval, raw.Service.PollInterval, "service.poll_interval"); err != nil {
		return err
	}
	if err := setDuration(&cfg.GuardTTL, raw.Sync.GuardTTL, "sync.guard_ttl"); err != nil {
		return err
	}
	if err := setDuration(&cfg.TransitionWindow, raw.Sync.TransitionWindow, "sync.transition_window"); err != nil {
		return err
	}
	if s := strings.TrimSpace(raw.Cache.RedisAddr); s != "" {
		cfg.RedisAddr = s
	}
	if err := setDuration(&cfg.CacheTTL, raw.Cache.TTL, "cache.ttl"); err != nil {
		return err
	}
	if s := strings.TrimSpace(raw.Log.Level); s != "" {
		cfg.LogLevel = s
	}
	if raw.Log.Pretty {
		cfg.LogPretty = true
	}
	if s := strings.TrimSpace(raw.Metrics.Bind); s != "" {
		cfg.MetricsBind = s
	}
	return nil
}

func setDuration(dst *time.Duration, value, field string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	*dst = d
	return nil
}

// applyEnv overrides file values with DORESEARCH_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DORESEARCH_SERVICE_URL"); v != "" {
		cfg.ServiceURL = v
	}
	if v := os.Getenv("DORESEARCH_PER_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PerPage = n
		}
	}
	if v := os.Getenv("DORESEARCH_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("DORESEARCH_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("DORESEARCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DORESEARCH_METRICS_BIND"); v != "" {
		cfg.MetricsBind = v
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ServiceURL) == "" {
		return fmt.Errorf("service.url is required")
	}
	if c.PerPage < 1 {
		return fmt.Errorf("service.per_page must be positive, got %d", c.PerPage)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("service.poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.GuardTTL <= 0 {
		return fmt.Errorf("sync.guard_ttl must be positive, got %s", c.GuardTTL)
	}
	if c.TransitionWindow < 0 {
		return fmt.Errorf("sync.transition_window must not be negative, got %s", c.TransitionWindow)
	}
	return nil
}

// CacheEnabled reports whether a Redis page cache should be wired in.
func (c Config) CacheEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != "" && c.CacheTTL > 0
}
