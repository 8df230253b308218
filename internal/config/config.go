// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...Option) initializer to build a Config with defaults.
// - Loading functions accept context.Context as the first parameter.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"regexp"
	"slices"
	"time"
)

// Store drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// MaxRankingLimit is the most bars a ranking chart can hold.
const MaxRankingLimit = 10

var metricNamePart = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the event store backend: file or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// DataDir is the root directory of the file backend.
	DataDir string `koanf:"data_dir"`

	// SQLitePath is the database file of the sqlite backend.
	SQLitePath string `koanf:"sqlite_path"`

	// TimezoneOffsetMinutes shifts timestamps before bucketing contributions by day.
	TimezoneOffsetMinutes int `koanf:"timezone_offset_minutes"`

	// RankingLimit caps the number of bars in a ranking chart.
	RankingLimit int `koanf:"ranking_limit"`

	// DedupeSize sets how many idempotency keys are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// DiscordToken enables display name lookups through the Discord API.
	DiscordToken string `koanf:"discord_token"`

	NameCacheSize       int `koanf:"name_cache_size"`
	NameCacheTTLSeconds int `koanf:"name_cache_ttl_seconds"`
	NameLookupTimeoutMS int `koanf:"name_lookup_timeout_ms"`

	// RenderRatePerSec caps image-rendering requests per second; 0 disables the cap.
	RenderRatePerSec float64 `koanf:"render_rate_per_sec"`
	RenderBurst      int     `koanf:"render_burst"`

	// Metrics naming and latency histogram buckets (milliseconds).
	MetricsNamespace string    `koanf:"metrics_namespace"`
	MetricsSubsystem string    `koanf:"metrics_subsystem"`
	MetricsBucketsMS []float64 `koanf:"metrics_buckets_ms"`

	// ReconcileOnStart rewrites counters from the event logs at startup.
	ReconcileOnStart bool `koanf:"reconcile_on_start"`
}

// Option mutates a Config built by New.
type Option func(*Config)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) { c.Addr = addr }
}

// WithStoreDriver overrides the store backend.
func WithStoreDriver(driver string) Option {
	return func(c *Config) { c.StoreDriver = driver }
}

// WithDataDir overrides the file backend root.
func WithDataDir(dir string) Option {
	return func(c *Config) { c.DataDir = dir }
}

// New creates a Config with defaults and applies opts.
func New(opts ...Option) *Config {
	c := &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		StoreDriver:           DriverFile,
		DataDir:               "./data",
		SQLitePath:            "./data/tally.sqlite",
		TimezoneOffsetMinutes: 540,
		RankingLimit:          MaxRankingLimit,
		DedupeSize:            10_000,
		NameCacheSize:         1024,
		NameCacheTTLSeconds:   600,
		NameLookupTimeoutMS:   2000,
		RenderBurst:           5,
		MetricsNamespace:      "tally",
		MetricsSubsystem:      "counter",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NameCacheTTL returns the resolver cache TTL as a duration.
func (c *Config) NameCacheTTL() time.Duration {
	return time.Duration(c.NameCacheTTLSeconds) * time.Second
}

// NameLookupTimeout returns the per-lookup bound as a duration.
func (c *Config) NameLookupTimeout() time.Duration {
	return time.Duration(c.NameLookupTimeoutMS) * time.Millisecond
}

// Validate checks field ranges. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != DriverFile && c.StoreDriver != DriverSQLite:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == DriverFile && c.DataDir == "":
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	case c.StoreDriver == DriverSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	case c.RankingLimit < 1 || c.RankingLimit > MaxRankingLimit:
		return fmt.Errorf("%w: ranking_limit must be within 1..%d", ErrInvalidConfig, MaxRankingLimit)
	case c.TimezoneOffsetMinutes < -14*60 || c.TimezoneOffsetMinutes > 14*60:
		return fmt.Errorf("%w: timezone_offset_minutes out of range", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.NameCacheSize <= 0:
		return fmt.Errorf("%w: name_cache_size must be positive", ErrInvalidConfig)
	case c.NameLookupTimeoutMS <= 0:
		return fmt.Errorf("%w: name_lookup_timeout_ms must be positive", ErrInvalidConfig)
	case c.RenderRatePerSec < 0:
		return fmt.Errorf("%w: render_rate_per_sec must not be negative", ErrInvalidConfig)
	case c.RenderRatePerSec > 0 && c.RenderBurst < 1:
		return fmt.Errorf("%w: render_burst must be positive", ErrInvalidConfig)
	case !metricNamePart.MatchString(c.MetricsNamespace) || !metricNamePart.MatchString(c.MetricsSubsystem):
		return fmt.Errorf("%w: metrics_namespace and metrics_subsystem must be metric name parts", ErrInvalidConfig)
	case !increasing(c.MetricsBucketsMS):
		return fmt.Errorf("%w: metrics_buckets_ms must be strictly increasing", ErrInvalidConfig)
	}
	return nil
}

func increasing(buckets []float64) bool {
	return slices.IsSorted(buckets) && len(slices.Compact(slices.Clone(buckets))) == len(buckets)
}
