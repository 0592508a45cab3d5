package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jonwraymond/mealgen/observe"
)

var (
	// ErrInvalid is returned by Validate.
	ErrInvalid = errors.New("config: invalid configuration")

	// ErrMissingEnv is returned when a ${VAR} reference is unset.
	ErrMissingEnv = errors.New("config: missing required environment variables")
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// ValidBackends lists the supported cache store backends.
var ValidBackends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendRedis}

// Config is the complete runtime configuration.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Signature SignatureConfig `mapstructure:"signature"`
	Store     StoreConfig     `mapstructure:"store"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Observe   ObserveConfig   `mapstructure:"observe"`
}

type ServiceConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// BudgetConfig sizes the fixed-window call budget.
type BudgetConfig struct {
	WindowMS    int `mapstructure:"window_ms"`
	UserLimit   int `mapstructure:"user_limit"`
	GlobalLimit int `mapstructure:"global_limit"`
}

// Window returns WindowMS as a duration.
func (b BudgetConfig) Window() time.Duration {
	return Millis(b.WindowMS)
}

type SignatureConfig struct {
	// DigestLength is the number of hex characters kept; 0 keeps the full digest.
	DigestLength int `mapstructure:"digest_length"`
}

// StoreConfig selects and tunes the cache store backend.
type StoreConfig struct {
	Backend string      `mapstructure:"backend"` // memory|sqlite|postgres|redis
	DSN     string      `mapstructure:"dsn"`
	Migrate bool        `mapstructure:"migrate"`
	Pool    PoolConfig  `mapstructure:"pool"`
	Redis   RedisConfig `mapstructure:"redis"`
	Sweep   SweepConfig `mapstructure:"sweep"`
}

type PoolConfig struct {
	MaxOpen       int `mapstructure:"max_open"`
	MaxIdle       int `mapstructure:"max_idle"`
	MaxLifetimeMS int `mapstructure:"max_lifetime_ms"`
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Prefix    string `mapstructure:"prefix"`
	IdleTTLMS int    `mapstructure:"idle_ttl_ms"`
}

// SweepConfig enables idle eviction. A zero MaxIdleMS disables it.
type SweepConfig struct {
	MaxIdleMS  int `mapstructure:"max_idle_ms"`
	IntervalMS int `mapstructure:"interval_ms"`
}

// GeneratorConfig configures the upstream generator and its guards.
type GeneratorConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	APIKey           string `mapstructure:"api_key"`
	TimeoutMS        int    `mapstructure:"timeout_ms"`
	MaxConcurrent    int    `mapstructure:"max_concurrent"`
	MaxWaitMS        int    `mapstructure:"max_wait_ms"`
	MaxFailures      int    `mapstructure:"max_failures"`
	ResetTimeoutMS   int    `mapstructure:"reset_timeout_ms"`
	MaxResponseBytes int64  `mapstructure:"max_response_bytes"`
}

type ObserveConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type TracingConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Exporter  string  `mapstructure:"exporter"`
	SamplePct float64 `mapstructure:"sample_pct"`
}

type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

type LoggingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// defaults is keyed by viper path. Every key is registered so that
// environment variables can override values absent from the file.
var defaults = map[string]any{
	"service.name":    "mealgen",
	"service.version": "dev",

	"budget.window_ms":    60000,
	"budget.user_limit":   60,
	"budget.global_limit": 1000,

	"signature.digest_length": 0,

	"store.backend":              BackendMemory,
	"store.dsn":                  "",
	"store.migrate":              true,
	"store.pool.max_open":        10,
	"store.pool.max_idle":        5,
	"store.pool.max_lifetime_ms": 1800000,
	"store.redis.address":        "localhost:6379",
	"store.redis.password":       "",
	"store.redis.db":             0,
	"store.redis.prefix":         "mealgen:cache:",
	"store.redis.idle_ttl_ms":    0,
	"store.sweep.max_idle_ms":    0,
	"store.sweep.interval_ms":    300000,

	"generator.endpoint":           "",
	"generator.api_key":            "",
	"generator.timeout_ms":         60000,
	"generator.max_concurrent":     10,
	"generator.max_wait_ms":        0,
	"generator.max_failures":       5,
	"generator.reset_timeout_ms":   30000,
	"generator.max_response_bytes": 1 << 20,

	"observe.tracing.enabled":      false,
	"observe.tracing.exporter":     "none",
	"observe.tracing.sample_pct":   1.0,
	"observe.metrics.enabled":      false,
	"observe.metrics.exporter":     "none",
	"observe.logging.enabled":      true,
	"observe.logging.level":        "info",
	"observe.logging.format":       "json",
	"observe.logging.file":         "",
	"observe.logging.max_size_mb":  100,
	"observe.logging.max_backups":  3,
	"observe.logging.max_age_days": 28,
	"observe.logging.compress":     false,
}

// Validate checks backend names, exporter names and numeric ranges.
func (c *Config) Validate() error {
	if !slices.Contains(ValidBackends, c.Store.Backend) {
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalid, c.Store.Backend)
	}
	if (c.Store.Backend == BackendSQLite || c.Store.Backend == BackendPostgres) && c.Store.DSN == "" {
		return fmt.Errorf("%w: store.dsn is required for %s", ErrInvalid, c.Store.Backend)
	}
	if c.Store.Backend == BackendRedis && c.Store.Redis.Address == "" {
		return fmt.Errorf("%w: store.redis.address is required", ErrInvalid)
	}

	for name, v := range map[string]int{
		"budget.window_ms":           c.Budget.WindowMS,
		"budget.user_limit":          c.Budget.UserLimit,
		"budget.global_limit":        c.Budget.GlobalLimit,
		"signature.digest_length":    c.Signature.DigestLength,
		"store.pool.max_open":        c.Store.Pool.MaxOpen,
		"store.pool.max_idle":        c.Store.Pool.MaxIdle,
		"store.pool.max_lifetime_ms": c.Store.Pool.MaxLifetimeMS,
		"store.redis.idle_ttl_ms":    c.Store.Redis.IdleTTLMS,
		"store.sweep.max_idle_ms":    c.Store.Sweep.MaxIdleMS,
		"store.sweep.interval_ms":    c.Store.Sweep.IntervalMS,
		"generator.timeout_ms":       c.Generator.TimeoutMS,
		"generator.max_concurrent":   c.Generator.MaxConcurrent,
		"generator.max_wait_ms":      c.Generator.MaxWaitMS,
		"generator.max_failures":     c.Generator.MaxFailures,
		"generator.reset_timeout_ms": c.Generator.ResetTimeoutMS,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %d", ErrInvalid, name, v)
		}
	}
	if c.Generator.MaxResponseBytes < 0 {
		return fmt.Errorf("%w: generator.max_response_bytes must be non-negative", ErrInvalid)
	}

	obs := c.ObserveConfig()
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ObserveConfig converts the observe section for observe.NewObserver.
func (c *Config) ObserveConfig() observe.Config {
	o := c.Observe
	return observe.Config{
		ServiceName: c.Service.Name,
		Version:     c.Service.Version,
		Tracing: observe.TracingConfig{
			Enabled:   o.Tracing.Enabled,
			Exporter:  o.Tracing.Exporter,
			SamplePct: o.Tracing.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.Metrics.Enabled,
			Exporter: o.Metrics.Exporter,
		},
		Logging: observe.LoggingConfig{
			Enabled:    o.Logging.Enabled,
			Level:      o.Logging.Level,
			Format:     o.Logging.Format,
			File:       o.Logging.File,
			MaxSizeMB:  o.Logging.MaxSizeMB,
			MaxBackups: o.Logging.MaxBackups,
			MaxAgeDays: o.Logging.MaxAgeDays,
			Compress:   o.Logging.Compress,
		},
	}
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
