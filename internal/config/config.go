// Package config defines the service configuration and its defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// EnvProduction suppresses error details in API responses.
const EnvProduction = "production"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Environment names the deployment; "production" hides error details.
	Environment string `koanf:"environment"`

	// StoreDriver selects the profile store: memory or postgres.
	StoreDriver string `koanf:"store_driver"`
	DatabaseDSN string `koanf:"database_dsn"`

	// SeedFile is a YAML or JSON population loaded into the memory store.
	// Empty means the embedded default population.
	SeedFile string `koanf:"seed_file"`

	// AtomicIncrements switches flushes from read-modify-write to an
	// in-store atomic increment.
	AtomicIncrements bool `koanf:"atomic_increments"`

	// MinPopulation is the smallest eligible population a batch can be drawn from.
	MinPopulation int `koanf:"min_population"`

	// IntroProfileIDs are the two profiles shown on a first visit.
	IntroProfileIDs []string `koanf:"intro_profile_ids"`

	// EasterProbability is the chance a profile is shown with its alternate image.
	EasterProbability float64 `koanf:"easter_probability"`

	// MaxRankingsLimit caps GET /api/rankings?limit.
	MaxRankingsLimit int `koanf:"max_rankings_limit"`

	// FlushConcurrency bounds concurrent store writes per batch.
	FlushConcurrency int `koanf:"flush_concurrency"`

	// DedupeSize bounds the set of remembered batch IDs.
	DedupeSize int `koanf:"dedupe_size"`

	// ReportRatePerSec and ReportBurst limit POST /api/log.
	ReportRatePerSec float64 `koanf:"report_rate_per_sec"`
	ReportBurst      int     `koanf:"report_burst"`

	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		Environment:       "development",
		StoreDriver:       DriverMemory,
		MinPopulation:     2,
		IntroProfileIDs:   []string{"yo", "mati"},
		EasterProbability: 1.0 / 3.0,
		MaxRankingsLimit:  100,
		FlushConcurrency:  4,
		DedupeSize:        50_000,
		ReportRatePerSec:  20,
		ReportBurst:       40,
		RequestTimeout:    5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

// IsProduction reports whether error details must be hidden.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != DriverMemory && c.StoreDriver != DriverPostgres:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == DriverPostgres && c.DatabaseDSN == "":
		return fmt.Errorf("%w: database_dsn is required for postgres", ErrInvalidConfig)
	case c.MinPopulation < 2:
		return fmt.Errorf("%w: min_population must be at least 2", ErrInvalidConfig)
	case len(c.IntroProfileIDs) != 2:
		return fmt.Errorf("%w: intro_profile_ids needs exactly two ids", ErrInvalidConfig)
	case c.EasterProbability < 0 || c.EasterProbability > 1:
		return fmt.Errorf("%w: easter_probability must be within [0,1]", ErrInvalidConfig)
	case c.MaxRankingsLimit <= 0:
		return fmt.Errorf("%w: max_rankings_limit must be positive", ErrInvalidConfig)
	case c.FlushConcurrency <= 0:
		return fmt.Errorf("%w: flush_concurrency must be positive", ErrInvalidConfig)
	case c.ReportRatePerSec <= 0 || c.ReportBurst <= 0:
		return fmt.Errorf("%w: report rate and burst must be positive", ErrInvalidConfig)
	}
	return nil
}
