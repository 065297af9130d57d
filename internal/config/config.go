package config

import (
	"time"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink"
)

// Config represents the complete application configuration
// following the Fulmen Forge Workhorse Standard three-layer pattern:
// Layer 1: Crucible defaults (config/roseysynth/v0/roseysynth-defaults.yaml)
// Layer 2: User overrides (~/.config/roseysynth/roseysynth/config.yaml)
// Layer 3: Environment variables and runtime overrides
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Admission    AdmissionConfig    `mapstructure:"admission"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Poll         PollConfig         `mapstructure:"poll"`
	SynthLink    synthlink.Config   `mapstructure:"synthlink"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Health       HealthConfig       `mapstructure:"health"`
	Debug        DebugConfig        `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// AdmissionConfig contains the per-class admission limits.
//
// Each class maps to a fixed-window quota. The "default" class is the
// fallback for callers whose class has no explicit row.
type AdmissionConfig struct {
	Classes map[string]ClassLimitConfig `mapstructure:"classes"`
}

// ClassLimitConfig is the quota for one request class.
type ClassLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// OrchestratorConfig contains job lifecycle tuning.
type OrchestratorConfig struct {
	// DefaultDeadline applies when a request carries no deadline.
	DefaultDeadline time.Duration `mapstructure:"default_deadline"`

	// MaxDeadline clamps caller-supplied deadlines.
	MaxDeadline time.Duration `mapstructure:"max_deadline"`

	// SubmitRetries is the number of re-submissions after a transient
	// submission failure (total attempts = SubmitRetries + 1).
	SubmitRetries int `mapstructure:"submit_retries"`

	// SyncWaitCap clamps how long a request may block waiting for a
	// synchronous result before degrading to an async handle.
	SyncWaitCap time.Duration `mapstructure:"sync_wait_cap"`

	// Retention is how long an unfetched terminal result is kept.
	Retention time.Duration `mapstructure:"retention"`

	// SweepInterval is how often the retention sweeper runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// PollConfig contains the provider polling cadence.
type PollConfig struct {
	// Base is the delay before the first status probe.
	Base time.Duration `mapstructure:"base"`

	// MaxDelay caps the exponential backoff between probes.
	MaxDelay time.Duration `mapstructure:"max_delay"`

	// Jitter is the symmetric randomization fraction (0..1) applied
	// to each delay so synchronized jobs spread out.
	Jitter float64 `mapstructure:"jitter"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles per Fulmen Forge Workhorse Standard:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
// - ENTERPRISE: Multiple sinks, middleware, throttling, policy enforcement (production)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	// See: gofulmen/docs/crucible-go/standards/observability/logging.md
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	// Metrics are also available at the main HTTP port in JSON format
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
