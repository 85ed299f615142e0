// Package config provides configuration types for the session sync engine.
//
// The schema is file-based and deliberately small: one engine instance per
// device, one durable store file, one Redis-backed session directory. All
// durations are strings ("30m", "4h") parsed at wiring time so the YAML
// stays human-editable.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the sessionsync daemon.
type Config struct {
	// Engine configures session limits and background loop cadence.
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`

	// Timeouts configures the context-sensitive session expiry policy.
	Timeouts TimeoutConfig `yaml:"timeouts" mapstructure:"timeouts"`

	// Store configures the local durable key-value store.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Directory configures the remote session directory connection.
	// Optional: when Addr is empty the engine runs in local-only mode and
	// performs no cross-device synchronization.
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`

	// EventLog configures the append-only lifecycle event log.
	EventLog EventLogConfig `yaml:"event_log" mapstructure:"event_log"`

	// Metrics configures the Prometheus metrics listener.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// DevMode enables development features (verbose logging, etc).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// EngineConfig configures session limits and the background loops.
type EngineConfig struct {
	// MaxConcurrentSessions bounds active sessions per user. When a new
	// session would exceed the bound, the user's least recently active
	// session is revoked to make room. Defaults to 5.
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions" mapstructure:"max_concurrent_sessions" validate:"omitempty,min=1"`

	// ReconcileInterval is how often the engine pulls from the session
	// directory and retries queued pushes (e.g., "30s"). Defaults to "30s".
	ReconcileInterval string `yaml:"reconcile_interval" mapstructure:"reconcile_interval" validate:"omitempty,go_duration"`

	// SweepInterval is how often expired sessions are evicted (e.g., "30s").
	// Defaults to "30s".
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval" validate:"omitempty,go_duration"`
}

// TimeoutConfig configures the session expiry policy. Values are duration
// strings. An emergency timeout always replaces the session's remaining
// lifetime when emergency access is enabled, even when that is shorter.
type TimeoutConfig struct {
	// Base is the inactivity timeout for ordinary sessions. Defaults to "30m".
	Base string `yaml:"base" mapstructure:"base" validate:"omitempty,go_duration"`

	// HighPriority is the timeout for sessions scoped to a high-priority
	// operational context. Defaults to "4h".
	HighPriority string `yaml:"high_priority" mapstructure:"high_priority" validate:"omitempty,go_duration"`

	// Emergency is the timeout assigned when emergency access is enabled.
	// Defaults to "15m".
	Emergency string `yaml:"emergency" mapstructure:"emergency" validate:"omitempty,go_duration"`
}

// StoreConfig configures the local durable store.
type StoreConfig struct {
	// Path is the SQLite database file path. Defaults to
	// "~/.sessionsync/sessions.db".
	Path string `yaml:"path" mapstructure:"path"`
}

// DirectoryConfig configures the Redis-backed remote session directory.
type DirectoryConfig struct {
	// Addr is the Redis host:port. Empty disables synchronization entirely;
	// the engine then runs local-only.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`

	// Password is the Redis AUTH password. Optional.
	Password string `yaml:"password" mapstructure:"password"`

	// DB is the Redis logical database index. Defaults to 0.
	DB int `yaml:"db" mapstructure:"db" validate:"omitempty,min=0,max=15"`
}

// EventLogConfig configures the append-only lifecycle event log.
type EventLogConfig struct {
	// Path is the JSON Lines event log file. Defaults to
	// "~/.sessionsync/events.jsonl". Set to "none" to disable the file log
	// while keeping the in-memory recent-events ring.
	Path string `yaml:"path" mapstructure:"path"`

	// RingSize is the number of recent events kept in memory for the recent
	// events query. Defaults to 1000.
	RingSize int `yaml:"ring_size" mapstructure:"ring_size" validate:"omitempty,min=1"`
}

// MetricsConfig configures the Prometheus metrics listener.
type MetricsConfig struct {
	// Enabled controls whether the metrics listener starts.
	// Default: true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Addr is the listen address (e.g., "127.0.0.1:9464").
	// Defaults to "127.0.0.1:9464" (localhost only) if empty.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// SyncEnabled reports whether a session directory is configured.
func (c *Config) SyncEnabled() bool {
	return c.Directory.Addr != ""
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Engine.MaxConcurrentSessions == 0 {
		c.Engine.MaxConcurrentSessions = 5
	}
	if c.Engine.ReconcileInterval == "" {
		c.Engine.ReconcileInterval = "30s"
	}
	if c.Engine.SweepInterval == "" {
		c.Engine.SweepInterval = "30s"
	}

	if c.Timeouts.Base == "" {
		c.Timeouts.Base = "30m"
	}
	if c.Timeouts.HighPriority == "" {
		c.Timeouts.HighPriority = "4h"
	}
	if c.Timeouts.Emergency == "" {
		c.Timeouts.Emergency = "15m"
	}

	if c.Store.Path == "" {
		c.Store.Path = defaultHomePath("sessions.db")
	}
	if c.EventLog.Path == "" {
		c.EventLog.Path = defaultHomePath("events.jsonl")
	}
	if c.EventLog.RingSize == 0 {
		c.EventLog.RingSize = 1000
	}

	// Metrics listener on by default, localhost only. Users who need network
	// access must explicitly set metrics.addr to ":9464" or "0.0.0.0:9464".
	// viper.IsSet distinguishes "not set" (zero value) from "explicitly false".
	if !viper.IsSet("metrics.enabled") {
		c.Metrics.Enabled = true
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "127.0.0.1:9464"
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// SetDevDefaults applies permissive defaults for development mode.
// These are applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.LogLevel = "debug"

	// Short cycles make dev convergence visible without waiting.
	if !viper.IsSet("engine.reconcile_interval") {
		c.Engine.ReconcileInterval = "5s"
	}
	if !viper.IsSet("engine.sweep_interval") {
		c.Engine.SweepInterval = "5s"
	}
}

// Durations converts the string duration fields after validation. Call only
// on a validated config.
func (c *Config) Durations() (reconcile, sweep, base, highPriority, emergency time.Duration) {
	reconcile, _ = time.ParseDuration(c.Engine.ReconcileInterval)
	sweep, _ = time.ParseDuration(c.Engine.SweepInterval)
	base, _ = time.ParseDuration(c.Timeouts.Base)
	highPriority, _ = time.ParseDuration(c.Timeouts.HighPriority)
	emergency, _ = time.ParseDuration(c.Timeouts.Emergency)
	return
}
