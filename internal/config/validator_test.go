package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	var cfg Config
	cfg.SetDefaults()
	return cfg
}

func TestConfig_Validate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got: %v", err)
	}
}

func TestConfig_Validate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "trace" },
			wantMsg: "LogLevel",
		},
		{
			name:    "unparseable interval",
			mutate:  func(c *Config) { c.Engine.ReconcileInterval = "soon" },
			wantMsg: "ReconcileInterval",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Timeouts.Base = "-5m" },
			wantMsg: "Base",
		},
		{
			name:    "zero session limit floor",
			mutate:  func(c *Config) { c.Engine.MaxConcurrentSessions = -1 },
			wantMsg: "MaxConcurrentSessions",
		},
		{
			name:    "bad directory addr",
			mutate:  func(c *Config) { c.Directory.Addr = "not a host port" },
			wantMsg: "Addr",
		},
		{
			name:    "directory db out of range",
			mutate:  func(c *Config) { c.Directory.DB = 99 },
			wantMsg: "DB",
		},
		{
			name:    "high priority shorter than base",
			mutate:  func(c *Config) { c.Timeouts.Base = "1h"; c.Timeouts.HighPriority = "30m" },
			wantMsg: "high_priority",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestConfig_Validate_DirectoryOptional(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Directory.Addr = "" // local-only mode
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty directory should validate, got: %v", err)
	}

	cfg.Directory.Addr = "redis.internal:6379"
	cfg.Directory.Password = "secret"
	cfg.Directory.DB = 3
	if err := cfg.Validate(); err != nil {
		t.Errorf("full directory config should validate, got: %v", err)
	}
}
