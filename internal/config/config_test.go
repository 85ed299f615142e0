package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Engine.MaxConcurrentSessions != 5 {
		t.Errorf("MaxConcurrentSessions = %d, want 5", cfg.Engine.MaxConcurrentSessions)
	}
	if cfg.Engine.ReconcileInterval != "30s" {
		t.Errorf("ReconcileInterval = %q, want %q", cfg.Engine.ReconcileInterval, "30s")
	}
	if cfg.Timeouts.Base != "30m" || cfg.Timeouts.HighPriority != "4h" || cfg.Timeouts.Emergency != "15m" {
		t.Errorf("timeout defaults = %q/%q/%q", cfg.Timeouts.Base, cfg.Timeouts.HighPriority, cfg.Timeouts.Emergency)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9464" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, "127.0.0.1:9464")
	}
	if cfg.EventLog.RingSize != 1000 {
		t.Errorf("EventLog.RingSize = %d, want 1000", cfg.EventLog.RingSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Store.Path == "" {
		t.Error("Store.Path default not populated")
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Engine: EngineConfig{
			MaxConcurrentSessions: 3,
			ReconcileInterval:     "10s",
		},
		Timeouts: TimeoutConfig{Base: "1h"},
		Store:    StoreConfig{Path: "/var/lib/sessionsync/sync.db"},
	}

	cfg.SetDefaults()

	if cfg.Engine.MaxConcurrentSessions != 3 {
		t.Errorf("MaxConcurrentSessions = %d, want 3 (preserved)", cfg.Engine.MaxConcurrentSessions)
	}
	if cfg.Engine.ReconcileInterval != "10s" {
		t.Errorf("ReconcileInterval = %q, want %q (preserved)", cfg.Engine.ReconcileInterval, "10s")
	}
	if cfg.Timeouts.Base != "1h" {
		t.Errorf("Timeouts.Base = %q, want %q (preserved)", cfg.Timeouts.Base, "1h")
	}
	if cfg.Store.Path != "/var/lib/sessionsync/sync.db" {
		t.Errorf("Store.Path = %q, want preserved value", cfg.Store.Path)
	}
}

func TestConfig_SetDevDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()
	cfg.DevMode = true
	cfg.SetDevDefaults()

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Engine.ReconcileInterval != "5s" {
		t.Errorf("ReconcileInterval = %q, want %q", cfg.Engine.ReconcileInterval, "5s")
	}
}

func TestConfig_SetDevDefaults_NoOpWhenDisabled(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestConfig_SyncEnabled(t *testing.T) {
	t.Parallel()

	var cfg Config
	if cfg.SyncEnabled() {
		t.Error("SyncEnabled = true with no directory addr")
	}
	cfg.Directory.Addr = "localhost:6379"
	if !cfg.SyncEnabled() {
		t.Error("SyncEnabled = false with directory addr set")
	}
}

func TestConfig_Durations(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	reconcile, sweep, base, high, emergency := cfg.Durations()
	if reconcile != 30*time.Second || sweep != 30*time.Second {
		t.Errorf("intervals = %v/%v, want 30s/30s", reconcile, sweep)
	}
	if base != 30*time.Minute || high != 4*time.Hour || emergency != 15*time.Minute {
		t.Errorf("timeouts = %v/%v/%v", base, high, emergency)
	}
}

func TestFindConfigFileInPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sessionsync.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if got := findConfigFileInPaths([]string{t.TempDir(), dir}); got != path {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, path)
	}
	if got := findConfigFileInPaths([]string{t.TempDir()}); got != "" {
		t.Errorf("findConfigFileInPaths = %q, want empty", got)
	}
}
