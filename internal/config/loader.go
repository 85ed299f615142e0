// Package config provides configuration loading for the session sync engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for sessionsync.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to avoid
// matching the binary itself, which Viper's built-in SetConfigName would
// match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("sessionsync")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: SESSIONSYNC_DIRECTORY_ADDR
	viper.SetEnvPrefix("SESSIONSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a sessionsync config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".sessionsync"),
	}
	if runtime.GOOS == "windows" {
		// %ProgramData%\sessionsync (typically C:\ProgramData\sessionsync)
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "sessionsync"))
		}
	} else {
		paths = append(paths, "/etc/sessionsync")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for sessionsync.yaml
// or .yml. Returns the full path of the first match, or empty if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "sessionsync"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment variable
// support. Example: SESSIONSYNC_DIRECTORY_ADDR overrides directory.addr.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("engine.max_concurrent_sessions")
	_ = viper.BindEnv("engine.reconcile_interval")
	_ = viper.BindEnv("engine.sweep_interval")

	_ = viper.BindEnv("timeouts.base")
	_ = viper.BindEnv("timeouts.high_priority")
	_ = viper.BindEnv("timeouts.emergency")

	_ = viper.BindEnv("store.path")

	_ = viper.BindEnv("directory.addr")
	_ = viper.BindEnv("directory.password")
	_ = viper.BindEnv("directory.db")

	_ = viper.BindEnv("event_log.path")
	_ = viper.BindEnv("event_log.ring_size")

	_ = viper.BindEnv("metrics.enabled")
	_ = viper.BindEnv("metrics.addr")

	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the Config.
// Note: Caller should apply any CLI flag overrides (e.g. --dev), then call
// cfg.SetDevDefaults() and cfg.Validate() to complete initialization.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT apply dev defaults or validate. Use this when CLI flags may override
// DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// defaultHomePath resolves a file name under ~/.sessionsync, falling back to
// the working directory when the home directory cannot be determined.
func defaultHomePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".sessionsync", name)
}
