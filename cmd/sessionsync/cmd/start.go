package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	obs "github.com/oplink/sessionsync/internal/adapter/inbound/http"
	"github.com/oplink/sessionsync/internal/adapter/outbound/directory"
	"github.com/oplink/sessionsync/internal/adapter/outbound/sqlite"
	sinkadapter "github.com/oplink/sessionsync/internal/adapter/outbound/synclog"
	"github.com/oplink/sessionsync/internal/config"
	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/port/outbound"
	"github.com/oplink/sessionsync/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sync engine",
	Long: `Start the sessionsync engine.

The engine rehydrates session and device state from the local store, then
runs its background loops: pull-and-merge against the session directory,
push retry for queued writes, and expiry sweeping. When no directory is
configured it runs local-only.

Examples:
  # Start with config file settings
  sessionsync start

  # Start with a specific config file
  sessionsync --config /path/to/config.yaml start

  # Start in development mode (debug logging, 5s sync cycles)
  sessionsync start --dev`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, short sync cycles)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override dev mode from CLI flag
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	logLevel := parseLogLevel(cfg.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// Write PID file so "sessionsync stop" can find us.
	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("sessionsync stopped")
	return nil
}

// run wires the adapters to the engine and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reconcileEvery, sweepEvery, base, highPriority, emergency := cfg.Durations()

	// Local durable store. The parent directory may not exist on first run.
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	durable, err := sqlite.Open(cfg.Store.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}

	// The engine and the directory client must stamp the same origin on
	// outgoing writes, or the reconciler cannot recognize its own echoes.
	origin := uuid.NewString()

	var dir outbound.Directory
	if cfg.SyncEnabled() {
		dir = directory.New(directory.Config{
			Addr:     cfg.Directory.Addr,
			Password: cfg.Directory.Password,
			DB:       cfg.Directory.DB,
		}, origin, logger)
		logger.Info("session directory configured", "addr", cfg.Directory.Addr, "db", cfg.Directory.DB)
	} else {
		dir = directory.NewNoop()
		logger.Info("no session directory configured, running local-only")
	}

	var sink outbound.EventSink
	if strings.EqualFold(cfg.EventLog.Path, "none") {
		sink = sinkadapter.NewRingSink(cfg.EventLog.RingSize)
		logger.Info("event log file disabled, keeping in-memory ring only")
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.EventLog.Path), 0700); err != nil {
			return fmt.Errorf("failed to create event log directory: %w", err)
		}
		sink, err = sinkadapter.NewFileSink(cfg.EventLog.Path, cfg.EventLog.RingSize, logger)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
	}

	eng := service.NewEngine(durable, dir, sink, service.Options{
		MaxConcurrentSessions: cfg.Engine.MaxConcurrentSessions,
		Timeouts: session.TimeoutPolicy{
			Base:         base,
			HighPriority: highPriority,
			Emergency:    emergency,
		},
		ReconcileInterval: reconcileEvery,
		SweepInterval:     sweepEvery,
		Origin:            origin,
	}, logger)

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	if cfg.Metrics.Enabled {
		srv := obs.NewServer(eng,
			obs.WithAddr(cfg.Metrics.Addr),
			obs.WithLogger(logger),
			obs.WithHealthChecker(obs.NewHealthChecker(eng, Version)),
		)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	printBanner(Version, cfg)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return eng.Shutdown(shutdownCtx)
}

// parseLogLevel converts a config log level string to a slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a formatted startup banner to stderr with version,
// sync mode, and listener addresses.
func printBanner(version string, cfg *config.Config) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	syncStr := yellow + "local-only" + reset
	if cfg.SyncEnabled() {
		syncStr = green + cfg.Directory.Addr + reset
	}

	metricsStr := dim + "disabled" + reset
	if cfg.Metrics.Enabled {
		metricsStr = fmt.Sprintf("http://%s/metrics", cfg.Metrics.Addr)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%s sessionsync %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Directory:", syncStr)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Store:", cfg.Store.Path)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Metrics:", metricsStr)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}

// pidFilePath returns the standard location for the sessionsync PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".sessionsync", "daemon.pid")
	}
	return filepath.Join(os.TempDir(), "sessionsync-daemon.pid")
}

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
