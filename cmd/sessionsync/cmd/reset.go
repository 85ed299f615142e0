package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oplink/sessionsync/internal/config"
)

var (
	resetKeepEvents bool
	resetForce      bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset sessionsync to a clean state",
	Long: `Reset sessionsync by removing its local state files.

This removes the local session store and the lifecycle event log for this
device. Sessions held in the shared directory are untouched: on next start
the engine rejoins with an empty local store and re-adopts the user's
sessions from the directory.

Optional flags:
  --keep-events   Keep the event log file, remove only the session store
  --force         Skip confirmation prompt

Examples:
  # Reset with interactive confirmation
  sessionsync reset

  # Reset without prompting
  sessionsync reset --force`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetKeepEvents, "keep-events", false, "Keep the event log file")
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigForReset()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed, using default paths: %v\n", err)
	}

	type target struct {
		path string
		desc string
	}
	var targets []target

	targets = append(targets, target{cfg.Store.Path, "session store"})
	// SQLite leaves WAL companions next to the database file.
	targets = append(targets, target{cfg.Store.Path + "-wal", "session store WAL"})
	targets = append(targets, target{cfg.Store.Path + "-shm", "session store shared memory"})

	if !resetKeepEvents && cfg.EventLog.Path != "" && cfg.EventLog.Path != "none" {
		targets = append(targets, target{cfg.EventLog.Path, "event log"})
	}

	// Check what actually exists.
	var existing []target
	for _, t := range targets {
		if _, err := os.Stat(t.path); err == nil {
			existing = append(existing, t)
		}
	}

	if len(existing) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to reset — no state files found.")
		return nil
	}

	fmt.Fprintln(os.Stderr, "The following will be removed:")
	for _, t := range existing {
		fmt.Fprintf(os.Stderr, "  - %s (%s)\n", t.path, t.desc)
	}

	// Confirm unless --force.
	if !resetForce {
		fmt.Fprint(os.Stderr, "\nProceed? [y/N] ")
		var answer string
		fmt.Scanln(&answer) //nolint:errcheck // interactive prompt, error irrelevant
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	var errors int
	for _, t := range existing {
		if err := os.Remove(t.path); err != nil {
			fmt.Fprintf(os.Stderr, "  ERROR removing %s: %v\n", t.path, err)
			errors++
		} else {
			fmt.Fprintf(os.Stderr, "  Removed %s\n", t.path)
		}
	}

	if errors > 0 {
		return fmt.Errorf("%d file(s) could not be removed", errors)
	}

	fmt.Fprintln(os.Stderr, "\nReset complete. This device starts fresh on next launch.")
	return nil
}

// loadConfigForReset loads config to discover state file paths. Returns a
// defaults-only config on error (non-fatal for reset).
func loadConfigForReset() (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		cfg = &config.Config{}
		cfg.SetDefaults()
		return cfg, err
	}
	return cfg, nil
}
