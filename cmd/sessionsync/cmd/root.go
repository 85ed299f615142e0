// Package cmd provides the CLI commands for the sessionsync daemon.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oplink/sessionsync/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sessionsync",
	Short: "sessionsync - cross-device session synchronization engine",
	Long: `sessionsync keeps authenticated session state consistent across a user's
devices. Each device runs one engine instance that owns a local durable
store and reconciles with a shared Redis session directory in the
background. Sessions created or revoked on one device converge on the
others without coordination; conflicting updates resolve by most recent
activity.

Quick start:
  1. Create a config file: sessionsync.yaml
  2. Run: sessionsync start

Configuration:
  Config is loaded from sessionsync.yaml in the current directory,
  $HOME/.sessionsync/, or /etc/sessionsync/.

  Environment variables can override config values with the SESSIONSYNC_ prefix.
  Example: SESSIONSYNC_DIRECTORY_ADDR=redis.internal:6379

  Leaving directory.addr empty runs the engine local-only: full session
  lifecycle on this device, no cross-device synchronization.

Commands:
  start       Start the sync engine
  stop        Stop the running engine
  reset       Reset to clean state (remove local store and event log)
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sessionsync.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
