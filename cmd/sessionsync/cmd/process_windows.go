//go:build windows

package cmd

import (
	"os"

	"golang.org/x/sys/windows"
)

// gracefulSignals returns the signals that trigger an engine shutdown.
// Windows reliably delivers only os.Interrupt (Ctrl+C); there is no SIGTERM.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// processIsAlive reports whether the daemon behind a PID file is still
// running, by opening a process handle and reading the exit code.
func processIsAlive(proc *os.Process) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(proc.Pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	// STILL_ACTIVE (259): the process has not exited yet.
	return exitCode == 259
}

// sendGracefulStop terminates a running daemon. Windows has no SIGTERM, so
// Kill (TerminateProcess) is the stop path; the engine's durable state is
// write-through, so a hard stop loses nothing already committed.
func sendGracefulStop(proc *os.Process) error {
	return proc.Kill()
}
