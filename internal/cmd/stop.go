package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-diary/internal/pipeline/pidfile"
)

// stopTimeout is the maximum time to wait for graceful shutdown before sending SIGKILL
const stopTimeout = 10 * time.Second

// ErrNotRunning indicates the watch-mode pipeline is not running
var ErrNotRunning = errors.New("diary pipeline is not running")

// ErrStaleProcess indicates the PID file exists but the process is not running
var ErrStaleProcess = errors.New("stale PID file (process not running)")

// NewStopCmd creates the stop command
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the watch-mode pipeline",
		Long: `Stop the pipeline started with "diary run --watch".

Reads the PID from ~/.diary/diary.pid and sends SIGTERM for graceful shutdown.
If the process doesn't exit within 10 seconds, SIGKILL is sent to force termination.
The PID file is removed after the process exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd, stopTimeout)
		},
	}
}

func runStop(cmd *cobra.Command, timeout time.Duration) error {
	out := cmd.OutOrStdout()

	stale, err := pidfile.CleanStale()
	if err != nil {
		return err
	}
	if stale {
		return ErrStaleProcess
	}

	pid, err := pidfile.Read()
	if err != nil {
		if errors.Is(err, pidfile.ErrNoPIDFile) {
			return ErrNotRunning
		}
		return err
	}

	fmt.Fprintf(out, "Stopping diary pipeline (PID %d)...\n", pid)
	killed, err := pidfile.Terminate(pid, timeout)
	if killed {
		fmt.Fprintln(out, "Process did not exit gracefully, sent SIGKILL")
	}
	if err != nil {
		return err
	}

	if err := pidfile.Remove(); err != nil {
		fmt.Fprintf(out, "Warning: failed to remove PID file: %v\n", err)
	}
	fmt.Fprintln(out, "Diary pipeline stopped")
	return nil
}
