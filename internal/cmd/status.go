package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-diary/internal/pipeline/pidfile"
	"github.com/TechnicallyShaun/nota-diary/internal/pipeline/status"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status and today's activity",
		Long:  "Report whether the watch-mode pipeline is running and summarize today's log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			running, pid, err := pidfile.IsRunning()
			if err != nil {
				return err
			}
			switch {
			case running:
				fmt.Fprintf(out, "Pipeline: running (PID %d)\n", pid)
			case pid != 0:
				fmt.Fprintf(out, "Pipeline: not running (stale PID file for %d)\n", pid)
			default:
				fmt.Fprintln(out, "Pipeline: not running")
			}

			a, err := newApp(cmd, defaultDeps())
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := status.ParseToday(a.cfg.LogDir)
			if err != nil {
				return fmt.Errorf("read log: %w", err)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Today:")
			fmt.Fprintf(out, "  Files ingested: %d\n", stats.FilesIngested)
			fmt.Fprintf(out, "  Pipeline runs:  %d\n", stats.Runs)
			fmt.Fprintf(out, "  Errors:         %d\n", stats.Errors)
			if last := stats.LastIngested; last != nil {
				fmt.Fprintf(out, "  Last ingested:  %s (diary %d) at %s\n",
					status.BaseName(last.Path), last.DiaryID, status.FormatTimestamp(last.Timestamp))
			}
			if !stats.LastRun.IsZero() {
				fmt.Fprintf(out, "  Last run:       %s\n", status.FormatTimestamp(stats.LastRun))
			}
			return nil
		},
	}
}
