package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-diary/internal/logging"
	"github.com/TechnicallyShaun/nota-diary/internal/pipeline"
	"github.com/TechnicallyShaun/nota-diary/internal/pipeline/pidfile"
	"github.com/TechnicallyShaun/nota-diary/internal/pipeline/watcher"
)

type runFlags struct {
	only     []string
	dryRun   bool
	watch    bool
	interval time.Duration
}

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	return newRunCmd(defaultDeps())
}

func newRunCmd(d deps) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the download, transcription and ingestion pipeline",
		Long: `Run the pipeline phases in order: gmail_download, download (Drive), process
(audio) and ingest (documents). The Gmail and Drive phases run only when
enabled in the configuration or named with --only. A failed phase stops the run.

With --watch the pipeline reruns every --interval until interrupted, and a new
stable file under download_dir starts the next run early. The PID is written
to ~/.diary/diary.pid so "diary stop" can end it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			only, err := parsePhases(f.only)
			if err != nil {
				return err
			}

			a, err := newApp(cmd, d)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, closeAll, err := buildPipeline(ctx, a, only, f.dryRun)
			if err != nil {
				return err
			}
			defer closeAll()

			out := cmd.OutOrStdout()
			if !f.watch {
				results, err := orch.Run(ctx, only...)
				pipeline.WriteSummary(out, results)
				return err
			}

			interval := f.interval
			if interval <= 0 {
				interval = time.Duration(a.cfg.Watch.IntervalSeconds) * time.Second
			}
			return watchPipeline(ctx, a, orch, interval, only, out)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&f.only, "only", nil, "run only these phases: gmail, drive, process, ingest")
	flags.BoolVar(&f.dryRun, "dry-run", false, "log the phases without running them")
	flags.BoolVar(&f.watch, "watch", false, "rerun the pipeline until interrupted")
	flags.DurationVar(&f.interval, "interval", 0, "watch interval (default: watch.interval_seconds)")

	return cmd
}

func parsePhases(names []string) ([]pipeline.Phase, error) {
	var phases []pipeline.Phase
	for _, name := range names {
		p, err := pipeline.ParsePhase(name)
		if err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}
	return phases, nil
}

// buildPipeline registers every wanted phase. A source that cannot be set up
// is registered as a failing phase so the summary shows why. The returned
// func releases the database connection.
func buildPipeline(ctx context.Context, a *app, only []pipeline.Phase, dryRun bool) (*pipeline.Orchestrator, func(), error) {
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	wanted := func(p pipeline.Phase) bool {
		return len(only) == 0 || slices.Contains(only, p)
	}
	named := func(p pipeline.Phase) bool {
		return slices.Contains(only, p)
	}

	opts := []pipeline.Option{
		pipeline.WithDryRun(dryRun),
		pipeline.WithLogger(a.logger),
	}
	register := func(p pipeline.Phase, build func() (pipeline.PhaseFunc, error)) {
		if dryRun {
			opts = append(opts, pipeline.WithPhase(p, noopPhase))
			return
		}
		fn, err := build()
		if err != nil {
			a.logger.Error("phase setup failed", err, logging.String("phase", string(p)))
			fn = failingPhase(err)
		}
		opts = append(opts, pipeline.WithPhase(p, fn))
	}

	if wanted(pipeline.PhaseGmail) && (a.cfg.Gmail.Enabled || named(pipeline.PhaseGmail)) {
		register(pipeline.PhaseGmail, func() (pipeline.PhaseFunc, error) {
			dl, closeStore, err := a.gmailDownloader(ctx)
			if err != nil {
				return nil, err
			}
			closers = append(closers, closeStore)
			return pipeline.GmailPhase(dl), nil
		})
	}
	if wanted(pipeline.PhaseDrive) && (a.cfg.Drive.Enabled || named(pipeline.PhaseDrive)) {
		register(pipeline.PhaseDrive, func() (pipeline.PhaseFunc, error) {
			dl, err := a.driveDownloader(ctx)
			if err != nil {
				return nil, err
			}
			return pipeline.DrivePhase(dl), nil
		})
	}

	wantProcess, wantIngest := wanted(pipeline.PhaseProcess), wanted(pipeline.PhaseIngest)
	if !wantProcess && !wantIngest {
		return pipeline.New(opts...), closeAll, nil
	}

	if dryRun {
		if wantProcess {
			register(pipeline.PhaseProcess, nil)
		}
		if wantIngest {
			register(pipeline.PhaseIngest, nil)
		}
		return pipeline.New(opts...), closeAll, nil
	}

	st, err := a.openStore(ctx)
	if err != nil {
		closeAll()
		return nil, func() {}, err
	}
	closers = append(closers, func() { st.Close() })
	base := a.batchOptions()

	if wantProcess {
		register(pipeline.PhaseProcess, func() (pipeline.PhaseFunc, error) {
			svc, err := a.transcriber(false)
			if err != nil {
				return nil, err
			}
			return pipeline.ProcessPhase(a.processor(st, svc), base), nil
		})
	}
	if wantIngest {
		register(pipeline.PhaseIngest, func() (pipeline.PhaseFunc, error) {
			return pipeline.IngestPhase(a.processor(st, nil), base), nil
		})
	}
	return pipeline.New(opts...), closeAll, nil
}

func noopPhase(ctx context.Context) (int, int, error) {
	return 0, 0, nil
}

func failingPhase(err error) pipeline.PhaseFunc {
	return func(ctx context.Context) (int, int, error) {
		return 0, 0, err
	}
}

// watchPipeline holds the PID file and reruns the pipeline until ctx ends.
func watchPipeline(ctx context.Context, a *app, orch *pipeline.Orchestrator, interval time.Duration, only []pipeline.Phase, out io.Writer) error {
	if err := a.cfg.ValidateWatch(); err != nil {
		return err
	}
	if err := pidfile.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := pidfile.Remove(); err != nil {
			a.logger.Warn("failed to remove PID file", logging.String("error", err.Error()))
		}
	}()

	w, err := watcher.New(watcher.StabilizerFromConfig(a.cfg.Watch), a.logger)
	if err != nil {
		return err
	}
	defer w.Close()

	events, err := w.Watch(ctx, a.cfg.DownloadDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Watching %s every %s (PID %d)\n", a.cfg.DownloadDir, interval, os.Getpid())
	if path := a.logger.LogPath(); path != "" {
		fmt.Fprintf(out, "Logging to %s\n", path)
	}
	fmt.Fprintln(out, "Press Ctrl+C or run \"diary stop\" to stop")
	return orch.Watch(ctx, interval, events, only...)
}
