// Package pipeline runs the download, transcription and ingestion phases in
// order, once or in watch mode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/logging"
	"github.com/TechnicallyShaun/nota-diary/internal/pipeline/status"
	"github.com/TechnicallyShaun/nota-diary/internal/pipeline/watcher"
)

// Phase names a pipeline step.
type Phase string

const (
	PhaseGmail   Phase = "gmail_download"
	PhaseDrive   Phase = "download"
	PhaseProcess Phase = "process"
	PhaseIngest  Phase = "ingest"
)

// Phases lists every phase in run order.
var Phases = []Phase{PhaseGmail, PhaseDrive, PhaseProcess, PhaseIngest}

// Status is the outcome of a phase.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// ErrPhaseFailed is returned when a phase fails and the run stops.
var ErrPhaseFailed = errors.New("pipeline phase failed")

// ErrUnknownPhase is returned by ParsePhase.
var ErrUnknownPhase = errors.New("unknown phase")

// PhaseResult reports one phase.
type PhaseResult struct {
	Phase   Phase
	Status  Status
	Success int
	Total   int
	Err     error
	Elapsed time.Duration
}

// PhaseFunc runs one phase and returns its (successful, total) counts.
// An error fails the phase; per-item failures should only lower the count.
type PhaseFunc func(ctx context.Context) (success, total int, err error)

// ParsePhase maps a --only value to a phase. The short names gmail, drive,
// process and ingest are accepted alongside the phase names.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gmail", string(PhaseGmail):
		return PhaseGmail, nil
	case "drive", string(PhaseDrive):
		return PhaseDrive, nil
	case "process":
		return PhaseProcess, nil
	case "ingest":
		return PhaseIngest, nil
	default:
		return "", fmt.Errorf("%w: %q (want gmail, drive, process or ingest)", ErrUnknownPhase, s)
	}
}

// Orchestrator runs registered phases.
type Orchestrator struct {
	phases map[Phase]PhaseFunc
	dryRun bool
	logger logging.Logger
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithPhase registers fn for phase. Unregistered phases are skipped.
func WithPhase(phase Phase, fn PhaseFunc) Option {
	return func(o *Orchestrator) {
		o.phases[phase] = fn
	}
}

// WithDryRun logs each phase instead of running it.
func WithDryRun(dryRun bool) Option {
	return func(o *Orchestrator) {
		o.dryRun = dryRun
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		phases: make(map[Phase]PhaseFunc),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithComponent("pipeline")
	return o
}

// Run executes the phases in order, or only those listed in only. A failed
// phase stops the run and the error wraps ErrPhaseFailed.
func (o *Orchestrator) Run(ctx context.Context, only ...Phase) ([]PhaseResult, error) {
	var results []PhaseResult
	start := time.Now()

	for _, phase := range Phases {
		if len(only) > 0 && !slices.Contains(only, phase) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := o.runPhase(ctx, phase)
		results = append(results, result)

		if result.Status == StatusFailed {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			o.logger.Error("phase failed, stopping pipeline", result.Err, logging.String("phase", string(phase)))
			return results, fmt.Errorf("%w: %s: %v", ErrPhaseFailed, phase, result.Err)
		}
	}

	o.logger.Info(status.MsgRunFinished,
		logging.Int("phases", len(results)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

func (o *Orchestrator) runPhase(ctx context.Context, phase Phase) PhaseResult {
	result := PhaseResult{Phase: phase}
	fn, ok := o.phases[phase]
	if !ok {
		result.Status = StatusSkipped
		o.logger.Debug("phase not configured", logging.String("phase", string(phase)))
		return result
	}

	if o.dryRun {
		result.Status = StatusCompleted
		o.logger.Info("dry run: would run phase", logging.String("phase", string(phase)))
		return result
	}

	o.logger.Info("phase started", logging.String("phase", string(phase)))
	start := time.Now()
	success, total, err := fn(ctx)
	result.Success, result.Total, result.Elapsed = success, total, time.Since(start)

	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		return result
	}
	result.Status = StatusCompleted
	o.logger.Info("phase completed",
		logging.String("phase", string(phase)),
		logging.Int("success", success),
		logging.Int("total", total),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result
}

// Watch runs the pipeline every interval until ctx is done. A stable new
// file on wake starts the next run early. A failed run is logged and the
// loop continues.
func (o *Orchestrator) Watch(ctx context.Context, interval time.Duration, wake <-chan watcher.FileEvent, only ...Phase) error {
	o.logger.Info("watch mode started", logging.Duration("interval", interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("watch mode stopped")
			return nil
		case <-timer.C:
		case evt, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			o.logger.Info("new file detected", logging.String("path", evt.Path))
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if _, err := o.Run(ctx, only...); err != nil {
			if ctx.Err() != nil {
				o.logger.Info("watch mode stopped")
				return nil
			}
			o.logger.Warn("pipeline completed with errors", logging.String("error", err.Error()))
		}
		drain(wake)
		timer.Reset(interval)
	}
}

// drain discards wake-ups for files the last run already picked up.
func drain(wake <-chan watcher.FileEvent) {
	if wake == nil {
		return
	}
	for {
		select {
		case _, ok := <-wake:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// WriteSummary prints one line per phase and the overall status.
func WriteSummary(w io.Writer, results []PhaseResult) {
	ok := true
	for _, r := range results {
		mark := "[OK]  "
		switch r.Status {
		case StatusFailed:
			mark = "[FAIL]"
			ok = false
		case StatusSkipped:
			mark = "[SKIP]"
		}
		fmt.Fprintf(w, "%s %-15s %-9s %d/%d  %s\n", mark, r.Phase, r.Status, r.Success, r.Total, r.Elapsed.Round(time.Millisecond))
		if r.Err != nil {
			fmt.Fprintf(w, "       error: %v\n", r.Err)
		}
	}
	if ok {
		fmt.Fprintln(w, "Overall: completed")
	} else {
		fmt.Fprintln(w, "Overall: failed")
	}
}
