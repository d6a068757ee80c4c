package watcher

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/config"
)

// ErrStabilizationTimeout is returned when the file does not stabilize within the timeout.
var ErrStabilizationTimeout = errors.New("stabilization timeout: file did not stabilize in time")

// minStabilizationTimeout bounds how long a download may take before the
// watcher gives up on it. The next scheduled run still picks the file up.
const minStabilizationTimeout = time.Minute

// Stabilizer waits for a file to finish writing.
type Stabilizer interface {
	WaitForStable(ctx context.Context, path string) error
}

// PollStabilizer considers a file written once it is non-empty and its size
// and modification time are unchanged for Checks consecutive polls.
type PollStabilizer struct {
	Interval time.Duration
	Checks   int
	// Timeout applies when ctx has no deadline. Zero waits for ctx only.
	Timeout time.Duration
}

// NewPollStabilizer creates a polling stabilizer without a timeout.
func NewPollStabilizer(interval time.Duration, checks int) *PollStabilizer {
	return &PollStabilizer{Interval: interval, Checks: checks}
}

// StabilizerFromConfig builds the stabilizer used by watch mode.
func StabilizerFromConfig(w config.WatchConfig) *PollStabilizer {
	s := NewPollStabilizer(time.Duration(w.StabilizationIntervalMs)*time.Millisecond, w.StabilizationChecks)
	s.Timeout = max(minStabilizationTimeout, 20*s.Interval*time.Duration(s.Checks))
	return s
}

type snapshot struct {
	size    int64
	modTime time.Time
}

func (a snapshot) same(b snapshot) bool {
	return a.size == b.size && a.modTime.Equal(b.modTime)
}

func stat(path string) (snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{size: info.Size(), modTime: info.ModTime()}, nil
}

// WaitForStable blocks until path is stable, ctx is done or Timeout expires.
func (s *PollStabilizer) WaitForStable(ctx context.Context, path string) error {
	timedOut := func() bool { return false }
	if _, ok := ctx.Deadline(); !ok && s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
		timedOut = func() bool { return errors.Is(ctx.Err(), context.DeadlineExceeded) }
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	last := snapshot{size: -1}
	for stable := 0; stable < s.Checks; {
		select {
		case <-ctx.Done():
			if timedOut() {
				return ErrStabilizationTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}

		cur, err := stat(path)
		if err != nil {
			return err
		}
		// An empty file is still being created.
		if cur.same(last) && cur.size > 0 {
			stable++
			continue
		}
		stable, last = 0, cur
	}
	return nil
}
