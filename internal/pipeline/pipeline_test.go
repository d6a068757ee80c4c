package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/ingest"
	"github.com/TechnicallyShaun/nota-diary/internal/pipeline/watcher"
)

type recorder struct {
	mu    sync.Mutex
	calls []Phase
}

func (r *recorder) phase(p Phase, success, total int, err error) PhaseFunc {
	return func(ctx context.Context) (int, int, error) {
		r.mu.Lock()
		r.calls = append(r.calls, p)
		r.mu.Unlock()
		return success, total, err
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestRun_AllPhasesInOrder(t *testing.T) {
	rec := &recorder{}
	o := New(
		WithPhase(PhaseIngest, rec.phase(PhaseIngest, 1, 1, nil)),
		WithPhase(PhaseGmail, rec.phase(PhaseGmail, 2, 2, nil)),
		WithPhase(PhaseProcess, rec.phase(PhaseProcess, 3, 4, nil)),
	)

	results, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []Phase{PhaseGmail, PhaseProcess, PhaseIngest}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, rec.calls[i], want[i])
		}
	}

	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}
	if results[1].Phase != PhaseDrive || results[1].Status != StatusSkipped {
		t.Errorf("drive result = %+v, want skipped", results[1])
	}
	if results[2].Success != 3 || results[2].Total != 4 || results[2].Status != StatusCompleted {
		t.Errorf("process result = %+v", results[2])
	}
}

func TestRun_FailedPhaseStops(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("auth expired")
	o := New(
		WithPhase(PhaseGmail, rec.phase(PhaseGmail, 0, 0, boom)),
		WithPhase(PhaseProcess, rec.phase(PhaseProcess, 1, 1, nil)),
	)

	results, err := o.Run(context.Background())
	if !errors.Is(err, ErrPhaseFailed) {
		t.Fatalf("error = %v, want %v", err, ErrPhaseFailed)
	}
	if len(results) != 1 || results[0].Status != StatusFailed || !errors.Is(results[0].Err, boom) {
		t.Errorf("results = %+v", results)
	}
	if rec.count() != 1 {
		t.Errorf("later phases ran: %v", rec.calls)
	}
}

func TestRun_Only(t *testing.T) {
	rec := &recorder{}
	o := New(
		WithPhase(PhaseGmail, rec.phase(PhaseGmail, 0, 0, nil)),
		WithPhase(PhaseDrive, rec.phase(PhaseDrive, 0, 0, nil)),
	)

	results, err := o.Run(context.Background(), PhaseDrive)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Phase != PhaseDrive {
		t.Errorf("results = %+v", results)
	}
	if len(rec.calls) != 1 || rec.calls[0] != PhaseDrive {
		t.Errorf("calls = %v", rec.calls)
	}
}

func TestRun_DryRun(t *testing.T) {
	rec := &recorder{}
	o := New(WithDryRun(true), WithPhase(PhaseProcess, rec.phase(PhaseProcess, 1, 1, nil)))

	results, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rec.count() != 0 {
		t.Error("dry run executed a phase")
	}
	for _, r := range results {
		if r.Phase == PhaseProcess && r.Status != StatusCompleted {
			t.Errorf("dry-run process status = %s", r.Status)
		}
	}
}

func TestParsePhase(t *testing.T) {
	tests := map[string]Phase{
		"gmail":          PhaseGmail,
		"gmail_download": PhaseGmail,
		"Drive":          PhaseDrive,
		"download":       PhaseDrive,
		"process":        PhaseProcess,
		" ingest ":       PhaseIngest,
	}
	for in, want := range tests {
		got, err := ParsePhase(in)
		if err != nil || got != want {
			t.Errorf("ParsePhase(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := ParsePhase("upload"); !errors.Is(err, ErrUnknownPhase) {
		t.Errorf("error = %v, want %v", err, ErrUnknownPhase)
	}
}

func TestWatch_RunsOnTimerAndWake(t *testing.T) {
	rec := &recorder{}
	o := New(WithPhase(PhaseProcess, rec.phase(PhaseProcess, 0, 0, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	wake := make(chan watcher.FileEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- o.Watch(ctx, time.Hour, wake)
	}()

	waitFor(t, func() bool { return rec.count() >= 1 })
	// A wake-up that lands while the first run finishes is drained, so keep
	// nudging until the second run starts.
	waitFor(t, func() bool {
		select {
		case wake <- watcher.FileEvent{Path: "/data/001_x/memo.m4a"}:
		default:
		}
		return rec.count() >= 2
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop")
	}
}

func TestWatch_ContinuesAfterFailure(t *testing.T) {
	rec := &recorder{}
	o := New(WithPhase(PhaseDrive, rec.phase(PhaseDrive, 0, 0, errors.New("offline"))))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Watch(ctx, 10*time.Millisecond, nil)

	waitFor(t, func() bool { return rec.count() >= 3 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, []PhaseResult{
		{Phase: PhaseGmail, Status: StatusCompleted, Success: 2, Total: 2},
		{Phase: PhaseDrive, Status: StatusFailed, Err: errors.New("quota")},
	})
	out := buf.String()
	for _, want := range []string{"[OK]", "gmail_download", "2/2", "[FAIL]", "error: quota", "Overall: failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

type fakeRunner struct {
	got ingest.BatchOptions
}

func (f *fakeRunner) Run(ctx context.Context, opts ingest.BatchOptions) (ingest.Summary, error) {
	f.got = opts
	return ingest.Summary{
		Audio: ingest.Counts{Successful: 1, Total: 2},
		Text:  ingest.Counts{Successful: 3, Total: 3},
	}, nil
}

func TestProcessAndIngestPhases(t *testing.T) {
	r := &fakeRunner{}
	base := ingest.BatchOptions{Root: "/data", OneLevel: true}

	s, total, err := ProcessPhase(r, base)(context.Background())
	if err != nil || s != 1 || total != 2 {
		t.Errorf("process = %d/%d, %v", s, total, err)
	}
	if !r.got.Batch || r.got.SkipAudio || !r.got.SkipText || r.got.Root != "/data" {
		t.Errorf("process options = %+v", r.got)
	}

	s, total, err = IngestPhase(r, base)(context.Background())
	if err != nil || s != 3 || total != 3 {
		t.Errorf("ingest = %d/%d, %v", s, total, err)
	}
	if !r.got.SkipAudio || r.got.SkipText {
		t.Errorf("ingest options = %+v", r.got)
	}
}
