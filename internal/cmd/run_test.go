package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/config"
	"github.com/TechnicallyShaun/nota-diary/internal/pipeline"
	"github.com/TechnicallyShaun/nota-diary/internal/pipeline/pidfile"
)

func TestRunCmd_DryRun(t *testing.T) {
	testEnv(t)
	d := testDeps(newFakeStore(), nil)
	d.openStore = nil

	output, err := execute(newRunCmd(d), "--dry-run")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	for _, want := range []string{
		"[SKIP] gmail_download",
		"[SKIP] download",
		"[OK]   process",
		"[OK]   ingest",
		"Overall: completed",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestRunCmd_UnknownPhase(t *testing.T) {
	testEnv(t)

	_, err := execute(newRunCmd(testDeps(newFakeStore(), nil)), "--only", "upload")
	if !errors.Is(err, pipeline.ErrUnknownPhase) {
		t.Errorf("expected ErrUnknownPhase, got: %v", err)
	}
}

func TestRunCmd_IngestPhase(t *testing.T) {
	downloads := testEnv(t)
	writeFile(t, filepath.Join(downloads, "001_notes", "note.txt"), "A quiet evening.")
	st := newFakeStore()

	output, err := execute(newRunCmd(testDeps(st, nil)), "--only", "ingest")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(output, "[OK]   ingest") || !strings.Contains(output, "1/1") {
		t.Errorf("unexpected summary:\n%s", output)
	}
	if strings.Contains(output, "process") {
		t.Errorf("expected only the ingest phase:\n%s", output)
	}
	if len(st.text) != 1 {
		t.Errorf("stored %d text records, want 1", len(st.text))
	}
	if !st.closed {
		t.Error("expected the store to be closed")
	}
}

func TestRunCmd_ProcessPhase(t *testing.T) {
	downloads := testEnv(t)
	writeFile(t, filepath.Join(downloads, "002_voice", "memo.mp3"), "audio")
	st := newFakeStore()

	output, err := execute(newRunCmd(testDeps(st, echoProvider("out loud"))), "--only", "process")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(output, "[OK]   process") || !strings.Contains(output, "1/1") {
		t.Errorf("unexpected summary:\n%s", output)
	}
	if len(st.audio) != 1 || st.audio[0].Text != "out loud" {
		t.Errorf("stored audio records = %+v", st.audio)
	}
}

func TestRunCmd_GmailWithoutCredentials(t *testing.T) {
	testEnv(t)

	output, err := execute(newRunCmd(testDeps(newFakeStore(), nil)), "--only", "gmail")
	if !errors.Is(err, pipeline.ErrPhaseFailed) {
		t.Fatalf("expected ErrPhaseFailed, got: %v", err)
	}
	if !strings.Contains(output, "[FAIL] gmail_download") {
		t.Errorf("expected failed gmail phase:\n%s", output)
	}
	if !strings.Contains(output, "credentials_file is required") {
		t.Errorf("expected the setup error in the summary:\n%s", output)
	}
	if !strings.Contains(output, "Overall: failed") {
		t.Errorf("expected overall failure:\n%s", output)
	}
}

func TestRunCmd_WatchStopsOnCancel(t *testing.T) {
	downloads := testEnv(t)
	writeFile(t, filepath.Join(downloads, "001_notes", "note.txt"), "Watched.")
	st := newFakeStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	cmd := newRunCmd(testDeps(st, nil))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--watch", "--only", "ingest", "--interval", "1h"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	// The first run starts immediately; wait for it to store the note.
	deadline := time.Now().Add(5 * time.Second)
	for {
		st.mu.Lock()
		stored := len(st.text)
		st.mu.Unlock()
		if stored == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watch mode did not run the pipeline")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if running, _, _ := pidfile.IsRunning(); !running {
		t.Error("expected the PID file while watching")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch mode did not stop")
	}

	if !strings.Contains(out.String(), "Watching "+downloads) {
		t.Errorf("unexpected output: %q", out.String())
	}
	if path, _ := pidfile.Path(); fileExists(path) {
		t.Error("expected the PID file to be removed")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRunCmd_WatchRejectsNegativeTimings(t *testing.T) {
	downloads := testEnv(t)
	home := filepath.Dir(downloads)
	writeFile(t, filepath.Join(home, ".diary", "config.yaml"), "watch:\n  stabilization_interval_ms: -100\n")

	_, err := execute(newRunCmd(testDeps(newFakeStore(), nil)), "--watch", "--only", "ingest")
	if !errors.Is(err, config.ErrInvalidWatch) {
		t.Fatalf("error = %v, want %v", err, config.ErrInvalidWatch)
	}
	if running, _, _ := pidfile.IsRunning(); running {
		t.Error("PID file left behind after a rejected watch")
	}
}
