package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TechnicallyShaun/nota-diary/internal/pipeline/pidfile"
	"github.com/TechnicallyShaun/nota-diary/internal/pipeline/status"
)

func TestStatusCmd_NotRunningNoActivity(t *testing.T) {
	testEnv(t)

	output, err := execute(NewStatusCmd())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(output, "Pipeline: not running\n") {
		t.Errorf("expected not running, got: %q", output)
	}
	if !strings.Contains(output, "Files ingested: 0") {
		t.Errorf("expected zero files, got: %q", output)
	}
	if strings.Contains(output, "Last ingested") {
		t.Errorf("expected no last ingested line, got: %q", output)
	}
}

func TestStatusCmd_TodaysActivity(t *testing.T) {
	testEnv(t)
	logDir := filepath.Join(t.TempDir(), "logs")
	t.Setenv("LOG_DIR", logDir)

	writeFile(t, status.TodayLogPath(logDir), `time="2026-01-22T10:00:06Z" level=info msg="file ingested" component=ingest diary_id=7 path=/data/001_a/memo.m4a run_id=7
time="2026-01-22T10:00:07Z" level=error msg="file failed" component=ingest error="remote call failed" path=/data/002_b/bad.m4a
time="2026-01-22T10:00:08Z" level=info msg="pipeline run finished" component=pipeline
`)

	output, err := execute(NewStatusCmd())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	for _, want := range []string{
		"Files ingested: 1",
		"Pipeline runs:  1",
		"Errors:         1",
		"memo.m4a (diary 7)",
		"Last run:",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestStatusCmd_Running(t *testing.T) {
	testEnv(t)

	if err := pidfile.Write(os.Getpid()); err != nil {
		t.Fatal(err)
	}

	output, err := execute(NewStatusCmd())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(output, "Pipeline: running (PID") {
		t.Errorf("expected running, got: %q", output)
	}
}
