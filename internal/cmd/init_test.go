package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TechnicallyShaun/nota-diary/internal/config"
)

func TestInitCmd_RejectsArguments(t *testing.T) {
	chdir(t, t.TempDir())

	if _, err := execute(NewInitCmd(), "extra"); err == nil {
		t.Error("expected error when an argument is given")
	}
}

func TestInitCmd_WritesConfig(t *testing.T) {
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	output, err := execute(NewInitCmd())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	path := filepath.Join(config.MarkerDir, config.FileName)
	if _, err := os.Stat(filepath.Join(tmpDir, path)); err != nil {
		t.Errorf("expected %s to be created: %v", path, err)
	}
	if output != "Wrote "+path+"\n" {
		t.Errorf("expected success message, got: %q", output)
	}
}

func TestInitCmd_ReturnsErrorWhenConfigExists(t *testing.T) {
	chdir(t, t.TempDir())

	if _, err := execute(NewInitCmd()); err != nil {
		t.Fatalf("first init: %v", err)
	}
	_, err := execute(NewInitCmd())
	if !errors.Is(err, config.ErrConfigExists) {
		t.Fatalf("expected ErrConfigExists, got: %v", err)
	}
	if !strings.Contains(err.Error(), config.FileName) {
		t.Errorf("expected error to name the file, got: %v", err)
	}
}

func TestInitDBCmd_CreatesSchema(t *testing.T) {
	testEnv(t)
	st := newFakeStore()

	output, err := execute(newInitDBCmd(testDeps(st, nil)))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !st.schema {
		t.Error("expected InitSchema to be called")
	}
	if !st.closed {
		t.Error("expected the store to be closed")
	}
	if !strings.Contains(output, "Database schema is ready") {
		t.Errorf("unexpected output: %q", output)
	}
}

func TestInitDBCmd_RequiresDatabaseURL(t *testing.T) {
	testEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := execute(newInitDBCmd(testDeps(newFakeStore(), nil)))
	if !errors.Is(err, config.ErrDatabaseURLRequired) {
		t.Errorf("expected ErrDatabaseURLRequired, got: %v", err)
	}
}
