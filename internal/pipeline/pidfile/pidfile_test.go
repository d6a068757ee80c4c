package pidfile

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// stalePID is near the Linux PID maximum and almost certainly unused.
const stalePID = 4194300

func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeRaw(t *testing.T, home, content string) string {
	t.Helper()
	dir := filepath.Join(home, ".diary")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "diary.pid")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPath(t *testing.T) {
	home := withHome(t)

	path, err := Path()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if want := filepath.Join(home, ".diary", "diary.pid"); path != want {
		t.Errorf("Path() = %s, want %s", path, want)
	}
}

func TestWriteAndRead(t *testing.T) {
	withHome(t)

	if err := Write(12345); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	pid, err := Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if pid != 12345 {
		t.Errorf("expected PID 12345, got %d", pid)
	}

	path, _ := Path()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("expected permissions 644, got %o", info.Mode().Perm())
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"missing", "", ErrNoPIDFile},
		{"not a number", "not-a-number\n", ErrInvalidPID},
		{"negative", "-1\n", ErrInvalidPID},
		{"zero", "0\n", ErrInvalidPID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := withHome(t)
			if tt.content != "" {
				writeRaw(t, home, tt.content)
			}
			if _, err := Read(); !errors.Is(err, tt.want) {
				t.Errorf("Read() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	withHome(t)

	if err := Remove(); err != nil {
		t.Errorf("expected no error removing nonexistent file, got: %v", err)
	}

	Write(12345)
	if err := Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	path, _ := Path()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected PID file to be removed")
	}
}

func TestIsRunning(t *testing.T) {
	home := withHome(t)

	running, pid, err := IsRunning()
	if err != nil || running || pid != 0 {
		t.Errorf("no file: IsRunning() = %v, %d, %v", running, pid, err)
	}

	Write(os.Getpid())
	running, pid, err = IsRunning()
	if err != nil || !running || pid != os.Getpid() {
		t.Errorf("self: IsRunning() = %v, %d, %v", running, pid, err)
	}

	writeRaw(t, home, strconv.Itoa(stalePID)+"\n")
	running, pid, err = IsRunning()
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if running {
		t.Skip("stale PID is unexpectedly running, skipping test")
	}
	if pid != stalePID {
		t.Errorf("expected PID %d, got %d", stalePID, pid)
	}
}

func TestCleanStale(t *testing.T) {
	home := withHome(t)
	path := writeRaw(t, home, strconv.Itoa(stalePID)+"\n")

	removed, err := CleanStale()
	if err != nil {
		t.Fatalf("CleanStale failed: %v", err)
	}
	if !removed {
		t.Error("expected stale PID file to be removed")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected PID file to be removed")
	}

	Write(os.Getpid())
	removed, err = CleanStale()
	if err != nil || removed {
		t.Errorf("running process: CleanStale() = %v, %v", removed, err)
	}
}

func TestAcquire(t *testing.T) {
	home := withHome(t)

	writeRaw(t, home, strconv.Itoa(stalePID)+"\n")
	if err := Acquire(); err != nil {
		t.Fatalf("Acquire over stale file: %v", err)
	}
	pid, _ := Read()
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	// PID 1 always exists.
	writeRaw(t, home, "1\n")
	if err := Acquire(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Acquire() error = %v, want %v", err, ErrAlreadyRunning)
	}
}

func TestTerminate(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	killed, err := Terminate(cmd.Process.Pid, 5*time.Second)
	if err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	if killed {
		t.Error("sleep should exit on SIGTERM without SIGKILL")
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process still running")
	}
}
