// Package pidfile manages the PID file of the watch-mode pipeline.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Common errors
var (
	ErrNoPIDFile      = errors.New("no PID file found")
	ErrInvalidPID     = errors.New("invalid PID in file")
	ErrAlreadyRunning = errors.New("pipeline is already running")
)

const (
	pidFileName = "diary.pid"
	dirName     = ".diary"
	dirPerm     = 0755
	filePerm    = 0644
)

const pollInterval = 100 * time.Millisecond

// Path returns the path to the PID file (~/.diary/diary.pid)
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, dirName, pidFileName), nil
}

// Write creates the PID file with the given process ID.
// Creates parent directories if needed.
func Write(pid int) error {
	path, err := Path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	content := strconv.Itoa(pid) + "\n"
	if err := os.WriteFile(path, []byte(content), filePerm); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// Read reads the PID from the PID file.
// Returns ErrNoPIDFile if the file doesn't exist.
// Returns ErrInvalidPID if the file contains invalid data.
func Read() (int, error) {
	path, err := Path()
	if err != nil {
		return 0, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNoPIDFile
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, ErrInvalidPID
	}
	return pid, nil
}

// Remove deletes the PID file.
// Returns nil if the file doesn't exist.
func Remove() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}

// Alive reports whether a process with pid exists.
func Alive(pid int) (bool, error) {
	// Signal 0 checks existence without delivering anything.
	err := syscall.Kill(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, syscall.ESRCH):
		return false, nil
	case errors.Is(err, syscall.EPERM):
		// Exists but belongs to someone else.
		return true, nil
	default:
		return false, fmt.Errorf("check process: %w", err)
	}
}

// IsRunning checks if the process with the PID in the file is alive.
// Returns (running, pid, error).
// If there's no PID file, returns (false, 0, nil).
// If the PID file exists but the process is not running (stale), returns (false, pid, nil).
func IsRunning() (bool, int, error) {
	pid, err := Read()
	if err != nil {
		if errors.Is(err, ErrNoPIDFile) {
			return false, 0, nil
		}
		return false, 0, err
	}

	alive, err := Alive(pid)
	return alive, pid, err
}

// CleanStale removes the PID file if it's stale (process not running).
// Returns true if a stale PID file was removed.
func CleanStale() (bool, error) {
	running, pid, err := IsRunning()
	if err != nil {
		return false, err
	}
	if running || pid == 0 {
		return false, nil
	}
	if err := Remove(); err != nil {
		return false, err
	}
	return true, nil
}

// Acquire writes the current process ID unless another live process holds
// the file. A stale file is replaced.
func Acquire() error {
	running, pid, err := IsRunning()
	if err != nil && !errors.Is(err, ErrInvalidPID) {
		return err
	}
	if running && pid != os.Getpid() {
		return fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
	}
	return Write(os.Getpid())
}

// Terminate sends SIGTERM to pid and waits up to timeout for it to exit,
// then sends SIGKILL. It reports whether SIGKILL was needed.
func Terminate(pid int, timeout time.Duration) (bool, error) {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return false, nil
		}
		return false, fmt.Errorf("send SIGTERM: %w", err)
	}
	if waitForExit(pid, timeout) {
		return false, nil
	}

	if err := process.Signal(syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return true, fmt.Errorf("send SIGKILL: %w", err)
	}
	waitForExit(pid, 2*time.Second)
	return true, nil
}

// waitForExit polls until the process exits or timeout is reached
func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if alive, err := Alive(pid); err != nil || !alive {
			return true
		}
		time.Sleep(pollInterval)
	}
	return false
}
