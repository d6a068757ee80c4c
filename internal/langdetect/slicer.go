package langdetect

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// ProbeFileName is the name of the slice written inside the probe directory.
const ProbeFileName = "probe.wav"

// MinProbeSeconds is the shortest slice that is ever cut.
const MinProbeSeconds = 5

// CommandExecutor runs external commands.
type CommandExecutor interface {
	ExecuteCommand(ctx context.Context, name string, args []string) ([]byte, error)
	LookPath(file string) (string, error)
}

// ExecCommandExecutor runs commands with os/exec.
type ExecCommandExecutor struct{}

// ExecuteCommand runs name with args and returns combined output.
func (ExecCommandExecutor) ExecuteCommand(ctx context.Context, name string, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// LookPath searches PATH for file.
func (ExecCommandExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Slicer cuts the leading seconds of an audio file into a mono 16 kHz WAV.
type Slicer struct {
	exec CommandExecutor
	// TempDir is the parent for probe directories (default: os.TempDir()).
	TempDir string
}

// NewSlicer creates a Slicer; a nil executor uses os/exec.
func NewSlicer(executor CommandExecutor) *Slicer {
	if executor == nil {
		executor = ExecCommandExecutor{}
	}
	return &Slicer{exec: executor}
}

// Available reports whether ffmpeg is on PATH.
func (s *Slicer) Available() bool {
	_, err := s.exec.LookPath("ffmpeg")
	return err == nil
}

// Slice writes the first seconds of src to a fresh stt_probe_* directory and
// returns the slice path plus a cleanup func that removes the directory. The
// cleanup is non-nil whenever the directory was created, even on error.
func (s *Slicer) Slice(ctx context.Context, src string, seconds int) (string, func(), error) {
	if seconds < MinProbeSeconds {
		seconds = MinProbeSeconds
	}

	dir, err := os.MkdirTemp(s.TempDir, "stt_probe_")
	if err != nil {
		return "", nil, fmt.Errorf("create probe dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	out := filepath.Join(dir, ProbeFileName)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", src,
		"-t", strconv.Itoa(seconds),
		"-ac", "1",
		"-ar", "16000",
		"-vn",
		out,
	}

	if output, err := s.exec.ExecuteCommand(ctx, "ffmpeg", args); err != nil {
		return "", cleanup, fmt.Errorf("ffmpeg: %w: %s", err, output)
	}

	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return "", cleanup, fmt.Errorf("ffmpeg produced no probe file")
	}

	return out, cleanup, nil
}
