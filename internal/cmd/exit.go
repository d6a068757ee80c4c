package cmd

import (
	"errors"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
)

// Process exit codes
const (
	ExitOK     = 0
	ExitUsage  = 1
	ExitFile   = 2
	ExitRemote = 3
	ExitFFmpeg = 4
	ExitStore  = 5
)

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, diary.ErrNotFound),
		errors.Is(err, diary.ErrUnsupportedType),
		errors.Is(err, diary.ErrDecode):
		return ExitFile
	case errors.Is(err, diary.ErrRemoteCall),
		errors.Is(err, diary.ErrEmptyContent):
		return ExitRemote
	case errors.Is(err, ErrFFmpegMissing):
		return ExitFFmpeg
	case errors.Is(err, diary.ErrStore):
		return ExitStore
	default:
		return ExitUsage
	}
}
