package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"usage", errors.New("give one audio file or --stdin"), ExitUsage},
		{"not found", fmt.Errorf("%w: /x.mp3", diary.ErrNotFound), ExitFile},
		{"unsupported", fmt.Errorf("%w: .ogg", diary.ErrUnsupportedType), ExitFile},
		{"decode", fmt.Errorf("%w: bad json", diary.ErrDecode), ExitFile},
		{"remote", fmt.Errorf("%w: 500", diary.ErrRemoteCall), ExitRemote},
		{"empty", fmt.Errorf("wrapped: %w", diary.ErrEmptyContent), ExitRemote},
		{"ffmpeg", ErrFFmpegMissing, ExitFFmpeg},
		{"store", fmt.Errorf("%w: connection refused", diary.ErrStore), ExitStore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
