// Package transcribe turns one audio file into a normalized transcription,
// optionally routing it to a language detected from a short probe.
package transcribe

import (
	"context"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
	"github.com/TechnicallyShaun/nota-diary/internal/langdetect"
)

// LanguageDetector resolves the spoken language before the main call.
type LanguageDetector interface {
	// Detect never fails; an empty Result.Language means provider auto-detect.
	Detect(ctx context.Context, path, detectModel string, probeSeconds int, useProbe bool) langdetect.Result
	// FFmpegAvailable reports whether a probe slice can be cut.
	FFmpegAvailable() bool
}

// Transcriber is implemented by Service.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, opts Options) (*diary.Transcription, error)
}

var _ LanguageDetector = (*langdetect.Detector)(nil)
