package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
	"github.com/TechnicallyShaun/nota-diary/internal/logging"
	"github.com/TechnicallyShaun/nota-diary/internal/transcribe/client"
	"github.com/TechnicallyShaun/nota-diary/internal/transcribe/metadata"
)

// DryRunText is the transcript returned by a dry run.
const DryRunText = "[DRY RUN] This is a mock transcription result. No API calls were made."

// Service runs language routing and the main transcription call.
type Service struct {
	provider client.Provider
	detector LanguageDetector
	logger   logging.Logger
}

var _ Transcriber = (*Service)(nil)

// NewService creates a transcription service. A nil logger discards output.
func NewService(provider client.Provider, detector LanguageDetector, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		provider: provider,
		detector: detector,
		logger:   logger.WithComponent("transcribe"),
	}
}

// Transcribe validates path, resolves the language and transcribes the file.
// The result carries a Meta block describing how it was produced. Provider
// failures wrap diary.ErrRemoteCall and are not retried here.
func (s *Service) Transcribe(ctx context.Context, path string, opts Options) (*diary.Transcription, error) {
	opts.ApplyDefaults()

	abs, err := validateAudio(path)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		return s.dryRun(abs, opts), nil
	}

	start := time.Now()
	s.logger.Info("transcribing",
		logging.String("file", abs),
		logging.String("model", opts.Model),
	)

	selected := opts.Language
	probeUsed := false
	if selected == "" && opts.LanguageRouting && s.detector != nil {
		result := s.detector.Detect(ctx, abs, opts.DetectModel, opts.ProbeSeconds, opts.UseProbe)
		selected = result.Language
		probeUsed = result.ProbeUsed
		s.logger.Info("language routing finished",
			logging.String("file", abs),
			logging.String("language", selected),
			logging.Bool("probe_used", probeUsed),
		)
	}

	t, err := s.provider.Transcribe(ctx, client.Request{
		Path:        abs,
		Model:       opts.Model,
		Language:    selected,
		Temperature: opts.Temperature,
		Format:      client.FormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", diary.ErrRemoteCall, err)
	}

	t.Meta = &diary.Meta{
		Model:                  opts.Model,
		DetectModel:            opts.DetectModel,
		SourceFile:             abs,
		ForcedLanguage:         opts.Language != "",
		LanguageRoutingEnabled: opts.LanguageRouting,
		RoutedLanguage:         optionalString(selected),
		ProbeSeconds:           probeSeconds(opts),
		FFmpegUsed:             probeUsed,
	}
	s.addRecording(t.Meta, abs)

	s.logger.Info("transcription complete",
		logging.String("file", abs),
		logging.Int("chars", len(t.Text)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return t, nil
}

// dryRun reports the calls a real run would make and returns a mock result.
func (s *Service) dryRun(abs string, opts Options) *diary.Transcription {
	ffmpeg := s.detector != nil && s.detector.FFmpegAvailable()
	detect := opts.LanguageRouting && opts.Language == ""
	probe := detect && opts.UseProbe && ffmpeg

	s.logger.Info("dry run",
		logging.String("file", abs),
		logging.Bool("ffmpeg_available", ffmpeg),
		logging.Bool("would_detect_language", detect),
		logging.Bool("would_use_probe", probe),
		logging.String("model", opts.Model),
	)
	if detect {
		s.logger.Info("dry run would call detect model",
			logging.String("detect_model", opts.DetectModel),
			logging.Bool("probe", probe),
		)
	}

	language := opts.Language
	if language == "" {
		language = "auto-detect"
	}
	return &diary.Transcription{
		Text:     DryRunText,
		Language: language,
		Meta: &diary.Meta{
			Model:                  opts.Model,
			DetectModel:            opts.DetectModel,
			SourceFile:             abs,
			ForcedLanguage:         opts.Language != "",
			LanguageRoutingEnabled: opts.LanguageRouting,
			ProbeSeconds:           probeSeconds(opts),
			FFmpegUsed:             probe,
			DryRun:                 true,
			FFmpegAvailable:        &ffmpeg,
		},
	}
}

// addRecording copies the container's recording time and duration into meta.
func (s *Service) addRecording(meta *diary.Meta, path string) {
	rec, err := metadata.Read(path)
	if err != nil {
		if !errors.Is(err, metadata.ErrUnsupported) {
			s.logger.Debug("no recording metadata",
				logging.String("file", path),
				logging.String("error", err.Error()),
			)
		}
		return
	}
	if !rec.RecordedAt.IsZero() {
		at := rec.RecordedAt
		meta.RecordedAt = &at
	}
	if rec.Duration > 0 {
		secs := rec.Duration.Seconds()
		meta.DurationSeconds = &secs
	}
}

func validateAudio(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", diary.ErrNotFound, abs)
	}
	if !diary.KindAudio.Matches(abs) {
		return "", fmt.Errorf("%w: %s", diary.ErrUnsupportedType, filepath.Ext(abs))
	}
	return abs, nil
}

func probeSeconds(opts Options) *int {
	if !opts.UseProbe {
		return nil
	}
	n := opts.ProbeSeconds
	return &n
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
