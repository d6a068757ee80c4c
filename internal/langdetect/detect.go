package langdetect

import (
	"context"

	"github.com/TechnicallyShaun/nota-diary/internal/logging"
	"github.com/TechnicallyShaun/nota-diary/internal/transcribe/client"
)

// Result is the outcome of a detection attempt.
type Result struct {
	// Language is the detected code, empty when nothing scored.
	Language string
	// ProbeUsed is true only when an ffmpeg slice was created and sent.
	ProbeUsed bool
	// Transcript is the cheap transcript the scores were computed from.
	Transcript string
}

// Detected reports whether a language was found.
func (r Result) Detected() bool {
	return r.Language != ""
}

// Detector runs the cheap-model detection pass.
type Detector struct {
	provider client.Provider
	slicer   *Slicer
	keywords Keywords
	logger   logging.Logger
}

// Option configures the Detector.
type Option func(*Detector)

// WithSlicer sets the ffmpeg slicer.
func WithSlicer(s *Slicer) Option {
	return func(d *Detector) {
		d.slicer = s
	}
}

// WithKeywords replaces the keyword table.
func WithKeywords(k Keywords) Option {
	return func(d *Detector) {
		d.keywords = k
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Detector) {
		d.logger = l
	}
}

// NewDetector creates a Detector that transcribes with provider.
func NewDetector(provider client.Provider, opts ...Option) *Detector {
	d := &Detector{
		provider: provider,
		slicer:   NewSlicer(nil),
		keywords: DefaultKeywords,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FFmpegAvailable reports whether probing is possible.
func (d *Detector) FFmpegAvailable() bool {
	return d.slicer.Available()
}

// Detect transcribes the leading probeSeconds of path (or the whole file when
// probing is off, ffmpeg is missing or slicing fails) with detectModel and
// scores the transcript. Provider failures are logged and yield no language.
func (d *Detector) Detect(ctx context.Context, path, detectModel string, probeSeconds int, useProbe bool) Result {
	var result Result
	input := path

	if useProbe && d.slicer.Available() {
		probe, cleanup, err := d.slicer.Slice(ctx, path, probeSeconds)
		if cleanup != nil {
			defer cleanup()
		}
		if err != nil {
			d.logger.Warn("probe slice failed, using full file",
				logging.String("file", path),
				logging.String("error", err.Error()),
			)
		} else {
			input = probe
			result.ProbeUsed = true
		}
	}

	t, err := d.provider.Transcribe(ctx, client.Request{
		Path:        input,
		Model:       detectModel,
		Temperature: 0,
		Format:      client.FormatText,
	})
	if err != nil {
		d.logger.Warn("language detection failed",
			logging.String("file", path),
			logging.String("model", detectModel),
			logging.String("error", err.Error()),
		)
		return result
	}

	result.Transcript = t.Text
	if lang, ok := d.keywords.Best(t.Text); ok {
		result.Language = lang
	}

	d.logger.Debug("language detection finished",
		logging.String("file", path),
		logging.String("language", result.Language),
		logging.Bool("probe_used", result.ProbeUsed),
	)
	return result
}
