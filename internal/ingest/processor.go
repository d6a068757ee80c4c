package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
	"github.com/TechnicallyShaun/nota-diary/internal/discovery"
	"github.com/TechnicallyShaun/nota-diary/internal/extract"
	"github.com/TechnicallyShaun/nota-diary/internal/logging"
	"github.com/TechnicallyShaun/nota-diary/internal/transcribe"
)

// Store persists ingested files.
type Store interface {
	discovery.PathLookup
	IngestAudio(ctx context.Context, rec *diary.RunRecord, opts diary.EntryOptions) (*diary.IngestResult, error)
	IngestText(ctx context.Context, rec *diary.RunRecord, opts diary.EntryOptions) (*diary.IngestResult, error)
}

// SidecarWriter saves a transcription next to its audio file.
type SidecarWriter interface {
	Write(ctx context.Context, t *diary.Transcription, audioPath string) (string, error)
}

// Archiver moves an ingested file out of the download tree.
type Archiver interface {
	Archive(ctx context.Context, sourcePath string) (string, error)
}

// ExtractFunc reads a document.
type ExtractFunc func(path string) (*diary.ExtractedText, []extract.Warning, error)

// Counts is the (successful, total) tally for one category.
type Counts struct {
	Successful int `json:"successful"`
	Total      int `json:"total"`
}

// Failed returns the number of files that did not make it into the store.
func (c Counts) Failed() int {
	return c.Total - c.Successful
}

func (c Counts) String() string {
	return fmt.Sprintf("%d/%d", c.Successful, c.Total)
}

// Summary reports one batch run.
type Summary struct {
	Audio Counts `json:"audio"`
	Text  Counts `json:"text"`
	// Last is the result of the last file stored, nil when none was.
	Last *diary.IngestResult `json:"last,omitempty"`
}

// Successful returns the number of files stored across categories.
func (s Summary) Successful() int {
	return s.Audio.Successful + s.Text.Successful
}

// Total returns the number of files attempted across categories.
func (s Summary) Total() int {
	return s.Audio.Total + s.Text.Total
}

// BatchOptions select what a run processes.
type BatchOptions struct {
	// Root is the download directory.
	Root string
	// OneLevel limits discovery to immediate batch folders.
	OneLevel bool
	// Batch processes every unprocessed file instead of only the newest.
	Batch bool
	// Reprocess skips the processed-set filter.
	Reprocess bool
	// SkipAudio and SkipText disable a category.
	SkipAudio bool
	SkipText  bool
	Entry     diary.EntryOptions
}

// Processor runs the discover, transcribe or extract, and store loop.
type Processor struct {
	store       Store
	transcriber transcribe.Transcriber
	opts        transcribe.Options
	extract     ExtractFunc
	sidecar     SidecarWriter
	archiver    Archiver
	logger      logging.Logger
}

// Option configures the Processor.
type Option func(*Processor)

// WithSidecar writes transcript.json files with w.
func WithSidecar(w SidecarWriter) Option {
	return func(p *Processor) {
		p.sidecar = w
	}
}

// WithArchiver moves each stored file with a.
func WithArchiver(a Archiver) Option {
	return func(p *Processor) {
		p.archiver = a
	}
}

// WithExtractor replaces the document reader.
func WithExtractor(fn ExtractFunc) Option {
	return func(p *Processor) {
		p.extract = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// NewProcessor creates a Processor. transcriber may be nil when only text
// documents or JSON replays are ingested.
func NewProcessor(store Store, transcriber transcribe.Transcriber, opts transcribe.Options, options ...Option) *Processor {
	p := &Processor{
		store:       store,
		transcriber: transcriber,
		opts:        opts,
		extract:     extract.Extract,
		logger:      logging.Nop(),
	}
	for _, opt := range options {
		opt(p)
	}
	p.logger = p.logger.WithComponent("ingest")
	return p
}

// Run processes audio, then text documents, under opts.Root. Per-file
// failures are logged and counted; only context cancellation stops the run.
func (p *Processor) Run(ctx context.Context, opts BatchOptions) (Summary, error) {
	var summary Summary

	if !opts.SkipAudio {
		counts, last, err := p.runKind(ctx, diary.KindAudio, opts)
		summary.Audio = counts
		if last != nil {
			summary.Last = last
		}
		if err != nil {
			return summary, err
		}
	}

	if !opts.SkipText {
		counts, last, err := p.runKind(ctx, diary.KindText, opts)
		summary.Text = counts
		if last != nil {
			summary.Last = last
		}
		if err != nil {
			return summary, err
		}
	}

	p.logger.Info("ingestion finished",
		logging.String("audio", summary.Audio.String()),
		logging.String("text", summary.Text.String()),
	)
	return summary, nil
}

// Select returns the files a run would process for kind.
func (p *Processor) Select(ctx context.Context, kind diary.Kind, opts BatchOptions) []string {
	candidates := discovery.FindCandidates(opts.Root, kind, opts.OneLevel, p.logger)
	p.logger.Debug("candidates found",
		logging.String("kind", string(kind)),
		logging.Int("count", len(candidates)),
	)

	toProcess := candidates
	if !opts.Reprocess {
		toProcess = discovery.FilterUnprocessed(ctx, p.store, candidates, p.logger)
		p.logger.Info("unprocessed files",
			logging.String("kind", string(kind)),
			logging.Int("count", len(toProcess)),
		)
	}

	if !opts.Batch && len(toProcess) > 0 {
		newest, _ := discovery.PickNewest(toProcess)
		p.logger.Info("selected newest file",
			logging.String("kind", string(kind)),
			logging.String("path", newest),
		)
		toProcess = []string{newest}
	}
	return toProcess
}

func (p *Processor) runKind(ctx context.Context, kind diary.Kind, opts BatchOptions) (Counts, *diary.IngestResult, error) {
	var (
		counts Counts
		last   *diary.IngestResult
	)

	files := p.Select(ctx, kind, opts)
	if len(files) == 0 {
		p.logger.Info("nothing to process", logging.String("kind", string(kind)))
		return counts, nil, nil
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return counts, last, err
		}
		counts.Total++

		result, err := p.ProcessFile(ctx, path, opts.Entry)
		if err != nil {
			p.logger.Error("file failed", err,
				logging.String("kind", string(kind)),
				logging.String("path", path),
			)
			continue
		}
		counts.Successful++
		last = result
	}
	return counts, last, nil
}

// ProcessFile ingests one audio file or document, chosen by extension.
func (p *Processor) ProcessFile(ctx context.Context, path string, entry diary.EntryOptions) (*diary.IngestResult, error) {
	kind, ok := diary.KindOf(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", diary.ErrUnsupportedType, path)
	}
	if kind == diary.KindAudio {
		return p.IngestAudioFile(ctx, path, entry)
	}
	return p.IngestTextFile(ctx, path, entry)
}

// IngestAudioFile transcribes path, writes the sidecar and stores the result.
func (p *Processor) IngestAudioFile(ctx context.Context, path string, entry diary.EntryOptions) (*diary.IngestResult, error) {
	if p.transcriber == nil {
		return nil, fmt.Errorf("%w: no transcription provider configured", diary.ErrRemoteCall)
	}
	start := time.Now()

	t, err := p.transcriber.Transcribe(ctx, path, p.opts)
	if err != nil {
		return nil, err
	}

	if p.sidecar != nil {
		out, err := p.sidecar.Write(ctx, t, path)
		if err != nil {
			p.logger.Warn("failed to save transcript",
				logging.String("path", path),
				logging.String("error", err.Error()),
			)
		} else {
			p.logger.Info("transcript saved", logging.String("path", out))
		}
	}

	result, err := p.IngestTranscription(ctx, t, entry)
	if err != nil {
		return nil, err
	}
	p.finish(ctx, path, result, start)
	return result, nil
}

// IngestTranscription stores an already transcribed response.
func (p *Processor) IngestTranscription(ctx context.Context, t *diary.Transcription, entry diary.EntryOptions) (*diary.IngestResult, error) {
	rec, err := ParseTranscription(t)
	if err != nil {
		return nil, err
	}
	return p.store.IngestAudio(ctx, rec, entry)
}

// IngestTextFile extracts path and stores it with a stub run.
func (p *Processor) IngestTextFile(ctx context.Context, path string, entry diary.EntryOptions) (*diary.IngestResult, error) {
	start := time.Now()

	x, warnings, err := p.extract(path)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		p.logger.Warn("extraction warning",
			logging.String("path", path),
			logging.String("warning", w.String()),
		)
	}

	rec, err := BuildTextRecord(x)
	if err != nil {
		return nil, err
	}
	if rec.Text != x.Text {
		p.logger.Warn("no text content extracted", logging.String("path", path))
	}

	result, err := p.store.IngestText(ctx, rec, entry)
	if err != nil {
		return nil, err
	}
	p.finish(ctx, path, result, start)
	return result, nil
}

// Replay ingests a saved transcription response from a JSON file.
func (p *Processor) Replay(ctx context.Context, jsonPath string, entry diary.EntryOptions) (*diary.IngestResult, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", diary.ErrNotFound, jsonPath)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", diary.ErrDecode, jsonPath)
	}
	t, err := diary.NormalizeResponse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", diary.ErrDecode, err)
	}

	result, err := p.IngestTranscription(ctx, t, entry)
	if err != nil {
		return nil, err
	}
	p.logger.Info("file ingested",
		logging.String("path", jsonPath),
		logging.Int64("diary_id", result.DiaryID),
		logging.Int64("run_id", result.RunID),
	)
	return result, nil
}

// finish logs the stored file and archives it when an archiver is set.
func (p *Processor) finish(ctx context.Context, path string, result *diary.IngestResult, start time.Time) {
	p.logger.Info("file ingested",
		logging.String("path", path),
		logging.Int64("diary_id", result.DiaryID),
		logging.Int64("run_id", result.RunID),
		logging.Duration("elapsed", time.Since(start)),
	)

	if p.archiver == nil {
		return
	}
	dest, err := p.archiver.Archive(ctx, path)
	if err != nil {
		p.logger.Warn("failed to archive file",
			logging.String("path", path),
			logging.String("error", err.Error()),
		)
		return
	}
	p.logger.Debug("file archived",
		logging.String("path", path),
		logging.String("archive", dest),
	)
}
