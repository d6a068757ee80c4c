package pipeline

import (
	"context"

	"github.com/TechnicallyShaun/nota-diary/internal/ingest"
	"github.com/TechnicallyShaun/nota-diary/internal/source/drive"
	"github.com/TechnicallyShaun/nota-diary/internal/source/gmail"
)

// GmailPhase saves attachments from new messages. Counts are messages.
func GmailPhase(d *gmail.Downloader) PhaseFunc {
	return func(ctx context.Context) (int, int, error) {
		r, err := d.Run(ctx)
		return r.Processed, r.Messages, err
	}
}

// DrivePhase downloads new Drive files. Counts are files.
func DrivePhase(d *drive.Downloader) PhaseFunc {
	return func(ctx context.Context) (int, int, error) {
		r, err := d.Run(ctx)
		return r.Downloaded, r.Total, err
	}
}

// BatchRunner is satisfied by *ingest.Processor.
type BatchRunner interface {
	Run(ctx context.Context, opts ingest.BatchOptions) (ingest.Summary, error)
}

// ProcessPhase transcribes and stores every unprocessed audio file.
func ProcessPhase(p BatchRunner, opts ingest.BatchOptions) PhaseFunc {
	opts.Batch, opts.SkipAudio, opts.SkipText = true, false, true
	return func(ctx context.Context) (int, int, error) {
		s, err := p.Run(ctx, opts)
		return s.Audio.Successful, s.Audio.Total, err
	}
}

// IngestPhase extracts and stores every unprocessed text document.
func IngestPhase(p BatchRunner, opts ingest.BatchOptions) PhaseFunc {
	opts.Batch, opts.SkipAudio, opts.SkipText = true, true, false
	return func(ctx context.Context) (int, int, error) {
		s, err := p.Run(ctx, opts)
		return s.Text.Successful, s.Text.Total, err
	}
}
