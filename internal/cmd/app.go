package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-diary/internal/config"
	"github.com/TechnicallyShaun/nota-diary/internal/diary"
	"github.com/TechnicallyShaun/nota-diary/internal/ingest"
	"github.com/TechnicallyShaun/nota-diary/internal/ingest/archive"
	"github.com/TechnicallyShaun/nota-diary/internal/ingest/output"
	"github.com/TechnicallyShaun/nota-diary/internal/langdetect"
	"github.com/TechnicallyShaun/nota-diary/internal/logging"
	"github.com/TechnicallyShaun/nota-diary/internal/source/drive"
	"github.com/TechnicallyShaun/nota-diary/internal/source/gmail"
	"github.com/TechnicallyShaun/nota-diary/internal/source/googleauth"
	"github.com/TechnicallyShaun/nota-diary/internal/store"
	"github.com/TechnicallyShaun/nota-diary/internal/transcribe"
	"github.com/TechnicallyShaun/nota-diary/internal/transcribe/client"
)

// diaryStore is the part of *store.Store the commands use.
type diaryStore interface {
	ingest.Store
	gmail.MessageStore
	InitSchema(ctx context.Context) error
	RecentEntries(ctx context.Context, limit int) ([]store.Entry, error)
	Close() error
}

// deps builds the external collaborators. Tests replace them with fakes.
type deps struct {
	openStore   func(ctx context.Context, dsn string) (diaryStore, error)
	newProvider func(cfg config.TranscriptionConfig, logger logging.Logger) (client.Provider, error)
}

func defaultDeps() deps {
	return deps{
		openStore: func(ctx context.Context, dsn string) (diaryStore, error) {
			st, err := store.Open(ctx, dsn)
			if err != nil {
				return nil, err
			}
			return st, nil
		},
		newProvider: transcribe.NewProvider,
	}
}

// app is the configuration and logger shared by one command invocation.
type app struct {
	cfg    *config.Config
	logger *logging.LogrusLogger
	deps   deps
}

// newApp loads the configuration and creates the logger. Console output goes
// to the command's stderr.
func newApp(cmd *cobra.Command, d deps) (*app, error) {
	g := globals(cmd)

	cfg, err := config.Load(config.Options{ConfigPath: g.configPath, EnvFile: g.envFile})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.logDir != "" {
		cfg.LogDir = g.logDir
	}

	lc := logging.DefaultConfig()
	lc.Level = cfg.LogLevel
	if g.debug {
		lc.Level = "debug"
	}
	lc.Output = cmd.ErrOrStderr()
	lc.LogDir = cfg.LogDir

	logger, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return &app{cfg: cfg, logger: logger, deps: d}, nil
}

// Close flushes the log file.
func (a *app) Close() error {
	return a.logger.Close()
}

// openStore validates the database settings and connects.
func (a *app) openStore(ctx context.Context) (diaryStore, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	return a.deps.openStore(ctx, a.cfg.DatabaseURL)
}

// transcriber builds the transcription service. A dry run needs no provider.
func (a *app) transcriber(dryRun bool) (*transcribe.Service, error) {
	slicer := langdetect.NewSlicer(nil)
	if dryRun {
		detector := langdetect.NewDetector(nil, langdetect.WithSlicer(slicer))
		return transcribe.NewService(nil, detector, a.logger), nil
	}

	if err := a.cfg.ValidateTranscription(); err != nil {
		return nil, err
	}
	provider, err := a.deps.newProvider(a.cfg.Transcription, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	detector := langdetect.NewDetector(provider,
		langdetect.WithSlicer(slicer),
		langdetect.WithLogger(a.logger.WithComponent("langdetect")),
	)
	return transcribe.NewService(provider, detector, a.logger), nil
}

// processor builds the ingestion processor. t may be nil when no audio is
// processed.
func (a *app) processor(st ingest.Store, t transcribe.Transcriber) *ingest.Processor {
	opts := []ingest.Option{ingest.WithLogger(a.logger)}
	if a.cfg.WriteSidecar() {
		opts = append(opts, ingest.WithSidecar(output.NewWriter()))
	}
	if a.cfg.Ingest.ArchiveDir != "" {
		opts = append(opts, ingest.WithArchiver(archive.NewArchiver(a.cfg.Ingest.ArchiveDir)))
	}
	return ingest.NewProcessor(st, t, transcribe.OptionsFromConfig(a.cfg.Transcription), opts...)
}

// batchOptions are the configured defaults for a batch run.
func (a *app) batchOptions() ingest.BatchOptions {
	return ingest.BatchOptions{
		Root:     a.cfg.DownloadDir,
		OneLevel: a.cfg.OneLevel(),
		Entry: diary.EntryOptions{
			Mood: a.cfg.Ingest.Mood,
			Tags: a.cfg.Ingest.Tags,
		},
	}
}

// gmailDownloader builds the Gmail phase. When message recording is on it
// also connects to the database; the returned func closes that connection.
// A database that cannot be reached only disables recording.
func (a *app) gmailDownloader(ctx context.Context) (*gmail.Downloader, func(), error) {
	noop := func() {}
	g := a.cfg.Gmail
	if g.CredentialsFile == "" {
		return nil, noop, fmt.Errorf("gmail: %w", config.ErrCredentialsRequired)
	}
	clientOpts, err := googleauth.ClientOptions(ctx, googleauth.Options{
		CredentialsFile: g.CredentialsFile,
		TokenFile:       g.TokenFile,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("gmail: %w", err)
	}
	dl, err := gmail.New(ctx, gmail.OptionsFromConfig(a.cfg.DownloadDir, g), a.logger, clientOpts...)
	if err != nil {
		return nil, noop, err
	}
	if !a.cfg.RecordGmail() {
		return dl, noop, nil
	}

	st, err := a.deps.openStore(ctx, a.cfg.DatabaseURL)
	if err != nil {
		a.logger.Warn("gmail messages will not be recorded", logging.String("error", err.Error()))
		return dl, noop, nil
	}
	return dl.WithStore(st), func() { st.Close() }, nil
}

func (a *app) driveDownloader(ctx context.Context) (*drive.Downloader, error) {
	d := a.cfg.Drive
	if d.CredentialsFile == "" {
		return nil, fmt.Errorf("drive: %w", config.ErrCredentialsRequired)
	}
	clientOpts, err := googleauth.ClientOptions(ctx, googleauth.Options{
		CredentialsFile: d.CredentialsFile,
		TokenFile:       d.TokenFile,
	})
	if err != nil {
		return nil, fmt.Errorf("drive: %w", err)
	}
	return drive.New(ctx, drive.OptionsFromConfig(a.cfg.DownloadDir, d), a.logger, clientOpts...)
}
