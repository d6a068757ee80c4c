package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-diary/internal/config"
	"github.com/TechnicallyShaun/nota-diary/internal/diary"
	"github.com/TechnicallyShaun/nota-diary/internal/logging"
	"github.com/TechnicallyShaun/nota-diary/internal/store"
	"github.com/TechnicallyShaun/nota-diary/internal/transcribe/client"
)

// fakeStore records what the commands persist.
type fakeStore struct {
	mu      sync.Mutex
	known   map[string]bool
	audio   []*diary.RunRecord
	text    []*diary.RunRecord
	entries []store.Entry
	mail    []*diary.MailMessage
	schema  bool
	closed  bool
	nextID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{known: map[string]bool{}}
}

func (s *fakeStore) KnownPaths(ctx context.Context, paths []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]bool{}
	for _, p := range paths {
		if s.known[p] {
			out[p] = true
		}
	}
	return out, nil
}

func (s *fakeStore) IngestAudio(ctx context.Context, rec *diary.RunRecord, opts diary.EntryOptions) (*diary.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, rec)
	return s.record(rec), nil
}

func (s *fakeStore) IngestText(ctx context.Context, rec *diary.RunRecord, opts diary.EntryOptions) (*diary.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = append(s.text, rec)
	return s.record(rec), nil
}

func (s *fakeStore) record(rec *diary.RunRecord) *diary.IngestResult {
	s.nextID++
	if rec.SourceFile != "" {
		s.known[rec.SourceFile] = true
	}
	return &diary.IngestResult{DiaryID: s.nextID, RunID: s.nextID}
}

func (s *fakeStore) SaveMessage(ctx context.Context, m *diary.MailMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mail = append(s.mail, m)
	return int64(len(s.mail)), nil
}

func (s *fakeStore) InitSchema(ctx context.Context) error {
	s.schema = true
	return nil
}

func (s *fakeStore) RecentEntries(ctx context.Context, limit int) ([]store.Entry, error) {
	if limit < len(s.entries) {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

// echoProvider returns a fixed transcript for every request.
func echoProvider(text string) client.Provider {
	return client.ProviderFunc(func(ctx context.Context, req client.Request) (*diary.Transcription, error) {
		return diary.NormalizeResponse([]byte(`{"text":"` + text + `"}`))
	})
}

func testDeps(st *fakeStore, p client.Provider) deps {
	return deps{
		openStore: func(ctx context.Context, dsn string) (diaryStore, error) {
			return st, nil
		},
		newProvider: func(cfg config.TranscriptionConfig, logger logging.Logger) (client.Provider, error) {
			return p, nil
		},
	}
}

// testEnv points HOME, the config and the log directory at a temp dir and
// returns the download directory.
func testEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	chdir(t, home)
	t.Setenv("HOME", home)
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv("DATABASE_URL", "postgres://diary@localhost/diary_test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LOG_DIR", filepath.Join(home, "logs"))
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ENVIRONMENT", "")

	downloads := filepath.Join(home, "downloads")
	t.Setenv("DOWNLOAD_DIR", downloads)
	if err := os.MkdirAll(downloads, 0755); err != nil {
		t.Fatal(err)
	}
	return downloads
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs cmd with args and returns stdout. Log output is discarded.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// chdir changes the working directory to dir and restores it on cleanup,
// mirroring testing.T.Chdir for toolchains that predate it.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
