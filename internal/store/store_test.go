package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
)

func TestSchema(t *testing.T) {
	stmts := Schema()

	tables := []string{
		"source_file", "diary", "transcription_run", "transcription_usage",
		"gml_threads", "gml_labels", "gml_messages", "gml_message_labels", "gml_attachments",
	}
	for _, table := range tables {
		found := false
		for _, stmt := range stmts {
			if strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS "+table+" ") {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("schema has no table %s", table)
		}
	}
	for _, stmt := range stmts {
		if strings.Contains(stmt, ";") {
			t.Errorf("statement not split: %q", stmt)
		}
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	if !errors.Is(err, diary.ErrStore) {
		t.Errorf("Open() error = %v, want %v", err, diary.ErrStore)
	}
}

// openTestStore connects to DIARY_TEST_DATABASE_URL and skips without it.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DIARY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DIARY_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }
func i64Ptr(i int64) *int64   { return &i }

func audioRecord(path, text string) *diary.RunRecord {
	resp, _ := json.Marshal(map[string]any{
		"text":  text,
		"_meta": map[string]any{"source_file": path},
	})
	return &diary.RunRecord{
		RunUUID:                uuid.New(),
		SourceFile:             path,
		Text:                   text,
		Model:                  "gpt-4o-transcribe",
		DetectModel:            strPtr("gpt-4o-mini-transcribe"),
		ForcedLanguage:         boolPtr(false),
		LanguageRoutingEnabled: boolPtr(true),
		RoutedLanguage:         strPtr("pt"),
		ProbeSeconds:           intPtr(25),
		FFmpegUsed:             boolPtr(true),
		LogprobsPresent:        boolPtr(false),
		ResponseJSON:           resp,
		Usage: &diary.Usage{
			Type:        "tokens",
			InputTokens: i64Ptr(120),
			TotalTokens: i64Ptr(150),
			AudioTokens: i64Ptr(100),
		},
	}
}

func TestIngestAudio_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	path := "/tmp/diary-test/" + uuid.NewString() + "/note.m4a"

	res, err := s.IngestAudio(ctx, audioRecord(path, "Bom dia"), diary.EntryOptions{Mood: "calm", Tags: []string{"morning"}})
	if err != nil {
		t.Fatalf("IngestAudio() error = %v", err)
	}
	if res.SourceFileID == nil || res.UsageID == nil {
		t.Fatalf("result = %+v, want source file and usage ids", res)
	}

	raw, err := s.RunResponse(ctx, res.RunID)
	if err != nil {
		t.Fatalf("RunResponse() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal response_json: %v", err)
	}
	if got["text"] != "Bom dia" {
		t.Errorf("response_json text = %v, want %q", got["text"], "Bom dia")
	}

	known, err := s.KnownPaths(ctx, []string{path, path + ".other"})
	if err != nil {
		t.Fatalf("KnownPaths() error = %v", err)
	}
	if !known[path] || known[path+".other"] {
		t.Errorf("KnownPaths() = %v", known)
	}
}

func TestIngest_ReprocessSharesSourceFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	path := "/tmp/diary-test/" + uuid.NewString() + "/note.wav"

	first, err := s.IngestAudio(ctx, audioRecord(path, "one"), diary.EntryOptions{})
	if err != nil {
		t.Fatalf("first IngestAudio() error = %v", err)
	}
	second, err := s.IngestAudio(ctx, audioRecord(path, "two"), diary.EntryOptions{})
	if err != nil {
		t.Fatalf("second IngestAudio() error = %v", err)
	}

	if *first.SourceFileID != *second.SourceFileID {
		t.Errorf("source file ids differ: %d vs %d", *first.SourceFileID, *second.SourceFileID)
	}
	if first.DiaryID == second.DiaryID || first.RunID == second.RunID {
		t.Errorf("expected distinct diary/run ids, got %+v and %+v", first, second)
	}
}

func TestIngestText_NoUsage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	path := "/tmp/diary-test/" + uuid.NewString() + "/scan.pdf"

	rec := &diary.RunRecord{
		RunUUID:      uuid.New(),
		SourceFile:   path,
		Text:         "[No text content extracted from scan.pdf]",
		Title:        "scan",
		Model:        "text_extractor_pdf",
		ResponseJSON: json.RawMessage(`{"text":"","source_file":"` + path + `","file_type":"pdf","ingestion_type":"text_document"}`),
		Usage:        &diary.Usage{},
	}
	res, err := s.IngestText(ctx, rec, diary.EntryOptions{})
	if err != nil {
		t.Fatalf("IngestText() error = %v", err)
	}
	if res.UsageID != nil {
		t.Errorf("UsageID = %d, want nil", *res.UsageID)
	}

	entries, err := s.RecentEntries(ctx, 20)
	if err != nil {
		t.Fatalf("RecentEntries() error = %v", err)
	}
	for _, e := range entries {
		if e.DiaryID != res.DiaryID {
			continue
		}
		if e.Title != "scan" || e.SourcePath != path || e.Model != "text_extractor_pdf" {
			t.Errorf("entry = %+v", e)
		}
		if e.TotalTokens.Valid {
			t.Errorf("TotalTokens = %v, want NULL", e.TotalTokens)
		}
		return
	}
	t.Errorf("diary %d not among recent entries", res.DiaryID)
}

func TestIngest_RollsBackOnFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	path := "/tmp/diary-test/" + uuid.NewString() + "/bad.mp3"

	rec := audioRecord(path, "bad")
	rec.ResponseJSON = json.RawMessage(`{not json`)

	if _, err := s.IngestAudio(ctx, rec, diary.EntryOptions{}); !errors.Is(err, diary.ErrStore) {
		t.Fatalf("IngestAudio() error = %v, want %v", err, diary.ErrStore)
	}
	known, err := s.KnownPaths(ctx, []string{path})
	if err != nil {
		t.Fatalf("KnownPaths() error = %v", err)
	}
	if known[path] {
		t.Error("source_file row survived a rolled back transaction")
	}
}
