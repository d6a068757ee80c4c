// Package store persists diary entries and their transcription runs in Postgres.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the database handle.
type Store struct {
	DB *sql.DB
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: database url is empty", diary.ErrStore)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", diary.ErrStore, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", diary.ErrStore, err)
	}
	return &Store{DB: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Schema returns the DDL statements applied by InitSchema.
func Schema() []string {
	var stmts []string
	for _, part := range strings.Split(schemaSQL, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// InitSchema creates the tables and indexes if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range Schema() {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: apply schema: %v", diary.ErrStore, err)
		}
	}
	return nil
}

// KnownPaths returns which of paths already have a source_file row.
func (s *Store) KnownPaths(ctx context.Context, paths []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(paths) == 0 {
		return known, nil
	}

	rows, err := s.DB.QueryContext(ctx, `select path from source_file where path = any($1)`, paths)
	if err != nil {
		return nil, fmt.Errorf("%w: query source paths: %v", diary.ErrStore, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("%w: scan source path: %v", diary.ErrStore, err)
		}
		known[p] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", diary.ErrStore, err)
	}
	return known, nil
}

// IngestAudio writes the source file, diary entry, run and usage rows for a
// transcription in one transaction.
func (s *Store) IngestAudio(ctx context.Context, rec *diary.RunRecord, opts diary.EntryOptions) (*diary.IngestResult, error) {
	if rec.Usage == nil {
		rec.Usage = &diary.Usage{}
	}
	return s.ingest(ctx, rec, opts)
}

// IngestText writes the source file, diary entry and stub run for an
// extracted document in one transaction. No usage row is written.
func (s *Store) IngestText(ctx context.Context, rec *diary.RunRecord, opts diary.EntryOptions) (*diary.IngestResult, error) {
	rec.Usage = nil
	return s.ingest(ctx, rec, opts)
}

func (s *Store) ingest(ctx context.Context, rec *diary.RunRecord, opts diary.EntryOptions) (result *diary.IngestResult, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", diary.ErrStore, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	result = &diary.IngestResult{}

	if rec.SourceFile != "" {
		var id int64
		err = tx.QueryRowContext(ctx, `
			insert into source_file (path) values ($1)
			on conflict (path) do update set path = excluded.path
			returning id`, rec.SourceFile).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("%w: upsert source file: %v", diary.ErrStore, err)
		}
		result.SourceFileID = &id
	}

	title := opts.Title
	if title == "" {
		title = rec.Title
	}
	var tags []string
	if len(opts.Tags) > 0 {
		tags = opts.Tags
	}

	err = tx.QueryRowContext(ctx, `
		insert into diary (title, text, mood, tags)
		values ($1, $2, $3, $4)
		returning id`,
		nullString(title), rec.Text, nullString(opts.Mood), tags,
	).Scan(&result.DiaryID)
	if err != nil {
		return nil, fmt.Errorf("%w: insert diary: %v", diary.ErrStore, err)
	}

	err = tx.QueryRowContext(ctx, `
		insert into transcription_run (
			diary_id, run_uuid, source_file_id, model, detect_model, forced_language,
			language_routing_enabled, routed_language, probe_seconds, ffmpeg_used,
			logprobs_present, response_json
		) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		returning id`,
		result.DiaryID, rec.RunUUID.String(), result.SourceFileID, nullString(rec.Model),
		rec.DetectModel, rec.ForcedLanguage, rec.LanguageRoutingEnabled, rec.RoutedLanguage,
		rec.ProbeSeconds, rec.FFmpegUsed, rec.LogprobsPresent, string(rec.ResponseJSON),
	).Scan(&result.RunID)
	if err != nil {
		return nil, fmt.Errorf("%w: insert transcription run: %v", diary.ErrStore, err)
	}

	if u := rec.Usage; u != nil {
		var id int64
		err = tx.QueryRowContext(ctx, `
			insert into transcription_usage (
				run_id, type, input_tokens, output_tokens, total_tokens, audio_tokens, text_tokens
			) values ($1, $2, $3, $4, $5, $6, $7)
			returning id`,
			result.RunID, nullString(u.Type), u.InputTokens, u.OutputTokens, u.TotalTokens,
			u.AudioTokens, u.TextTokens,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("%w: insert usage: %v", diary.ErrStore, err)
		}
		result.UsageID = &id
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", diary.ErrStore, err)
	}
	return result, nil
}

// Entry is one diary row joined with its run and usage.
type Entry struct {
	DiaryID        int64
	Title          string
	Text           string
	Mood           string
	Tags           []string
	CreatedAt      time.Time
	SourcePath     string
	Model          string
	RoutedLanguage string
	FFmpegUsed     sql.NullBool
	TotalTokens    sql.NullInt64
}

// RecentEntries returns up to limit diary entries, newest first.
func (s *Store) RecentEntries(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.DB.QueryContext(ctx, `
		select d.id, d.title, d.text, d.mood, d.tags, d.created_at,
		       sf.path, r.model, r.routed_language, r.ffmpeg_used, u.total_tokens
		from diary d
		left join transcription_run r on r.diary_id = d.id
		left join source_file sf on sf.id = r.source_file_id
		left join transcription_usage u on u.run_id = r.id
		order by d.created_at desc, d.id desc
		limit $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query entries: %v", diary.ErrStore, err)
	}
	defer rows.Close()

	typeMap := pgtype.NewMap()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var title, mood, path, model, routed sql.NullString
		err := rows.Scan(
			&e.DiaryID, &title, &e.Text, &mood, typeMap.SQLScanner(&e.Tags), &e.CreatedAt,
			&path, &model, &routed, &e.FFmpegUsed, &e.TotalTokens,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan entry: %v", diary.ErrStore, err)
		}
		e.Title = title.String
		e.Mood = mood.String
		e.SourcePath = path.String
		e.Model = model.String
		e.RoutedLanguage = routed.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", diary.ErrStore, err)
	}
	return entries, nil
}

// RunResponse returns the stored response_json of a run.
func (s *Store) RunResponse(ctx context.Context, runID int64) ([]byte, error) {
	var raw []byte
	err := s.DB.QueryRowContext(ctx, `select response_json from transcription_run where id = $1`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %d not found", diary.ErrStore, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query run: %v", diary.ErrStore, err)
	}
	return raw, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
