package diary

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ExtractedText is the normalized result of reading a text document.
type ExtractedText struct {
	Text       string `json:"text"`
	Title      string `json:"title"`
	SourceFile string `json:"source_file"`
	FileType   string `json:"file_type"`
}

// EntryOptions carries the user-supplied diary fields.
type EntryOptions struct {
	Title string
	Mood  string
	Tags  []string
}

// RunRecord is everything persisted for one ingested file: the diary text,
// the run row and, for audio, the usage row. Nil pointers are stored as NULL.
type RunRecord struct {
	RunUUID uuid.UUID
	// SourceFile is the absolute path; empty means no source_file row.
	SourceFile string
	// Text is the diary text.
	Text string
	// Title is used when EntryOptions.Title is empty.
	Title string

	Model                  string
	DetectModel            *string
	ForcedLanguage         *bool
	LanguageRoutingEnabled *bool
	RoutedLanguage         *string
	ProbeSeconds           *int
	FFmpegUsed             *bool
	LogprobsPresent        *bool
	ResponseJSON           json.RawMessage

	// Usage is non-nil exactly for audio runs.
	Usage *Usage
}

// IngestResult identifies the rows written for one ingested file.
type IngestResult struct {
	DiaryID      int64  `json:"diary_id"`
	SourceFileID *int64 `json:"source_file_id"`
	RunID        int64  `json:"run_id"`
	UsageID      *int64 `json:"usage_id"`
}
