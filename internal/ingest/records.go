// Package ingest turns transcriptions and extracted documents into stored
// diary entries, one file at a time.
package ingest

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
)

// TextIngestionType marks response_json rows written for documents.
const TextIngestionType = "text_document"

// ParseTranscription flattens a transcription into the rows stored for it.
// Blank text is a data error. The full response, _meta included, becomes
// response_json.
func ParseTranscription(t *diary.Transcription) (*diary.RunRecord, error) {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return nil, diary.ErrEmptyContent
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}

	meta := t.Meta
	if meta == nil {
		meta = &diary.Meta{}
	}

	usage := t.Usage
	if usage == nil {
		usage = &diary.Usage{}
	}

	logprobs := t.Logprobs != nil
	return &diary.RunRecord{
		RunUUID:                uuid.New(),
		SourceFile:             meta.SourceFile,
		Text:                   text,
		Title:                  stem(meta.SourceFile),
		Model:                  meta.Model,
		DetectModel:            optional(meta.DetectModel),
		ForcedLanguage:         &meta.ForcedLanguage,
		LanguageRoutingEnabled: &meta.LanguageRoutingEnabled,
		RoutedLanguage:         meta.RoutedLanguage,
		ProbeSeconds:           meta.ProbeSeconds,
		FFmpegUsed:             &meta.FFmpegUsed,
		LogprobsPresent:        &logprobs,
		ResponseJSON:           raw,
		Usage:                  usage,
	}, nil
}

type textResponse struct {
	Text          string `json:"text"`
	SourceFile    string `json:"source_file"`
	FileType      string `json:"file_type"`
	IngestionType string `json:"ingestion_type"`
}

// BuildTextRecord builds the stub run for an extracted document. Routing
// fields stay NULL and the model names the extractor. Empty text is replaced
// by a placeholder so the entry is still created.
func BuildTextRecord(x *diary.ExtractedText) (*diary.RunRecord, error) {
	text := x.Text
	if strings.TrimSpace(text) == "" {
		text = Placeholder(x.SourceFile)
	}

	raw, err := json.Marshal(textResponse{
		Text:          text,
		SourceFile:    x.SourceFile,
		FileType:      x.FileType,
		IngestionType: TextIngestionType,
	})
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}

	return &diary.RunRecord{
		RunUUID:      uuid.New(),
		SourceFile:   x.SourceFile,
		Text:         text,
		Title:        x.Title,
		Model:        "text_extractor_" + x.FileType,
		ResponseJSON: raw,
	}, nil
}

// Placeholder is the diary text stored for a document with no extractable text.
func Placeholder(path string) string {
	return fmt.Sprintf("[No text content extracted from %s]", filepath.Base(path))
}

// stem is the base name without extension, empty for an empty path.
func stem(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
