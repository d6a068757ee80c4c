// Package output writes transcription responses next to the audio they came from.
package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
)

// SidecarName is the preferred transcript file name.
const SidecarName = "transcript.json"

// Writer saves transcripts as indented JSON.
type Writer struct {
	now func() time.Time
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{now: time.Now}
}

// Write saves t beside audioPath and returns the created file. An existing
// transcript.json is never overwritten; the new file gets a timestamp suffix.
func (w *Writer) Write(ctx context.Context, t *diary.Transcription, audioPath string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	dir := filepath.Dir(audioPath)
	filename, err := w.generateFilename(dir)
	if err != nil {
		return "", fmt.Errorf("failed to generate filename: %w", err)
	}
	outputPath := filepath.Join(dir, filename)

	content, err := Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}

	if err := os.WriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return outputPath, nil
}

// Marshal encodes t as two-space indented JSON without HTML escaping.
func Marshal(t *diary.Transcription) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// generateFilename picks transcript.json, then transcript-YYYYMMDD-HHMMSS.json,
// then numbered variants (-2, -3, ...) of the latter.
func (w *Writer) generateFilename(dir string) (string, error) {
	if !exists(filepath.Join(dir, SidecarName)) {
		return SidecarName, nil
	}

	baseName := "transcript-" + w.now().Format("20060102-150405")
	ext := ".json"

	filename := baseName + ext
	if !exists(filepath.Join(dir, filename)) {
		return filename, nil
	}

	for i := 2; i <= 1000; i++ {
		filename = fmt.Sprintf("%s-%d%s", baseName, i, ext)
		if !exists(filepath.Join(dir, filename)) {
			return filename, nil
		}
	}

	return "", fmt.Errorf("too many transcripts with same timestamp")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
