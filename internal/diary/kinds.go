// Package diary holds the types shared across the ingestion pipeline: file kinds,
// the canonical transcription record, extracted documents and error kinds.
package diary

import (
	"path/filepath"
	"strings"
)

// Kind is the category of a candidate input file.
type Kind string

const (
	KindAudio Kind = "audio"
	KindText  Kind = "text"
)

// AudioExtensions are the audio formats accepted for transcription.
var AudioExtensions = []string{".mp3", ".m4a", ".wav"}

// TextExtensions are the document formats accepted for extraction.
var TextExtensions = []string{".txt", ".docx", ".pdf"}

// Extensions returns the allow-list for the kind.
func (k Kind) Extensions() []string {
	switch k {
	case KindAudio:
		return AudioExtensions
	case KindText:
		return TextExtensions
	default:
		return nil
	}
}

// Matches reports whether path has one of the kind's extensions, ignoring case.
func (k Kind) Matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range k.Extensions() {
		if ext == allowed {
			return true
		}
	}
	return false
}

// KindOf returns the kind for path, or false when the extension is not allowed.
func KindOf(path string) (Kind, bool) {
	switch {
	case KindAudio.Matches(path):
		return KindAudio, true
	case KindText.Matches(path):
		return KindText, true
	default:
		return "", false
	}
}
