// Package source holds the helpers shared by the Gmail and Drive download
// phases. The phases themselves live in the gmail and drive subpackages.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxFilenameLength caps sanitized names, extension included.
const MaxFilenameLength = 200

// maxDuplicates bounds the name_N search before UniquePath falls back to a timestamp.
const maxDuplicates = 1000

const unsafeChars = "<>:\"|?*\\/\x00"

// SanitizeFilename replaces characters that are unsafe on common filesystems
// with underscores, trims leading and trailing dots and spaces, and caps the
// length while keeping the extension. fallback is used for empty results.
func SanitizeFilename(name, fallback string) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeChars, r) {
			return '_'
		}
		return r
	}, name)
	clean = strings.Trim(clean, ". ")
	if clean == "" {
		return fallback
	}

	if len(clean) > MaxFilenameLength {
		ext := filepath.Ext(clean)
		if len(ext) >= MaxFilenameLength {
			ext = ""
		}
		clean = clean[:MaxFilenameLength-len(ext)] + ext
	}
	return clean
}

// UniquePath returns dir/name, or dir/name_N.ext for the first N that does
// not exist yet.
func UniquePath(dir, name string, now time.Time) string {
	candidate := filepath.Join(dir, name)
	if !exists(candidate) {
		return candidate
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; i <= maxDuplicates; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if !exists(candidate) {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, now.Format("20060102_150405"), ext))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
