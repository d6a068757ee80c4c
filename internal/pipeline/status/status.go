// Package status summarises the pipeline's daily log file for `diary status`.
package status

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/logging"
)

// Log messages the parser looks for.
const (
	MsgFileIngested = "file ingested"
	MsgRunFinished  = "pipeline run finished"
)

// Stats holds parsed statistics from the log file.
type Stats struct {
	FilesIngested int
	Errors        int
	Runs          int
	LastIngested  *IngestedFile
	LastRun       time.Time
}

// IngestedFile holds information about the last stored file.
type IngestedFile struct {
	Timestamp time.Time
	Path      string
	DiaryID   int64
}

// TodayLogPath returns the path to today's log file in dir.
func TodayLogPath(dir string) string {
	return logging.FilePath(dir, logging.DefaultPrefix, time.Now())
}

// ParseToday parses today's log file in dir.
func ParseToday(dir string) (*Stats, error) {
	return ParseLogFile(TodayLogPath(dir))
}

// fieldPattern matches key=value and key="quoted value" pairs of the logfmt
// lines written by the file hook.
var fieldPattern = regexp.MustCompile(`(\w+)=("(?:[^"\\]|\\.)*"|\S*)`)

// ParseLogFile parses a log file and returns statistics.
// Returns empty stats if the file doesn't exist.
func ParseLogFile(path string) (*Stats, error) {
	stats := &Stats{}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := ParseLine(scanner.Text())
		if fields == nil {
			continue
		}

		if fields["level"] == "error" {
			stats.Errors++
		}

		switch fields["msg"] {
		case MsgFileIngested:
			stats.FilesIngested++
			ts, err := time.Parse(time.RFC3339, fields["time"])
			if err != nil {
				continue
			}
			id, _ := strconv.ParseInt(fields["diary_id"], 10, 64)
			stats.LastIngested = &IngestedFile{
				Timestamp: ts,
				Path:      fields["path"],
				DiaryID:   id,
			}
		case MsgRunFinished:
			stats.Runs++
			if ts, err := time.Parse(time.RFC3339, fields["time"]); err == nil {
				stats.LastRun = ts
			}
		}
	}

	return stats, scanner.Err()
}

// ParseLine splits one logfmt line into its fields, unquoting values.
// Returns nil for lines without a msg field.
func ParseLine(line string) map[string]string {
	matches := fieldPattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}
	fields := make(map[string]string, len(matches))
	for _, m := range matches {
		fields[m[1]] = unquoteIfNeeded(m[2])
	}
	if _, ok := fields["msg"]; !ok {
		return nil
	}
	return fields
}

func unquoteIfNeeded(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	return s
}

// FormatTimestamp formats a timestamp for display.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02T15:04:05")
}

// BaseName returns just the filename from a path.
func BaseName(path string) string {
	return filepath.Base(strings.TrimSuffix(path, "/"))
}
