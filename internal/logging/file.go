package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// dailyFile is an io.Writer that reopens itself when the UTC date changes.
type dailyFile struct {
	dir           string
	prefix        string
	retentionDays int

	mu          sync.Mutex
	file        *os.File
	currentDate string
	closed      bool
}

func openDailyFile(dir, prefix string, retentionDays int) (*dailyFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f := &dailyFile{dir: dir, prefix: prefix, retentionDays: retentionDays}
	if err := f.rotateIfNeeded(); err != nil {
		return nil, err
	}

	if err := f.cleanOldLogs(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to clean old logs: %v\n", err)
	}

	return f, nil
}

func (f *dailyFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, os.ErrClosed
	}
	if err := f.rotateIfNeeded(); err != nil {
		return 0, err
	}
	return f.file.Write(p)
}

func (f *dailyFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

func (f *dailyFile) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file != nil {
		return f.file.Name()
	}
	return FilePath(f.dir, f.prefix, time.Now())
}

func (f *dailyFile) rotateIfNeeded() error {
	today := time.Now().UTC().Format("2006-01-02")

	if f.currentDate == today && f.file != nil {
		return nil
	}

	if f.file != nil {
		f.file.Close()
		f.file = nil
	}

	path := FilePath(f.dir, f.prefix, time.Now())
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	f.file = file
	f.currentDate = today
	return nil
}

func (f *dailyFile) cleanOldLogs() error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	prefix := f.prefix + "-"
	cutoff := time.Now().UTC().AddDate(0, 0, -f.retentionDays)

	var toDelete []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") {
			continue
		}

		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".log")
		logDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}

		if logDate.Before(cutoff) {
			toDelete = append(toDelete, filepath.Join(f.dir, name))
		}
	}

	sort.Strings(toDelete)

	for _, path := range toDelete {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove old log file %s: %w", path, err)
		}
	}
	return nil
}

// fileHook writes every entry to the daily file in a fixed logfmt layout,
// independent of the console formatter.
type fileHook struct {
	file      *dailyFile
	formatter logrus.Formatter
}

func newFileHook(file *dailyFile) *fileHook {
	return &fileHook{
		file: file,
		formatter: &logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		},
	}
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.file.Write(line)
	if errors.Is(err, os.ErrClosed) {
		// Entries logged after Close only reach the console.
		return nil
	}
	return err
}
