// Package discovery finds candidate input files under the download root and
// narrows them to the ones not yet ingested.
package discovery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
	"github.com/TechnicallyShaun/nota-diary/internal/logging"
)

// FindCandidates returns files of the given kind under root.
//
// In one-level mode every immediate subdirectory of root is a batch folder and
// only files directly inside those folders are returned; files in root itself
// and anything two or more levels deep are ignored. Otherwise the whole tree is
// walked. A missing or non-directory root yields no candidates.
func FindCandidates(root string, kind diary.Kind, oneLevel bool, logger logging.Logger) []string {
	if logger == nil {
		logger = logging.Nop()
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		logger.Warn("download root is not a directory", logging.String("root", root))
		return nil
	}

	if oneLevel {
		return findOneLevel(root, kind, logger)
	}
	return findRecursive(root, kind, logger)
}

func findOneLevel(root string, kind diary.Kind, logger logging.Logger) []string {
	batches, err := os.ReadDir(root)
	if err != nil {
		logger.Warn("failed to read download root", logging.String("root", root), logging.String("error", err.Error()))
		return nil
	}

	var out []string
	for _, batch := range batches {
		batchDir := filepath.Join(root, batch.Name())
		if !isDir(batchDir, batch) {
			continue
		}
		entries, err := os.ReadDir(batchDir)
		if err != nil {
			logger.Warn("failed to read batch folder", logging.String("dir", batchDir), logging.String("error", err.Error()))
			continue
		}
		for _, entry := range entries {
			path := filepath.Join(batchDir, entry.Name())
			if kind.Matches(entry.Name()) && isRegular(path, entry) {
				out = append(out, path)
			}
		}
	}
	return out
}

func findRecursive(root string, kind diary.Kind, logger logging.Logger) []string {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("skipping unreadable path", logging.String("path", path), logging.String("error", err.Error()))
			return nil
		}
		if kind.Matches(path) && isRegular(path, d) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		logger.Warn("walk failed", logging.String("root", root), logging.String("error", err.Error()))
	}
	return out
}

// isDir and isRegular follow symlinks. WalkDir still does not descend into
// linked directories.
func isDir(path string, d fs.DirEntry) bool {
	if d.Type()&fs.ModeSymlink == 0 {
		return d.IsDir()
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isRegular(path string, d fs.DirEntry) bool {
	if d.Type()&fs.ModeSymlink == 0 {
		return d.Type().IsRegular()
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// PathLookup reports which of the given absolute paths are already stored.
type PathLookup interface {
	KnownPaths(ctx context.Context, paths []string) (map[string]bool, error)
}

// FilterUnprocessed drops candidates whose absolute path is already known to
// the store, preserving input order. The returned paths are absolute. If the
// lookup fails every candidate is returned.
func FilterUnprocessed(ctx context.Context, lookup PathLookup, candidates []string, logger logging.Logger) []string {
	if logger == nil {
		logger = logging.Nop()
	}
	if len(candidates) == 0 {
		return nil
	}

	abs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		p, err := filepath.Abs(c)
		if err != nil {
			p = c
		}
		abs = append(abs, p)
	}

	known, err := lookup.KnownPaths(ctx, abs)
	if err != nil {
		logger.Warn("processed-set lookup failed, treating all candidates as new",
			logging.String("error", err.Error()),
			logging.Int("candidates", len(abs)),
		)
		return abs
	}

	out := make([]string, 0, len(abs))
	for _, p := range abs {
		if !known[p] {
			out = append(out, p)
		}
	}
	return out
}

type fileTimes struct {
	path  string
	lower string
	mtime time.Time
	ctime time.Time
}

// PickNewest returns the path with the latest (mtime, ctime), ties broken by
// the lowercased path in descending order. Unreadable files sort as the zero time.
func PickNewest(paths []string) (string, bool) {
	if len(paths) == 0 {
		return "", false
	}

	files := make([]fileTimes, 0, len(paths))
	for _, p := range paths {
		ft := fileTimes{path: p, lower: strings.ToLower(p)}
		if info, err := os.Stat(p); err == nil {
			ft.mtime = info.ModTime()
			ft.ctime = changeTime(info)
		}
		files = append(files, ft)
	}

	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if !a.mtime.Equal(b.mtime) {
			return a.mtime.After(b.mtime)
		}
		if !a.ctime.Equal(b.ctime) {
			return a.ctime.After(b.ctime)
		}
		return a.lower > b.lower
	})

	return files[0].path, true
}
