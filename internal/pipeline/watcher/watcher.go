// Package watcher reports new diary files under the download directory once
// they have finished writing. Watch mode uses it to start a run early.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
	"github.com/TechnicallyShaun/nota-diary/internal/logging"
)

// FileEvent represents a detected file.
type FileEvent struct {
	Path      string
	Size      int64
	Timestamp time.Time
}

// Watcher watches the download root and its batch folders.
type Watcher struct {
	fs         *fsnotify.Watcher
	stabilizer Stabilizer
	logger     logging.Logger

	mu      sync.Mutex
	pending map[string]bool
	wg      sync.WaitGroup
}

// New creates a Watcher. A nil stabilizer reports files as soon as they appear.
func New(stabilizer Stabilizer, logger logging.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Watcher{
		fs:         fs,
		stabilizer: stabilizer,
		logger:     logger.WithComponent("watcher"),
		pending:    make(map[string]bool),
	}, nil
}

// Watch starts watching root and its existing immediate subdirectories.
// Folders created later are added as they appear. The returned channel is
// closed when ctx is done or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context, root string) (<-chan FileEvent, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create watch root: %w", err)
	}
	if err := w.fs.Add(root); err != nil {
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addDir(filepath.Join(root, e.Name()))
		}
	}

	events := make(chan FileEvent, 100)
	go w.loop(ctx, root, events)
	return events, nil
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) loop(ctx context.Context, root string, events chan<- FileEvent) {
	defer func() {
		w.wg.Wait()
		close(events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ctx, root, evt, events)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", logging.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, root string, evt fsnotify.Event, events chan<- FileEvent) {
	if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Rename) {
		return
	}

	info, err := os.Stat(evt.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		// Batch folders sit directly under root.
		if filepath.Dir(evt.Name) == filepath.Clean(root) {
			w.addDir(evt.Name)
			w.scanDir(ctx, evt.Name, events)
		}
		return
	}

	w.track(ctx, evt.Name, events)
}

func (w *Watcher) addDir(dir string) {
	if err := w.fs.Add(dir); err != nil {
		w.logger.Warn("failed to watch folder",
			logging.String("path", dir),
			logging.String("error", err.Error()),
		)
	}
}

// scanDir picks up files written before the folder watch was added.
func (w *Watcher) scanDir(ctx context.Context, dir string, events chan<- FileEvent) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.track(ctx, filepath.Join(dir, e.Name()), events)
		}
	}
}

// track stabilizes path in the background and reports it once.
func (w *Watcher) track(ctx context.Context, path string, events chan<- FileEvent) {
	if _, ok := diary.KindOf(path); !ok {
		return
	}

	w.mu.Lock()
	if w.pending[path] {
		w.mu.Unlock()
		return
	}
	w.pending[path] = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.pending, path)
			w.mu.Unlock()
		}()

		if w.stabilizer != nil {
			if err := w.stabilizer.WaitForStable(ctx, path); err != nil {
				if !errors.Is(err, context.Canceled) {
					w.logger.Debug("file not stable",
						logging.String("path", path),
						logging.String("error", err.Error()),
					)
				}
				return
			}
		}

		info, err := os.Stat(path)
		if err != nil {
			return
		}
		select {
		case events <- FileEvent{Path: path, Size: info.Size(), Timestamp: time.Now()}:
		case <-ctx.Done():
		}
	}()
}
