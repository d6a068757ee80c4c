// Package archive moves ingested files out of the download tree.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/source"
)

// ErrSourceNotFound is returned when the source file does not exist.
var ErrSourceNotFound = errors.New("source file not found")

// Archiver moves stored files to <root>/YYYY/MM/DD/<batch>/<name>, keeping the
// Gmail or Drive batch folder so the origin of an entry stays visible.
type Archiver struct {
	root string
	now  func() time.Time
}

// NewArchiver creates an Archiver rooted at root.
func NewArchiver(root string) *Archiver {
	return &Archiver{root: root, now: time.Now}
}

// Root returns the archive root.
func (a *Archiver) Root() string {
	return a.root
}

// Archive moves sourcePath and returns its new path. A taken name gets an _N
// suffix. The batch folder is removed once it is empty.
func (a *Archiver) Archive(ctx context.Context, sourcePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrSourceNotFound
		}
		return "", err
	}

	now := a.now()
	batchDir := filepath.Dir(sourcePath)
	destDir := filepath.Join(a.root, now.Format("2006/01/02"), filepath.Base(batchDir))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}
	dest := source.UniquePath(destDir, filepath.Base(sourcePath), now)

	if err := move(ctx, sourcePath, dest, info.Mode()); err != nil {
		return "", err
	}

	// Fails while the folder still holds other files.
	_ = os.Remove(batchDir)
	return dest, nil
}

// move renames src, falling back to copy and delete across devices. The
// original is removed only after a complete copy.
func move(ctx context.Context, src, dst string, mode os.FileMode) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst, mode); err != nil {
		os.Remove(dst)
		return fmt.Errorf("archive file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		os.Remove(dst)
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source file: %w", err)
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
