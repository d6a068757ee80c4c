// Package drive downloads diary files from Google Drive folders into
// numbered batch folders under the download directory.
package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/TechnicallyShaun/nota-diary/internal/config"
	"github.com/TechnicallyShaun/nota-diary/internal/diary"
	"github.com/TechnicallyShaun/nota-diary/internal/logging"
	"github.com/TechnicallyShaun/nota-diary/internal/source"
)

const pageSize = 100

const listFields = "nextPageToken, files(id, name, mimeType, size, createdTime)"

// Options configure one download run.
type Options struct {
	DownloadDir   string
	SearchFolders []string
	DeleteAudio   bool
	DeleteText    bool
}

// OptionsFromConfig maps the drive section of the config file.
func OptionsFromConfig(downloadDir string, cfg config.DriveConfig) Options {
	return Options{
		DownloadDir:   downloadDir,
		SearchFolders: cfg.SearchFolders,
		DeleteAudio:   cfg.DeleteAudio,
		DeleteText:    cfg.DeleteText,
	}
}

// File is a Drive file selected for download.
type File struct {
	ID   string
	Name string
	Kind diary.Kind
}

// Result counts one run.
type Result struct {
	Downloaded int
	Total      int
	Files      []string
}

// Downloader copies audio and text files out of Drive.
type Downloader struct {
	svc    *driveapi.Service
	opts   Options
	logger logging.Logger
}

// New creates a Downloader using the given client options.
func New(ctx context.Context, opts Options, logger logging.Logger, clientOpts ...option.ClientOption) (*Downloader, error) {
	svc, err := driveapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if len(opts.SearchFolders) == 0 {
		opts.SearchFolders = []string{config.DefaultSearchFolder}
	}
	return &Downloader{svc: svc, opts: opts, logger: logger.WithComponent("drive")}, nil
}

// List returns the non-trashed files in every search folder, oldest first
// within a folder. A folder that cannot be listed is logged and skipped.
func (d *Downloader) List(ctx context.Context) ([]*driveapi.File, error) {
	var all []*driveapi.File
	for _, folder := range d.opts.SearchFolders {
		files, err := d.listFolder(ctx, folder)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			d.logger.Error("failed to list folder", err, logging.String("folder", folder))
			continue
		}
		d.logger.Info("folder listed",
			logging.String("folder", folder),
			logging.Int("count", len(files)),
		)
		all = append(all, files...)
	}
	return all, nil
}

func (d *Downloader) listFolder(ctx context.Context, folderID string) ([]*driveapi.File, error) {
	var files []*driveapi.File
	query := fmt.Sprintf("'%s' in parents and trashed=false", folderID)
	pageToken := ""

	for {
		call := d.svc.Files.List().
			Q(query).
			OrderBy("createdTime").
			Fields(listFields).
			PageSize(pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list files: %w", err)
		}
		files = append(files, resp.Files...)

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return files, nil
}

// Select keeps files with an allowed extension of kind, in listing order.
func Select(files []*driveapi.File, kind diary.Kind) []File {
	var out []File
	for _, f := range files {
		if kind.Matches(f.Name) {
			out = append(out, File{ID: f.Id, Name: f.Name, Kind: kind})
		}
	}
	return out
}

// BatchDir is the folder for the seq-th file of a run.
func BatchDir(downloadDir string, seq int, fileID string) string {
	return filepath.Join(downloadDir, fmt.Sprintf("%03d_%s", seq, fileID))
}

// Run lists the search folders and downloads audio files, then text files.
// Sequence numbers restart for each kind.
func (d *Downloader) Run(ctx context.Context) (Result, error) {
	var result Result

	files, err := d.List(ctx)
	if err != nil {
		return result, err
	}
	if len(files) == 0 {
		d.logger.Info("no files found")
		return result, nil
	}

	for _, kind := range []diary.Kind{diary.KindAudio, diary.KindText} {
		selected := Select(files, kind)
		d.logger.Info("files selected",
			logging.String("kind", string(kind)),
			logging.Int("count", len(selected)),
		)

		for i, f := range selected {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Total++

			out, err := d.Download(ctx, f, i+1)
			if err != nil {
				d.logger.Error("download failed", err,
					logging.String("id", f.ID),
					logging.String("name", f.Name),
				)
				continue
			}
			result.Downloaded++
			result.Files = append(result.Files, out)
		}
	}

	d.logger.Info("drive download finished",
		logging.Int("downloaded", result.Downloaded),
		logging.Int("total", result.Total),
	)
	return result, nil
}

// Download saves f into its numbered batch folder. An existing file is left
// alone and counts as downloaded. An empty download is removed and reported
// as an error. The Drive copy is deleted afterwards when configured for the kind.
func (d *Downloader) Download(ctx context.Context, f File, seq int) (string, error) {
	dir := BatchDir(d.opts.DownloadDir, seq, f.ID)
	out := filepath.Join(dir, source.SanitizeFilename(f.Name, "unnamed_file"))

	if _, err := os.Stat(out); err == nil {
		d.logger.Warn("file already exists, skipping", logging.String("path", out))
		return out, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create batch dir: %w", err)
	}

	resp, err := d.svc.Files.Get(f.ID).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("download %s: %w", f.Name, err)
	}
	defer resp.Body.Close()

	n, err := writeFile(out, resp.Body)
	if err != nil {
		os.Remove(out)
		return "", err
	}
	if n == 0 {
		os.Remove(out)
		return "", fmt.Errorf("download %s: empty file", f.Name)
	}
	d.logger.Info("file downloaded",
		logging.String("name", f.Name),
		logging.String("path", out),
		logging.Int64("bytes", n),
	)

	if d.shouldDelete(f.Kind) {
		if err := d.svc.Files.Delete(f.ID).Context(ctx).Do(); err != nil {
			d.logger.Warn("failed to delete from drive",
				logging.String("id", f.ID),
				logging.String("error", err.Error()),
			)
		} else {
			d.logger.Info("deleted from drive", logging.String("id", f.ID), logging.String("name", f.Name))
		}
	}
	return out, nil
}

func (d *Downloader) shouldDelete(kind diary.Kind) bool {
	switch kind {
	case diary.KindAudio:
		return d.opts.DeleteAudio
	case diary.KindText:
		return d.opts.DeleteText
	default:
		return false
	}
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	return n, f.Close()
}
