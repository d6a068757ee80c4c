package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-diary/internal/config"
	"github.com/TechnicallyShaun/nota-diary/internal/ingest/output"
	"github.com/TechnicallyShaun/nota-diary/internal/langdetect"
	"github.com/TechnicallyShaun/nota-diary/internal/logging"
	"github.com/TechnicallyShaun/nota-diary/internal/transcribe"
)

// ErrFFmpegMissing is returned by --require-probe when ffmpeg is not on PATH.
var ErrFFmpegMissing = errors.New("ffmpeg is required for the language probe but was not found on PATH")

type transcribeFlags struct {
	model        string
	detectModel  string
	language     string
	probeSeconds int
	noProbe      bool
	routing      bool
	temperature  float64
	out          string
	dryRun       bool
	stdin        bool
	requireProbe bool
}

// apply overrides the configured transcription settings with the flags the
// user set explicitly.
func (f *transcribeFlags) apply(cmd *cobra.Command, t *config.TranscriptionConfig) {
	changed := cmd.Flags().Changed
	if changed("model") {
		t.Model = f.model
	}
	if changed("detect-model") {
		t.DetectModel = f.detectModel
	}
	if changed("language") {
		t.Language = f.language
	}
	if changed("probe-seconds") {
		t.ProbeSeconds = f.probeSeconds
	}
	if changed("no-probe") {
		t.NoProbe = f.noProbe
	}
	if changed("language-routing") {
		t.LanguageRouting = f.routing
	}
	if changed("temperature") {
		temp := f.temperature
		t.Temperature = &temp
	}
}

// NewTranscribeCmd creates the transcribe command
func NewTranscribeCmd() *cobra.Command {
	return newTranscribeCmd(defaultDeps())
}

func newTranscribeCmd(d deps) *cobra.Command {
	var f transcribeFlags

	cmd := &cobra.Command{
		Use:   "transcribe [audio-file]",
		Short: "Transcribe an audio file to JSON",
		Long: `Transcribe an MP3, M4A or WAV file and print the response as JSON.

With --language-routing the spoken language is first detected from a short
probe (the leading --probe-seconds, cut with ffmpeg when available) and the
main call is pinned to it. --language forces a language and skips detection.

With --stdin, audio paths are read one per line (blank lines and # comments
are skipped) and one JSON object is printed per line.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.stdin == (len(args) == 1) {
				return errors.New("give one audio file or --stdin")
			}
			if f.stdin && f.out != "" {
				return errors.New("--out cannot be combined with --stdin")
			}

			a, err := newApp(cmd, d)
			if err != nil {
				return err
			}
			defer a.Close()

			f.apply(cmd, &a.cfg.Transcription)
			opts := transcribe.OptionsFromConfig(a.cfg.Transcription)
			opts.DryRun = f.dryRun

			if f.requireProbe && opts.LanguageRouting && opts.UseProbe && !langdetect.NewSlicer(nil).Available() {
				return ErrFFmpegMissing
			}

			svc, err := a.transcriber(f.dryRun)
			if err != nil {
				return err
			}

			if f.stdin {
				return transcribeStdin(cmd.Context(), svc, opts, cmd.InOrStdin(), cmd.OutOrStdout(), a.logger)
			}
			return transcribeOne(cmd.Context(), svc, opts, args[0], f.out, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.model, "model", config.DefaultModel, "transcription model")
	flags.StringVar(&f.detectModel, "detect-model", config.DefaultDetectModel, "model for the language probe")
	flags.StringVar(&f.language, "language", "", "force a language code (skips detection)")
	flags.IntVar(&f.probeSeconds, "probe-seconds", config.DefaultProbeSeconds, "length of the language probe in seconds (minimum 5)")
	flags.BoolVar(&f.noProbe, "no-probe", false, "send the full file to the detect model instead of an ffmpeg slice")
	flags.BoolVar(&f.routing, "language-routing", false, "detect the language before transcribing")
	flags.Float64Var(&f.temperature, "temperature", 0, "sampling temperature")
	flags.StringVar(&f.out, "out", "", "write the JSON to this file instead of stdout")
	flags.BoolVar(&f.dryRun, "dry-run", false, "validate and report the calls without making them")
	flags.BoolVar(&f.stdin, "stdin", false, "read audio paths from stdin")
	flags.BoolVar(&f.requireProbe, "require-probe", false, "fail when language routing needs ffmpeg and it is missing")

	return cmd
}

func transcribeOne(ctx context.Context, svc transcribe.Transcriber, opts transcribe.Options, path, out string, w io.Writer) error {
	t, err := svc.Transcribe(ctx, path, opts)
	if err != nil {
		return err
	}
	data, err := output.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transcription: %w", err)
	}

	if out == "" {
		_, err := w.Write(data)
		return err
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(w, "Wrote %s\n", out)
	return nil
}

// stdinFailure is the line printed for a file that could not be transcribed.
type stdinFailure struct {
	Error   string `json:"error"`
	File    string `json:"file"`
	Success bool   `json:"success"`
}

// transcribeStdin transcribes every path read from r. Failures are reported
// per line and do not fail the command.
func transcribeStdin(ctx context.Context, svc transcribe.Transcriber, opts transcribe.Options, r io.Reader, w io.Writer, logger logging.Logger) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	var total, failed int
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		path := strings.TrimSpace(scanner.Text())
		if path == "" || strings.HasPrefix(path, "#") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		total++

		t, err := svc.Transcribe(ctx, path, opts)
		if err != nil {
			failed++
			logger.Error("transcription failed", err, logging.String("file", path))
			if err := enc.Encode(stdinFailure{Error: err.Error(), File: path}); err != nil {
				return err
			}
			continue
		}
		if err := enc.Encode(t); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	logger.Info("stdin batch finished",
		logging.Int("total", total),
		logging.Int("failed", failed),
	)
	return nil
}
