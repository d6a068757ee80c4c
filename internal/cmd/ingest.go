package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
	"github.com/TechnicallyShaun/nota-diary/internal/transcribe"
)

type ingestFlags struct {
	batch     bool
	reprocess bool
	audioOnly bool
	textOnly  bool
	recursive bool
	audioDir  string
	input     string
	title     string
	mood      string
	tags      []string
}

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	return newIngestCmd(defaultDeps())
}

func newIngestCmd(d deps) *cobra.Command {
	var f ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Transcribe or extract files and store them as diary entries",
		Long: `Store audio notes and documents as diary entries.

Without arguments the newest unprocessed audio file and the newest unprocessed
document under the download directory are stored; --batch stores all of them.
Files already in the database are skipped unless --reprocess is given.

A single file can be given as an argument, and --input replays a saved
transcription JSON file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.audioOnly && f.textOnly {
				return errors.New("--audio and --text-only are mutually exclusive")
			}
			if f.input != "" && len(args) > 0 {
				return errors.New("--input cannot be combined with a file argument")
			}

			a, err := newApp(cmd, d)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			opts := a.batchOptions()
			if f.audioDir != "" {
				opts.Root = f.audioDir
			}
			if f.recursive {
				opts.OneLevel = false
			}
			opts.Batch = f.batch
			opts.Reprocess = f.reprocess
			opts.SkipText = f.audioOnly
			opts.SkipAudio = f.textOnly
			opts.Entry.Title = f.title
			if cmd.Flags().Changed("mood") {
				opts.Entry.Mood = f.mood
			}
			if cmd.Flags().Changed("tags") {
				opts.Entry.Tags = f.tags
			}

			needsAudio := f.input == "" && !f.textOnly
			if len(args) == 1 {
				needsAudio = diary.KindAudio.Matches(args[0])
			}

			var t transcribe.Transcriber
			if needsAudio {
				svc, err := a.transcriber(false)
				if err != nil {
					return err
				}
				t = svc
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			p := a.processor(st, t)

			switch {
			case f.input != "":
				result, err := p.Replay(ctx, f.input, opts.Entry)
				if err != nil {
					return err
				}
				return printResult(out, result)
			case len(args) == 1:
				result, err := p.ProcessFile(ctx, args[0], opts.Entry)
				if err != nil {
					return err
				}
				return printResult(out, result)
			}

			summary, err := p.Run(ctx, opts)
			if err != nil {
				return err
			}
			if !f.textOnly {
				fmt.Fprintf(out, "Audio: %s\n", summary.Audio)
			}
			if !f.audioOnly {
				fmt.Fprintf(out, "Text:  %s\n", summary.Text)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&f.batch, "batch", false, "store every unprocessed file instead of only the newest")
	flags.BoolVar(&f.reprocess, "reprocess", false, "include files that are already stored")
	flags.BoolVar(&f.audioOnly, "audio", false, "only process audio files")
	flags.BoolVar(&f.textOnly, "text-only", false, "only process text documents")
	flags.BoolVar(&f.recursive, "recursive", false, "search the whole tree instead of one level of batch folders")
	flags.StringVar(&f.audioDir, "audio-dir", "", "directory to search (default: download_dir)")
	flags.StringVar(&f.input, "input", "", "ingest a saved transcription JSON file")
	flags.StringVar(&f.title, "title", "", "diary entry title (default: derived from the file)")
	flags.StringVar(&f.mood, "mood", "", "diary entry mood")
	flags.StringSliceVar(&f.tags, "tags", nil, "comma-separated diary entry tags")

	return cmd
}

func printResult(w io.Writer, result *diary.IngestResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
