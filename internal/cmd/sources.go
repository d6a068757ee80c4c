package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewGmailCmd creates the gmail command
func NewGmailCmd() *cobra.Command {
	return newGmailCmd(defaultDeps())
}

func newGmailCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "gmail",
		Short: "Download attachments from new Gmail messages",
		Long: `Save the attachments of messages matching gmail.search_query into
<download_dir>/gmail_<message id>/, then label each message processed and
remove it from the inbox.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, d)
			if err != nil {
				return err
			}
			defer a.Close()

			dl, closeStore, err := a.gmailDownloader(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			result, err := dl.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Gmail: %d/%d messages processed, %d files saved\n",
				result.Processed, result.Messages, len(result.Files))
			return nil
		},
	}
}

// NewDriveCmd creates the drive command
func NewDriveCmd() *cobra.Command {
	return newDriveCmd(defaultDeps())
}

func newDriveCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "drive",
		Short: "Download new audio and documents from Google Drive",
		Long: `Download audio files, then documents, from each drive.search_folders folder
into numbered batch folders under download_dir. Files can be deleted from
Drive after download with drive.delete_audio and drive.delete_text.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, d)
			if err != nil {
				return err
			}
			defer a.Close()

			dl, err := a.driveDownloader(cmd.Context())
			if err != nil {
				return err
			}
			result, err := dl.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Drive: %d/%d files downloaded\n", result.Downloaded, result.Total)
			return nil
		},
	}
}
