package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-diary/internal/config"
)

// NewInitCmd creates the init command
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long:  "Write a commented default configuration to .diary/config.yaml in the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Init(".")
			if err != nil {
				if errors.Is(err, config.ErrConfigExists) {
					return fmt.Errorf("%w: %s", err, path)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
}

// NewInitDBCmd creates the init-db command
func NewInitDBCmd() *cobra.Command {
	return newInitDBCmd(defaultDeps())
}

func newInitDBCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the database tables",
		Long:  "Create the source_file, diary, transcription_run and transcription_usage tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, d)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.InitSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database schema is ready")
			return nil
		},
	}
}
