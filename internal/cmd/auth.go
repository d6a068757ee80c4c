package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-diary/internal/config"
	"github.com/TechnicallyShaun/nota-diary/internal/source/googleauth"
)

// NewAuthCmd creates the auth command
func NewAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "auth <gmail|drive>",
		Short:     "Authorize Gmail or Drive access",
		Long:      "Run the OAuth consent flow in a browser and cache the token next to the credentials file",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"gmail", "drive"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, defaultDeps())
			if err != nil {
				return err
			}
			defer a.Close()

			credentials, token := a.cfg.Gmail.CredentialsFile, a.cfg.Gmail.TokenFile
			if args[0] == "drive" {
				credentials, token = a.cfg.Drive.CredentialsFile, a.cfg.Drive.TokenFile
			}
			if credentials == "" {
				return fmt.Errorf("%s: %w", args[0], config.ErrCredentialsRequired)
			}

			oauthCfg, err := googleauth.Config(credentials)
			if err != nil {
				return err
			}
			if _, err := googleauth.Authorize(cmd.Context(), oauthCfg, token, cmd.OutOrStdout()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", token)
			return nil
		},
	}
}
