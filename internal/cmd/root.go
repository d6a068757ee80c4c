package cmd

import (
	"github.com/spf13/cobra"
)

// Global flag names
const (
	flagConfig  = "config"
	flagEnvFile = "env-file"
	flagDebug   = "debug"
	flagLogDir  = "log-dir"
)

// NewRootCmd creates the root command for the diary CLI
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "diary",
		Short: "Voice and document diary pipeline",
		Long: `diary pulls audio notes and documents from Gmail and Google Drive, transcribes
audio with optional language routing, extracts text from documents and stores
everything as diary entries in Postgres.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.String(flagConfig, "", "config file (default: .diary/config.yaml above the working directory)")
	pf.String(flagEnvFile, "", ".env file to load (default: ./.env when present)")
	pf.Bool(flagDebug, false, "enable debug logging")
	pf.String(flagLogDir, "", "directory for the daily log file")

	rootCmd.AddCommand(NewInitCmd())
	rootCmd.AddCommand(NewInitDBCmd())
	rootCmd.AddCommand(NewTranscribeCmd())
	rootCmd.AddCommand(NewIngestCmd())
	rootCmd.AddCommand(NewGmailCmd())
	rootCmd.AddCommand(NewDriveCmd())
	rootCmd.AddCommand(NewAuthCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewStopCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewReportCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// globalOptions are the persistent root flags as seen from a subcommand.
type globalOptions struct {
	configPath string
	envFile    string
	debug      bool
	logDir     string
}

// globals reads the persistent flags. Subcommands executed on their own (in
// tests) have none, which leaves the zero values.
func globals(cmd *cobra.Command) globalOptions {
	var g globalOptions
	flags := cmd.Flags()
	if f := flags.Lookup(flagConfig); f != nil {
		g.configPath = f.Value.String()
	}
	if f := flags.Lookup(flagEnvFile); f != nil {
		g.envFile = f.Value.String()
	}
	if f := flags.Lookup(flagDebug); f != nil {
		g.debug = f.Value.String() == "true"
	}
	if f := flags.Lookup(flagLogDir); f != nil {
		g.logDir = f.Value.String()
	}
	return g
}
