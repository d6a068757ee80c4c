package main

import (
	"os"

	"github.com/TechnicallyShaun/nota-diary/internal/cmd"
)

func main() {
	rootCmd := cmd.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
