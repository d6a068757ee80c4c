package cmd

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-diary/internal/config"
)

func TestSourceCmds_RequireCredentials(t *testing.T) {
	tests := []struct {
		name string
		cmd  func() *cobra.Command
		args []string
	}{
		{"gmail", func() *cobra.Command { return newGmailCmd(testDeps(newFakeStore(), nil)) }, nil},
		{"drive", func() *cobra.Command { return newDriveCmd(testDeps(newFakeStore(), nil)) }, nil},
		{"auth gmail", NewAuthCmd, []string{"gmail"}},
		{"auth drive", NewAuthCmd, []string{"drive"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testEnv(t)

			_, err := execute(tt.cmd(), tt.args...)
			if !errors.Is(err, config.ErrCredentialsRequired) {
				t.Errorf("expected ErrCredentialsRequired, got: %v", err)
			}
		})
	}
}

func TestAuthCmd_RejectsUnknownSource(t *testing.T) {
	testEnv(t)

	if _, err := execute(NewAuthCmd(), "dropbox"); err == nil {
		t.Error("expected error for an unknown source")
	}
	if _, err := execute(NewAuthCmd()); err == nil {
		t.Error("expected error without a source")
	}
}
