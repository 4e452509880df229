// Package cli implements pilotyctl's subcommands: a set of one-shot
// operations against an in-process Registry, useful for local
// smoke-testing the core without a real request/response transport in
// front of it.
package cli

import (
	"github.com/spf13/cobra"

	"piloty/internal/registry"
)

// NewRootCmd creates the root cobra command with every pilotyctl
// subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pilotyctl",
		Short: "Drive a piloty session Registry from the command line",
		Long:  "pilotyctl spawns and drives PTY sessions against an in-process Registry for local testing. It is a developer playground, not a production transport.",
	}

	rootCmd.AddCommand(
		newSpawnCmd(),
		newRunCmd(),
		newSendCmd(),
		newCtrlCmd(),
		newExpectCmd(),
		newScreenCmd(),
		newLsCmd(),
		newTerminateCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// sharedRegistry returns a Registry rooted at config.SessionsDir(),
// used by every subcommand that doesn't need a custom root.
func sharedRegistry() *registry.Registry {
	return registry.New(registry.Options{})
}
