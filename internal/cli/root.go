// Package cli defines Cobra command definitions for the agimectl CLI.
// This file contains the root command, version flag, and help output.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agime-dev/agimectl/internal/tui"
)

var (
	verbose bool
	offline bool
	version = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "agimectl",
	Short: "Terminal client for agime agent sessions and missions",
	Long: `Agimectl talks to an agime team server: open chat sessions with
agents, stream their replies live, and drive long-running missions.
Dropped connections are resumed and reconciled against server state
automatically.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// When no subcommand is provided, launch the TUI if on a TTY,
		// show help otherwise.
		if !tui.IsTTY() {
			return cmd.Help()
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.close()

		return tui.RunPicker(deps.client, deps.cfg, deps.logger)
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Show agent thinking alongside replies")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Serve reads from the local cache without contacting the server")

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(missionsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(cacheCmd)
}
