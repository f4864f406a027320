package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "contesthub-cli",
	Short: "ContestHub CLI tool",
	Long: `ContestHub CLI is a command-line companion for the discussion server.

Available commands:
  token    Mint a signed identity token for development
  tail     Follow a contest room and print its messages

Use "contesthub-cli [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
