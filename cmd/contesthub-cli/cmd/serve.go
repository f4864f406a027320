package cmd

import (
	"github.com/spf13/cobra"

	"github.com/contesthub/contesthub/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the discussion server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.New().Start()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
