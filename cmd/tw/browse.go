package main

import (
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/taskwell/taskwell/internal/client"
	"github.com/taskwell/taskwell/internal/ui"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse tasks from the terminal",
	Long: `Open an interactive terminal list view against a running server.

Edits apply optimistically: the view updates immediately and reconciles
with the server response. A stale-version patch surfaces a conflict menu
(view server copy / overwrite / cancel) instead of silently rolling back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		user, _ := cmd.Flags().GetString("user")
		pass, _ := cmd.Flags().GetString("pass")

		// Respect the terminal's real color capabilities.
		termenv.SetDefaultOutput(termenv.NewOutput(cmd.OutOrStdout()))

		api := client.New(server, user, pass)
		ctrl := client.NewController(api, nil)
		return ui.Run(ctrl)
	},
}

func init() {
	browseCmd.Flags().String("server", "http://localhost:3000", "server base URL")
	browseCmd.Flags().String("user", "henrik", "username for basic auth")
	browseCmd.Flags().String("pass", "secret", "password for basic auth")
	rootCmd.AddCommand(browseCmd)
}
