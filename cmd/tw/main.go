// Command tw is the taskwell CLI: it runs the HTTP API server, browses a
// server from the terminal, and creates tasks interactively.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tw",
	Short: "taskwell - multi-user task tracking with optimistic concurrency",
	Long: `taskwell is a small multi-user task tracker: an HTTP API over an
embedded SQLite database, with version-checked conditional updates, plus a
terminal client that edits optimistically and resolves version conflicts.

Common usage:
  tw serve                      # start the API server
  tw browse --user henrik       # browse tasks in the terminal
  tw add --title "Fix the bug"  # create a task`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
