package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/taskwell/taskwell/internal/client"
	"github.com/taskwell/taskwell/internal/task"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a task",
	Long: `Create a task on a running server.

With --title the task is created directly; in an interactive terminal and
without --title, a form prompts for the fields. --due accepts natural
language ("tomorrow", "next friday at noon") as well as RFC 3339.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		user, _ := cmd.Flags().GetString("user")
		pass, _ := cmd.Flags().GetString("pass")
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		priority, _ := cmd.Flags().GetInt("priority")
		due, _ := cmd.Flags().GetString("due")
		tagsCSV, _ := cmd.Flags().GetString("tags")

		priorityStr := fmt.Sprintf("%d", priority)
		if title == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("--title is required when not running interactively")
			}
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().Title("Title").Value(&title),
				huh.NewText().Title("Description").Value(&description),
				huh.NewSelect[string]().Title("Priority").
					Options(
						huh.NewOption("P1 - critical", "1"),
						huh.NewOption("P2 - high", "2"),
						huh.NewOption("P3 - normal", "3"),
						huh.NewOption("P4 - low", "4"),
						huh.NewOption("P5 - backlog", "5"),
					).Value(&priorityStr),
				huh.NewInput().Title("Due (optional, natural language ok)").Value(&due),
				huh.NewInput().Title("Tags (comma separated)").Value(&tagsCSV),
			))
			if err := form.Run(); err != nil {
				return err
			}
			fmt.Sscanf(priorityStr, "%d", &priority)
		}

		in := task.CreateInput{
			Title:       title,
			Description: description,
			Priority:    priority,
		}
		if tagsCSV != "" {
			for _, tag := range strings.Split(tagsCSV, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					in.Tags = append(in.Tags, tag)
				}
			}
		}
		if due != "" {
			dueAt, err := parseDue(due)
			if err != nil {
				return err
			}
			in.DueAt = &dueAt
		}

		api := client.New(server, user, pass)
		created, err := api.Create(context.Background(), in)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (v%d): %s\n", created.ID, created.Version, created.Title)
		return nil
	},
}

// parseDue accepts RFC 3339 or a natural-language phrase.
func parseDue(s string) (string, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, time.Now())
	if err != nil || r == nil {
		return "", fmt.Errorf("could not understand due date %q", s)
	}
	return r.Time.UTC().Format(time.RFC3339), nil
}

func init() {
	addCmd.Flags().String("server", "http://localhost:3000", "server base URL")
	addCmd.Flags().String("user", "henrik", "username for basic auth")
	addCmd.Flags().String("pass", "secret", "password for basic auth")
	addCmd.Flags().String("title", "", "task title")
	addCmd.Flags().String("description", "", "task description")
	addCmd.Flags().Int("priority", 3, "priority 1 (highest) to 5 (lowest)")
	addCmd.Flags().String("due", "", "due date (RFC 3339 or natural language)")
	addCmd.Flags().String("tags", "", "comma separated tags")
	rootCmd.AddCommand(addCmd)
}
