package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskwell/taskwell/internal/task"
)

//go:embed fixtures.yaml
var fixturesYAML []byte

type seedFixtures struct {
	Users []struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"users"`
	Todos []struct {
		Title       string   `yaml:"title"`
		Description string   `yaml:"description"`
		Status      string   `yaml:"status"`
		Priority    int      `yaml:"priority"`
		DueInDays   *int     `yaml:"due_in_days"`
		Tags        []string `yaml:"tags"`
	} `yaml:"todos"`
}

// Seed populates an empty database with the embedded fixtures: two users
// and a handful of sample tasks, split between the users. When force is
// false a database that already holds tasks is left alone.
func (s *Store) Seed(ctx context.Context, force bool) error {
	if !force {
		var count int
		if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM todos`).Scan(&count); err != nil {
			return fmt.Errorf("failed to check for existing tasks: %w", err)
		}
		if count > 0 {
			return nil
		}
	}

	var fx seedFixtures
	if err := yaml.Unmarshal(fixturesYAML, &fx); err != nil {
		return fmt.Errorf("failed to parse seed fixtures: %w", err)
	}

	var userIDs []int64
	for _, u := range fx.Users {
		if cred, err := s.LookupCredential(ctx, u.Username); err == nil {
			userIDs = append(userIDs, cred.UserID)
			continue
		}
		created, err := s.CreateUser(ctx, u.Username, u.Password)
		if err != nil {
			return err
		}
		userIDs = append(userIDs, created.ID)
	}

	now := time.Now()
	for i, td := range fx.Todos {
		in := task.CreateInput{
			Title:       td.Title,
			Description: td.Description,
			Status:      task.Status(td.Status),
			Priority:    td.Priority,
			Tags:        td.Tags,
		}
		if td.DueInDays != nil {
			due := now.AddDate(0, 0, *td.DueInDays).UTC().Format(time.RFC3339)
			in.DueAt = &due
		}
		if len(userIDs) > 0 {
			// First half to the first user, the rest to the second.
			id := userIDs[0]
			if i >= (len(fx.Todos)+1)/2 && len(userIDs) > 1 {
				id = userIDs[1]
			}
			in.Assignee = &id
		}
		if _, err := s.CreateTask(ctx, in); err != nil {
			return fmt.Errorf("failed to seed task %q: %w", td.Title, err)
		}
	}
	return nil
}
