package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskwell/taskwell/internal/task"
)

// sortColumns whitelists the columns a list query may order by.
var sortColumns = map[string]string{
	"createdAt": "todos.created_at",
	"updatedAt": "todos.updated_at",
	"dueAt":     "todos.due_at",
	"priority":  "todos.priority",
	"title":     "todos.title",
}

// SortColumn maps an API sort key to its SQL column. The second return is
// false for unknown keys.
func SortColumn(key string) (string, bool) {
	col, ok := sortColumns[key]
	return col, ok
}

// Filter configures a ListTasks query. Zero values mean "no constraint".
type Filter struct {
	// Q is a case-insensitive substring match over title and description.
	Q string
	// Status filters by exact status.
	Status task.Status
	// Tag filters to tasks carrying the tag.
	Tag string
	// Overdue keeps tasks whose due time is strictly before Now and whose
	// status is neither done nor archived.
	Overdue bool
	// Now is the reference time for the overdue predicate.
	Now time.Time
	// SortCol is a whitelisted column from SortColumn.
	SortCol string
	// Desc orders descending when true.
	Desc bool
	// Limit restricts the page size (0 = no limit).
	Limit int
	// Offset skips the first N results.
	Offset int
}

const taskColumns = `todos.id, todos.title, todos.description, todos.status,
	todos.priority, todos.due_at, todos.assignee,
	todos.created_at, todos.updated_at, todos.version,
	(SELECT GROUP_CONCAT(tag, ',') FROM
	 (SELECT tag FROM todo_tags WHERE todo_id = todos.id ORDER BY tag)) AS tags`

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetTask retrieves a single task with its tag set.
// Returns ErrNotFound if the id is absent.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return getTask(ctx, s.conn, id)
}

func getTask(ctx context.Context, q rowQuerier, id string) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM todos WHERE id = ?`
	t, err := scanTask(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns the page of tasks matching the filter, plus the total
// matching count computed with the same predicates.
//
// Ties on the sort column are broken by rowid so that a single query
// invocation is deterministic.
func (s *Store) ListTasks(ctx context.Context, f Filter) ([]task.Task, int, error) {
	var conds []string
	var args []any

	if f.Status != "" {
		conds = append(conds, "todos.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Tag != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM todo_tags tt WHERE tt.todo_id = todos.id AND tt.tag = ?)")
		args = append(args, f.Tag)
	}
	if f.Overdue {
		now := f.Now
		if now.IsZero() {
			now = time.Now()
		}
		conds = append(conds, "todos.due_at IS NOT NULL AND todos.due_at < ? AND todos.status NOT IN ('done','archived')")
		args = append(args, now.UTC().Format(time.RFC3339))
	}
	if f.Q != "" {
		conds = append(conds, "(LOWER(todos.title) LIKE ? OR LOWER(COALESCE(todos.description,'')) LIKE ?)")
		pat := "%" + strings.ToLower(f.Q) + "%"
		args = append(args, pat, pat)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	sortCol := f.SortCol
	if sortCol == "" {
		sortCol = sortColumns["updatedAt"]
	}
	dir := "DESC"
	if !f.Desc {
		dir = "ASC"
	}

	query := `SELECT ` + taskColumns + ` FROM todos` + where +
		` ORDER BY ` + sortCol + ` ` + dir + `, todos.rowid ASC`

	listArgs := args
	if f.Limit > 0 {
		query += " LIMIT ?"
		listArgs = append(listArgs, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			listArgs = append(listArgs, f.Offset)
		}
	}

	rows, err := s.conn.QueryContext(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating tasks: %w", err)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM todos` + where
	if err := s.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	return tasks, total, nil
}

// CreateTask inserts a new task with a generated id, fresh timestamps and
// version 1. The task row and its tag rows are written in one transaction.
func (s *Store) CreateTask(ctx context.Context, in task.CreateInput) (*task.Task, error) {
	in.SetDefaults()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)
	tags := task.DedupeTags(in.Tags)

	var due sql.NullString
	if in.DueAt != nil {
		due = sql.NullString{String: *in.DueAt, Valid: true}
	}
	var desc sql.NullString
	if in.Description != "" {
		desc = sql.NullString{String: in.Description, Valid: true}
	}
	var assignee sql.NullInt64
	if in.Assignee != nil {
		assignee = sql.NullInt64{Int64: *in.Assignee, Valid: true}
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO todos (id, title, description, status, priority, due_at, assignee, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		id, in.Title, desc, string(in.Status), in.Priority, due, assignee, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	if err := insertTags(ctx, tx, id, tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetTask(ctx, id)
}

// UpdateTask applies a partial patch to a task, guarded by the caller's
// expected version.
//
// The version check and the field update are a single guarded UPDATE
// (compare-and-swap), so concurrent callers racing on the same id are
// linearized by the store: exactly one writer can win per version value.
// Losers get a *VersionConflictError carrying the current record. When the
// patch includes tags the whole tag set is replaced inside the same
// transaction as the row update - all or nothing.
func (s *Store) UpdateTask(ctx context.Context, id string, expectedVersion int, p task.Patch) (*task.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		if *p.Description == "" {
			args = append(args, nil)
		} else {
			args = append(args, *p.Description)
		}
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *p.Priority)
	}
	if p.DueAt != nil {
		sets = append(sets, "due_at = ?")
		if *p.DueAt == "" {
			args = append(args, nil)
		} else {
			args = append(args, *p.DueAt)
		}
	}
	if p.Assignee != nil {
		sets = append(sets, "assignee = ?")
		args = append(args, *p.Assignee)
	}
	sets = append(sets, "updated_at = ?", "version = version + 1")
	args = append(args, time.Now().UTC().Format(time.RFC3339))

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE todos SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, query, append(args, id, expectedVersion)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Either the id is gone or the version is stale.
		current, err := getTask(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return nil, &VersionConflictError{Current: *current}
	}

	if p.Tags != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM todo_tags WHERE todo_id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to clear tags for %s: %w", id, err)
		}
		if err := insertTags(ctx, tx, id, task.DedupeTags(*p.Tags)); err != nil {
			return nil, err
		}
	}

	updated, err := getTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return updated, nil
}

// DeleteTask removes a task. Idempotent: deleting an absent id is not an
// error. Tag rows cascade with the task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTags(ctx context.Context, ex execer, id string, tags []string) error {
	for _, tag := range tags {
		if _, err := ex.ExecContext(ctx, `INSERT INTO todo_tags (todo_id, tag) VALUES (?, ?)`, id, tag); err != nil {
			return fmt.Errorf("failed to insert tag %q for %s: %w", tag, id, err)
		}
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTask(row scannable) (*task.Task, error) {
	var t task.Task
	var desc, due, tagsCsv sql.NullString
	var assignee sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(&t.ID, &t.Title, &desc, &t.Status, &t.Priority,
		&due, &assignee, &createdAt, &updatedAt, &t.Version, &tagsCsv)
	if err != nil {
		return nil, err
	}

	t.Description = desc.String
	t.DueAt = nullStringToTime(due)
	if assignee.Valid {
		t.Assignee = &assignee.Int64
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		t.UpdatedAt = ts
	}
	if tagsCsv.Valid && tagsCsv.String != "" {
		t.Tags = strings.Split(tagsCsv.String, ",")
	} else {
		t.Tags = []string{}
	}
	return &t, nil
}
