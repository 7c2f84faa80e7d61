package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskwell/taskwell/internal/task"
)

// testStore opens a fresh store on a temp path with the schema applied.
func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	return s
}

func mustCreate(t *testing.T, s *Store, in task.CreateInput) *task.Task {
	t.Helper()
	created, err := s.CreateTask(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateTask(%q) failed: %v", in.Title, err)
	}
	return created
}

// TestInitSchemaIdempotent tests that the schema can be applied repeatedly.
func TestInitSchemaIdempotent(t *testing.T) {
	s := testStore(t)
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
}

// TestCreateAndGetTask tests the create/read round trip: generated id,
// version 1, both timestamps set, tags stored without duplicates.
func TestCreateAndGetTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, task.CreateInput{
		Title:    "Write release notes",
		Priority: 2,
		Tags:     []string{"docs", "release", "docs"},
	})

	if created.ID == "" {
		t.Fatal("created task has empty id")
	}
	if created.Version != 1 {
		t.Errorf("Version = %d, want 1", created.Version)
	}
	if created.Status != task.StatusTodo {
		t.Errorf("Status = %q, want default todo", created.Status)
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Errorf("timestamps: created %v updated %v, want equal and set", created.CreatedAt, created.UpdatedAt)
	}
	if len(created.Tags) != 2 {
		t.Errorf("Tags = %v, want duplicates removed", created.Tags)
	}

	got, err := s.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "Write release notes" || got.Priority != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

// TestGetTaskNotFound tests the sentinel for an absent id.
func TestGetTaskNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetTask(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTask = %v, want ErrNotFound", err)
	}
}

// TestUpdateTaskVersioning tests the compare-and-swap cycle: a matching
// version wins and bumps exactly once, a stale version loses with the
// current record attached.
func TestUpdateTaskVersioning(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, task.CreateInput{
		Title:    "A",
		Priority: 2,
		Tags:     []string{"x", "y"},
	})

	tags := []string{"z"}
	updated, err := s.UpdateTask(ctx, created.ID, 1, task.Patch{Tags: &tags})
	if err != nil {
		t.Fatalf("UpdateTask with matching version failed: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "z" {
		t.Errorf("Tags = %v, want full replacement [z]", updated.Tags)
	}

	// Replaying the same expected version must now conflict.
	title := "B"
	_, err = s.UpdateTask(ctx, created.ID, 1, task.Patch{Title: &title})
	var conflict *VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("stale UpdateTask = %v, want *VersionConflictError", err)
	}
	if conflict.Current.Version != 2 {
		t.Errorf("conflict Current.Version = %d, want 2", conflict.Current.Version)
	}
	if conflict.Current.Title != "A" {
		t.Errorf("conflict Current.Title = %q, want untouched A", conflict.Current.Title)
	}

	// The losing patch must leave no trace.
	got, err := s.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "A" || got.Version != 2 {
		t.Errorf("after failed patch: title %q version %d, want A/2", got.Title, got.Version)
	}
}

// TestUpdateTaskNotFound tests that patching an absent id reports not-found
// rather than a conflict.
func TestUpdateTaskNotFound(t *testing.T) {
	s := testStore(t)
	title := "x"
	_, err := s.UpdateTask(context.Background(), "missing", 1, task.Patch{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateTask = %v, want ErrNotFound", err)
	}
}

// TestUpdateTaskClearsFields tests the empty-string convention for nulling
// description and due date.
func TestUpdateTaskClearsFields(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	due := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	created := mustCreate(t, s, task.CreateInput{
		Title:       "With extras",
		Description: "details",
		DueAt:       &due,
	})
	if created.DueAt == nil || created.Description == "" {
		t.Fatalf("fixture not populated: %+v", created)
	}

	empty := ""
	updated, err := s.UpdateTask(ctx, created.ID, 1, task.Patch{Description: &empty, DueAt: &empty})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Description != "" {
		t.Errorf("Description = %q, want cleared", updated.Description)
	}
	if updated.DueAt != nil {
		t.Errorf("DueAt = %v, want cleared", updated.DueAt)
	}
}

// TestDeleteTaskIdempotent tests that deletion succeeds for present and
// absent ids alike and cascades the tag rows.
func TestDeleteTaskIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, task.CreateInput{Title: "Gone soon", Tags: []string{"tmp"}})

	if err := s.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if _, err := s.GetTask(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTask after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("second DeleteTask failed: %v", err)
	}

	var tagCount int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM todo_tags WHERE todo_id = ?`, created.ID).Scan(&tagCount); err != nil {
		t.Fatalf("tag count query failed: %v", err)
	}
	if tagCount != 0 {
		t.Errorf("tag rows after delete = %d, want 0 (cascade)", tagCount)
	}
}

// TestListTasksFilters tests the status, tag, substring and overdue
// predicates individually.
func TestListTasksFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-48 * time.Hour).UTC().Format(time.RFC3339)
	future := now.Add(48 * time.Hour).UTC().Format(time.RFC3339)

	mustCreate(t, s, task.CreateInput{Title: "Fix login crash", Status: task.StatusInProgress, Tags: []string{"bug"}, DueAt: &past})
	mustCreate(t, s, task.CreateInput{Title: "Ship newsletter", Description: "CRASH course draft", Tags: []string{"marketing"}, DueAt: &future})
	mustCreate(t, s, task.CreateInput{Title: "Old chore", Status: task.StatusDone, DueAt: &past})

	// Exact status.
	items, total, err := s.ListTasks(ctx, Filter{Status: task.StatusInProgress})
	if err != nil {
		t.Fatalf("ListTasks(status) failed: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Title != "Fix login crash" {
		t.Errorf("status filter: total %d items %v", total, items)
	}

	// Tag membership.
	_, total, err = s.ListTasks(ctx, Filter{Tag: "marketing"})
	if err != nil {
		t.Fatalf("ListTasks(tag) failed: %v", err)
	}
	if total != 1 {
		t.Errorf("tag filter total = %d, want 1", total)
	}

	// Case-insensitive substring over title and description.
	_, total, err = s.ListTasks(ctx, Filter{Q: "crash"})
	if err != nil {
		t.Fatalf("ListTasks(q) failed: %v", err)
	}
	if total != 2 {
		t.Errorf("substring filter total = %d, want 2 (title + description)", total)
	}

	// Overdue excludes done/archived even with a past due date.
	items, total, err = s.ListTasks(ctx, Filter{Overdue: true, Now: now})
	if err != nil {
		t.Fatalf("ListTasks(overdue) failed: %v", err)
	}
	if total != 1 || items[0].Title != "Fix login crash" {
		t.Errorf("overdue filter: total %d items %v", total, items)
	}
}

// TestListTasksPagination tests that limit/offset windows the rows while the
// total keeps counting the whole filtered set.
func TestListTasksPagination(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	titles := []string{"a", "b", "c", "d", "e"}
	for i, title := range titles {
		mustCreate(t, s, task.CreateInput{Title: title, Priority: i%5 + 1})
	}

	items, total, err := s.ListTasks(ctx, Filter{SortCol: sortColumns["title"], Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(items) != 2 || items[0].Title != "c" || items[1].Title != "d" {
		t.Errorf("page = %v, want [c d]", items)
	}

	// An offset past the end yields an empty page, same total.
	items, total, err = s.ListTasks(ctx, Filter{SortCol: sortColumns["title"], Limit: 2, Offset: 10})
	if err != nil {
		t.Fatalf("ListTasks past end failed: %v", err)
	}
	if len(items) != 0 || total != 5 {
		t.Errorf("past-end page: %d items total %d, want 0/5", len(items), total)
	}
}

// TestListTasksPaginationSweep tests that walking every page yields each
// record exactly once.
func TestListTasksPaginationSweep(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const n, pageSize = 23, 5
	for i := 0; i < n; i++ {
		mustCreate(t, s, task.CreateInput{Title: fmt.Sprintf("task %02d", i), Priority: i%5 + 1})
	}

	seen := make(map[string]bool)
	for page := 1; ; page++ {
		items, total, err := s.ListTasks(ctx, Filter{
			SortCol: sortColumns["priority"],
			Limit:   pageSize,
			Offset:  (page - 1) * pageSize,
		})
		if err != nil {
			t.Fatalf("page %d failed: %v", page, err)
		}
		if total != n {
			t.Fatalf("page %d total = %d, want %d", page, total, n)
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			if seen[it.ID] {
				t.Fatalf("id %s appeared on two pages", it.ID)
			}
			seen[it.ID] = true
		}
	}
	if len(seen) != n {
		t.Errorf("swept %d distinct records, want %d", len(seen), n)
	}
}

// TestListTasksSortPriorityAsc tests the sort invariant on a non-unique key.
func TestListTasksSortPriorityAsc(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, prio := range []int{4, 1, 5, 2, 2, 3} {
		mustCreate(t, s, task.CreateInput{Title: fmt.Sprintf("p%d", prio), Priority: prio})
	}

	items, _, err := s.ListTasks(ctx, Filter{SortCol: sortColumns["priority"]})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	for i := 1; i < len(items); i++ {
		if items[i].Priority < items[i-1].Priority {
			t.Fatalf("priority order broken at %d: %d after %d", i, items[i].Priority, items[i-1].Priority)
		}
	}
}

// TestListTasksSortStable tests ordering on a non-unique column: equal keys
// must come back in one consistent order across invocations.
func TestListTasksSortStable(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		mustCreate(t, s, task.CreateInput{Title: title, Priority: 3})
	}

	first, _, err := s.ListTasks(ctx, Filter{SortCol: sortColumns["priority"]})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _, err := s.ListTasks(ctx, Filter{SortCol: sortColumns["priority"]})
		if err != nil {
			t.Fatalf("ListTasks failed: %v", err)
		}
		for j := range first {
			if again[j].ID != first[j].ID {
				t.Fatalf("run %d: order changed at %d", i, j)
			}
		}
	}
}

// TestSortColumnWhitelist tests that only known keys resolve to columns.
func TestSortColumnWhitelist(t *testing.T) {
	if _, ok := SortColumn("priority"); !ok {
		t.Error("priority should be sortable")
	}
	if col, ok := SortColumn("password; DROP TABLE todos"); ok {
		t.Errorf("hostile key resolved to %q", col)
	}
}
