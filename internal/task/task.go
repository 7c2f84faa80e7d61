// Package task provides the domain model for taskwell: task records with
// optimistic-concurrency version tokens, user records, and the create/patch
// input shapes shared by the store, the HTTP API, and the client.
package task

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusArchived   Status = "archived"
)

// ValidStatus reports whether s is one of the recognized status values.
func ValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusArchived:
		return true
	}
	return false
}

const (
	// TitleMax is the maximum title length after trimming.
	TitleMax = 200
	// DescriptionMax is the maximum description length.
	DescriptionMax = 10000
	// TagsMax is the maximum number of tags on a single task.
	TagsMax = 20
)

// tagRe restricts tags to a conservative charset, 1-30 chars.
var tagRe = regexp.MustCompile(`^[A-Za-z0-9\-_/]{1,30}$`)

// Task is a single task record. Version is the optimistic-concurrency token:
// it starts at 1 and increments by exactly 1 on every successful mutation.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    int        `json:"priority"` // 1 (highest) .. 5 (lowest)
	Tags        []string   `json:"tags"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	Assignee    *int64     `json:"assignee,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Version     int        `json:"version"`
}

// Clone returns a deep copy of the task. The tag slice is copied so the
// clone can be mutated without aliasing the original.
func (t Task) Clone() Task {
	c := t
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.DueAt != nil {
		d := *t.DueAt
		c.DueAt = &d
	}
	if t.Assignee != nil {
		a := *t.Assignee
		c.Assignee = &a
	}
	return c
}

// User is a provisioned account. The credential never appears here; auth
// code reads it through a separate internal path.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// FieldError is a validation failure tied to a single input field.
// It maps to an HTTP 422 response with the offending field name.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// CreateInput holds the caller-supplied fields for a new task.
type CreateInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	DueAt       *string  `json:"dueAt,omitempty"` // RFC 3339
	Tags        []string `json:"tags,omitempty"`
	Assignee    *int64   `json:"assignee,omitempty"`
}

// SetDefaults fills in server-side defaults for omitted fields.
func (in *CreateInput) SetDefaults() {
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if in.Priority == 0 {
		in.Priority = 3
	}
}

// Validate checks the create input. Title is trimmed in place. Returns a
// *FieldError naming the first offending field.
func (in *CreateInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return &FieldError{Field: "title", Msg: "title cannot be empty"}
	}
	if len(in.Title) > TitleMax {
		return &FieldError{Field: "title", Msg: "title too long"}
	}
	if len(in.Description) > DescriptionMax {
		return &FieldError{Field: "description", Msg: "description too long"}
	}
	if in.Status != "" && !ValidStatus(in.Status) {
		return &FieldError{Field: "status", Msg: "invalid status"}
	}
	if in.Priority != 0 && (in.Priority < 1 || in.Priority > 5) {
		return &FieldError{Field: "priority", Msg: "priority out of range"}
	}
	if in.DueAt != nil {
		if _, err := time.Parse(time.RFC3339, *in.DueAt); err != nil {
			return &FieldError{Field: "dueAt", Msg: "dueAt must be RFC 3339"}
		}
	}
	if err := validateTags(in.Tags); err != nil {
		return err
	}
	return nil
}

// Patch is a partial update. Nil pointers mean "leave the field alone".
// An empty-string Description or DueAt clears the stored value. Tags, when
// present, replace the entire tag set.
type Patch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	Priority    *int      `json:"priority,omitempty"`
	DueAt       *string   `json:"dueAt,omitempty"` // RFC 3339, "" clears
	Tags        *[]string `json:"tags,omitempty"`
	Assignee    *int64    `json:"assignee,omitempty"`
}

// IsZero reports whether the patch carries no recognized field.
func (p Patch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.DueAt == nil && p.Tags == nil && p.Assignee == nil
}

// Validate checks every present field. The title, if present, is trimmed
// in place.
func (p *Patch) Validate() error {
	if p.IsZero() {
		return &FieldError{Field: "", Msg: "empty patch"}
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return &FieldError{Field: "title", Msg: "title cannot be empty"}
		}
		if len(t) > TitleMax {
			return &FieldError{Field: "title", Msg: "title too long"}
		}
		*p.Title = t
	}
	if p.Description != nil && len(*p.Description) > DescriptionMax {
		return &FieldError{Field: "description", Msg: "description too long"}
	}
	if p.Status != nil && !ValidStatus(*p.Status) {
		return &FieldError{Field: "status", Msg: "invalid status"}
	}
	if p.Priority != nil && (*p.Priority < 1 || *p.Priority > 5) {
		return &FieldError{Field: "priority", Msg: "priority out of range"}
	}
	if p.DueAt != nil && *p.DueAt != "" {
		if _, err := time.Parse(time.RFC3339, *p.DueAt); err != nil {
			return &FieldError{Field: "dueAt", Msg: "dueAt must be RFC 3339"}
		}
	}
	if p.Tags != nil {
		if err := validateTags(*p.Tags); err != nil {
			return err
		}
	}
	return nil
}

// Apply overlays the present patch fields onto a copy of t and returns it.
// Version and timestamps are untouched; callers own those. Used by the
// client for optimistic local application, not by the store.
func (p Patch) Apply(t Task) Task {
	out := t.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.DueAt != nil {
		if *p.DueAt == "" {
			out.DueAt = nil
		} else if d, err := time.Parse(time.RFC3339, *p.DueAt); err == nil {
			out.DueAt = &d
		}
	}
	if p.Tags != nil {
		out.Tags = append([]string(nil), *p.Tags...)
	}
	if p.Assignee != nil {
		out.Assignee = p.Assignee
	}
	return out
}

// Diff computes the minimal patch that would turn current into local.
// It is the overwrite path of conflict resolution: after a version conflict
// the caller diffs its intended record against the server's current copy and
// reissues only the fields that still differ.
func Diff(local, current Task) Patch {
	var p Patch
	if local.Title != current.Title {
		title := local.Title
		p.Title = &title
	}
	if local.Description != current.Description {
		desc := local.Description
		p.Description = &desc
	}
	if local.Status != current.Status {
		status := local.Status
		p.Status = &status
	}
	if local.Priority != current.Priority {
		prio := local.Priority
		p.Priority = &prio
	}
	if !equalDue(local.DueAt, current.DueAt) {
		due := ""
		if local.DueAt != nil {
			due = local.DueAt.Format(time.RFC3339)
		}
		p.DueAt = &due
	}
	if !equalTags(local.Tags, current.Tags) {
		tags := append([]string(nil), local.Tags...)
		p.Tags = &tags
	}
	return p
}

func equalDue(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DedupeTags removes duplicates while preserving first-seen order.
// The stored tag set never contains duplicates.
func DedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return tags
	}
	seen := make(map[string]bool, len(tags))
	out := tags[:0:0]
	for _, tag := range tags {
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}

func validateTags(tags []string) error {
	if len(tags) > TagsMax {
		return &FieldError{Field: "tags", Msg: "too many tags"}
	}
	for i, tag := range tags {
		if !tagRe.MatchString(tag) {
			return &FieldError{Field: "tags", Msg: fmt.Sprintf("invalid tag at index %d", i)}
		}
	}
	return nil
}
