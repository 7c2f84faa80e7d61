package store

import (
	"errors"
	"fmt"

	"github.com/taskwell/taskwell/internal/task"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// VersionConflictError is returned when a conditional update carries a stale
// expected version. Current is the full server-side record at its present
// version, so the caller has everything it needs to reconcile and retry.
type VersionConflictError struct {
	Current task.Task
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: current version is %d", e.Current.Version)
}
