package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/taskwell/taskwell/internal/query"
	"github.com/taskwell/taskwell/internal/task"
)

// ErrOpInFlight is returned when a second mutation targets an id that
// already has one in flight. The caller should wait, not queue.
var ErrOpInFlight = errors.New("operation already in flight for this record")

// ErrNotInView is returned when a mutation targets an id that is not part
// of the current collection view.
var ErrNotInView = errors.New("record not in current view")

// debounceDelay is how long a free-text search change waits before firing.
const debounceDelay = 300 * time.Millisecond

// opKind tags the per-record operation state. Exactly one kind per id at a
// time, so "updating while deleting" is unrepresentable.
type opKind int

const (
	opIdle opKind = iota
	opUpdating
	opDeleting
	opConflict
)

type opState struct {
	kind     opKind
	snapshot *task.Task // pre-mutation record (updating, conflict)
	server   *task.Task // conflict only: server's current copy
	local    *task.Task // conflict only: record as the user intended it
}

// Conflict exposes a pending version conflict to the UI. The user must
// pick a resolution; nothing is rolled back automatically.
type Conflict struct {
	Server task.Task // current server-side record
	Local  task.Task // the record as the local edit intended it
}

// State is an immutable snapshot of the controller for rendering.
type State struct {
	Items    []task.Task
	Total    int
	Page     int
	PageSize int
	Params   query.Params
	Loading  bool
	Creating bool
	Err      *APIError
	// Updating and Deleting hold the ids with mutations in flight.
	Updating  map[string]bool
	Deleting  map[string]bool
	Conflicts map[string]Conflict
	// InFlight is the busy-indicator signal: list loading + create +
	// per-id updates + per-id deletes.
	InFlight int
	HasMore  bool
}

// Controller is the client-side view-state machine for one collection
// view. Edits apply locally first and reconcile with the server response:
// commit on success, rollback on failure, or a user-resolvable conflict
// state on a stale version.
//
// All methods are safe for concurrent use; mutations to the visible
// collection follow a capture-before-mutate, restore-on-failure
// discipline so overlapping operations cannot corrupt each other.
type Controller struct {
	api API

	mu       sync.Mutex
	items    []task.Task
	lastGood []task.Task // last successfully fetched page, kept on refresh failure
	total    int
	params   query.Params
	loading  bool
	creating bool
	err      *APIError
	ops      map[string]opState

	// Refresh bookkeeping: a newer filter change supersedes any in-flight
	// fetch (generation check) and cancels its request.
	gen         int
	cancelFetch context.CancelFunc
	debounce    *time.Timer
	delay       time.Duration

	onChange func()
}

// NewController creates a controller over the given API. onChange, if
// non-nil, fires after every state transition (the TUI uses it to repaint).
func NewController(api API, onChange func()) *Controller {
	return &Controller{
		api:      api,
		params:   query.Defaults(),
		ops:      make(map[string]opState),
		delay:    debounceDelay,
		onChange: onChange,
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// OnChange replaces the state-change notification hook.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// State returns a copy of the current view state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Items:     append([]task.Task(nil), c.items...),
		Total:     c.total,
		Page:      c.params.Page,
		PageSize:  c.params.Window().PageSize,
		Params:    c.params,
		Loading:   c.loading,
		Creating:  c.creating,
		Err:       c.err,
		Updating:  map[string]bool{},
		Deleting:  map[string]bool{},
		Conflicts: map[string]Conflict{},
	}
	for id, op := range c.ops {
		switch op.kind {
		case opUpdating:
			st.Updating[id] = true
		case opDeleting:
			st.Deleting[id] = true
		case opConflict:
			st.Conflicts[id] = Conflict{Server: *op.server, Local: *op.local}
		}
	}
	st.InFlight = c.inFlightLocked()
	st.HasMore = st.Page*st.PageSize < c.total
	return st
}

// InFlightCount returns the busy-indicator signal.
func (c *Controller) InFlightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlightLocked()
}

func (c *Controller) inFlightLocked() int {
	n := 0
	if c.loading {
		n++
	}
	if c.creating {
		n++
	}
	for _, op := range c.ops {
		if op.kind == opUpdating || op.kind == opDeleting {
			n++
		}
	}
	return n
}

// SetSearch updates the free-text filter. The refetch is debounced: only
// the most recent pending search fires, and it supersedes any in-flight
// refresh. Resets to page 1.
func (c *Controller) SetSearch(q string) {
	c.mu.Lock()
	c.params.Q = q
	c.params.Page = 1
	c.scheduleRefreshLocked(true)
	c.mu.Unlock()
	c.notify()
}

// SetFilters replaces the non-search filter/sort specification and resets
// to page 1. Applies immediately, without debounce.
func (c *Controller) SetFilters(mutate func(*query.Params)) {
	c.mu.Lock()
	mutate(&c.params)
	c.params.Page = 1
	c.scheduleRefreshLocked(false)
	c.mu.Unlock()
	c.notify()
}

// SetPage moves to the given page and refetches.
func (c *Controller) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	c.mu.Lock()
	c.params.Page = page
	c.scheduleRefreshLocked(false)
	c.mu.Unlock()
	c.notify()
}

// Refresh refetches the current page immediately.
func (c *Controller) Refresh() {
	c.mu.Lock()
	c.scheduleRefreshLocked(false)
	c.mu.Unlock()
	c.notify()
}

// scheduleRefreshLocked supersedes any pending or in-flight fetch and
// arranges a new one. Callers hold c.mu.
func (c *Controller) scheduleRefreshLocked(debounced bool) {
	c.gen++
	gen := c.gen
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if debounced {
		c.debounce = time.AfterFunc(c.delay, func() { c.fetch(gen) })
	} else {
		go c.fetch(gen)
	}
}

// fetch performs one list request for generation gen. Responses for a
// superseded generation are discarded; a failed refresh keeps the last
// good page on screen and surfaces the error alongside it.
func (c *Controller) fetch(gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelFetch = cancel
	c.loading = true
	params := c.params
	c.mu.Unlock()
	c.notify()

	res, err := c.api.List(ctx, params)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.loading = false
	c.cancelFetch = nil

	refetch := false
	if err != nil {
		c.err = asAPIError(err)
		c.items = append([]task.Task(nil), c.lastGood...)
	} else {
		c.err = nil
		c.items = res.Items
		c.lastGood = append([]task.Task(nil), res.Items...)
		c.total = res.Total
		// Step back if deletes left the current page beyond the end.
		maxPage := (res.Total + res.PageSize - 1) / res.PageSize
		if maxPage < 1 {
			maxPage = 1
		}
		if params.Page > maxPage {
			c.params.Page = maxPage
			c.scheduleRefreshLocked(false)
			refetch = true
		}
	}
	c.mu.Unlock()
	if !refetch {
		c.notify()
	}
}

// Create inserts an optimistic placeholder (temporary id, version 0) into
// the visible collection, then reconciles: on success the placeholder is
// replaced by the authoritative record, on failure it is removed. A second
// create while one is in flight is rejected, never queued.
func (c *Controller) Create(ctx context.Context, in task.CreateInput) (*task.Task, error) {
	c.mu.Lock()
	if c.creating {
		c.mu.Unlock()
		return nil, ErrOpInFlight
	}
	c.creating = true

	filled := in
	filled.SetDefaults()
	now := time.Now()
	tmp := task.Task{
		ID:          tempID(),
		Title:       filled.Title,
		Description: filled.Description,
		Status:      filled.Status,
		Priority:    filled.Priority,
		Tags:        append([]string{}, filled.Tags...),
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     0,
	}
	if filled.DueAt != nil {
		if d, err := time.Parse(time.RFC3339, *filled.DueAt); err == nil {
			tmp.DueAt = &d
		}
	}
	// Newest-updated-first views show the new record on top; any other
	// sort appends until the next refresh settles its true position.
	if c.params.Sort == "updatedAt" && c.params.Order != "asc" {
		c.items = append([]task.Task{tmp}, c.items...)
	} else {
		c.items = append(c.items, tmp)
	}
	c.mu.Unlock()
	c.notify()

	created, err := c.api.Create(ctx, in)

	c.mu.Lock()
	c.creating = false
	if err != nil {
		c.items = removeByID(c.items, tmp.ID)
		c.err = asAPIError(err)
		c.mu.Unlock()
		c.notify()
		return nil, err
	}
	c.items = replaceByID(c.items, tmp.ID, *created)
	c.total++
	c.mu.Unlock()
	c.notify()
	return created, nil
}

// Update applies the patch to the visible record immediately, then issues
// the conditional update using the record's last-seen version. On success
// the authoritative record replaces the optimistic copy; on a version
// conflict the record enters a conflict state awaiting user resolution;
// on any other failure the pre-mutation snapshot is restored.
func (c *Controller) Update(ctx context.Context, id string, p task.Patch) (*task.Task, error) {
	c.mu.Lock()
	if c.ops[id].kind != opIdle {
		c.mu.Unlock()
		return nil, ErrOpInFlight
	}
	idx := indexByID(c.items, id)
	if idx < 0 {
		c.mu.Unlock()
		return nil, ErrNotInView
	}

	snapshot := c.items[idx].Clone()
	optimistic := p.Apply(snapshot)
	optimistic.UpdatedAt = time.Now()
	c.items[idx] = optimistic
	c.ops[id] = opState{kind: opUpdating, snapshot: &snapshot}
	version := snapshot.Version
	c.mu.Unlock()
	c.notify()

	updated, err := c.api.Update(ctx, id, version, p)

	c.mu.Lock()
	if err != nil {
		apiErr := asAPIError(err)
		if apiErr.IsConflict() {
			local := optimistic.Clone()
			c.ops[id] = opState{
				kind:     opConflict,
				snapshot: &snapshot,
				server:   apiErr.Current,
				local:    &local,
			}
		} else {
			c.items = replaceByID(c.items, id, snapshot)
			delete(c.ops, id)
			c.err = apiErr
		}
		c.mu.Unlock()
		c.notify()
		return nil, err
	}
	c.items = replaceByID(c.items, id, *updated)
	delete(c.ops, id)
	c.mu.Unlock()
	c.notify()
	return updated, nil
}

// Conflict returns the pending conflict for id, if any.
func (c *Controller) Conflict(id string) (Conflict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op := c.ops[id]
	if op.kind != opConflict {
		return Conflict{}, false
	}
	return Conflict{Server: *op.server, Local: *op.local}, true
}

// ResolveView resolves a conflict by adopting the server's current copy,
// discarding the local conflicting edit. The UI re-seeds its edit form
// from the returned record.
func (c *Controller) ResolveView(id string) (*task.Task, error) {
	c.mu.Lock()
	op := c.ops[id]
	if op.kind != opConflict {
		c.mu.Unlock()
		return nil, fmt.Errorf("no conflict pending for %s", id)
	}
	server := op.server.Clone()
	c.items = replaceByID(c.items, id, server)
	delete(c.ops, id)
	c.mu.Unlock()
	c.notify()
	return &server, nil
}

// ResolveOverwrite resolves a conflict by diffing the user's intended
// record against the server's current copy and reissuing the conditional
// update with the server copy's version. Fields that no longer differ are
// not re-sent.
func (c *Controller) ResolveOverwrite(ctx context.Context, id string) (*task.Task, error) {
	c.mu.Lock()
	op := c.ops[id]
	if op.kind != opConflict {
		c.mu.Unlock()
		return nil, fmt.Errorf("no conflict pending for %s", id)
	}
	server := op.server.Clone()
	patch := task.Diff(*op.local, server)
	// Re-seed the view from the server copy so the retry asserts its
	// version; the diff then reapplies what the user still wants changed.
	c.items = replaceByID(c.items, id, server)
	delete(c.ops, id)
	c.mu.Unlock()
	c.notify()

	if patch.IsZero() {
		return &server, nil
	}
	return c.Update(ctx, id, patch)
}

// ResolveCancel resolves a conflict by discarding the local edit attempt
// and restoring the pre-edit record.
func (c *Controller) ResolveCancel(id string) error {
	c.mu.Lock()
	op := c.ops[id]
	if op.kind != opConflict {
		c.mu.Unlock()
		return fmt.Errorf("no conflict pending for %s", id)
	}
	c.items = replaceByID(c.items, id, *op.snapshot)
	delete(c.ops, id)
	c.mu.Unlock()
	c.notify()
	return nil
}

// Delete removes the record from the visible collection immediately and
// issues the delete. On failure the full prior collection is restored. On
// success the tracked total drops, and emptying a non-first page steps
// back one page and refetches.
func (c *Controller) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.ops[id].kind != opIdle {
		c.mu.Unlock()
		return ErrOpInFlight
	}
	snapshot := append([]task.Task(nil), c.items...)
	c.items = removeByID(c.items, id)
	c.ops[id] = opState{kind: opDeleting}
	c.mu.Unlock()
	c.notify()

	err := c.api.Delete(ctx, id)

	c.mu.Lock()
	delete(c.ops, id)
	if err != nil {
		c.items = snapshot
		c.err = asAPIError(err)
		c.mu.Unlock()
		c.notify()
		return err
	}
	if c.total > 0 {
		c.total--
	}
	if len(c.items) == 0 && c.params.Page > 1 {
		c.params.Page--
		c.scheduleRefreshLocked(false)
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// setDebounceDelay overrides the search debounce, for tests.
func (c *Controller) setDebounceDelay(d time.Duration) {
	c.mu.Lock()
	c.delay = d
	c.mu.Unlock()
}

func tempID() string {
	return fmt.Sprintf("temp-%08x", rand.Uint32())
}

func indexByID(items []task.Task, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func removeByID(items []task.Task, id string) []task.Task {
	out := items[:0]
	for _, t := range items {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func replaceByID(items []task.Task, id string, with task.Task) []task.Task {
	for i := range items {
		if items[i].ID == id {
			items[i] = with
			break
		}
	}
	return items
}
