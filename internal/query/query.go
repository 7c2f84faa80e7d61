// Package query translates the list-view filter/sort/page specification
// into a store query. It performs no I/O: the route layer parses the
// request into Params here, then hands the resulting filter to the store.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/taskwell/taskwell/internal/store"
	"github.com/taskwell/taskwell/internal/task"
)

const (
	// DefaultPageSize is used when the caller omits pageSize.
	DefaultPageSize = 10
	// MaxPageSize caps pageSize; larger requests are clamped, not rejected.
	MaxPageSize = 100
	// maxSearchLen caps the free-text term.
	maxSearchLen = 200
)

// BadRequestError reports a malformed query parameter. Maps to HTTP 400.
type BadRequestError struct {
	Field string
	Msg   string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Params is the normalized filter/sort/page specification for a list view.
type Params struct {
	Q        string
	Status   task.Status
	Tag      string
	Overdue  bool
	Sort     string // createdAt|updatedAt|dueAt|priority|title
	Order    string // asc|desc
	Page     int
	PageSize int
}

// Defaults returns the zero specification: no filters, newest-updated
// first, first page.
func Defaults() Params {
	return Params{Sort: "updatedAt", Order: "desc", Page: 1, PageSize: DefaultPageSize}
}

// ParseValues builds Params from URL query values.
//
// Unknown sort keys and orders fall back to the defaults, matching the
// wire contract; an invalid status or a non-positive page number is a
// *BadRequestError.
func ParseValues(v url.Values) (Params, error) {
	p := Defaults()

	p.Q = sanitizeSearch(v.Get("q"))

	if raw := v.Get("status"); raw != "" {
		s := task.Status(raw)
		if !task.ValidStatus(s) {
			return Params{}, &BadRequestError{Field: "status", Msg: "invalid status filter"}
		}
		p.Status = s
	}

	p.Tag = v.Get("tag")
	p.Overdue = v.Get("overdue") == "true"

	if raw := v.Get("sort"); raw != "" {
		if _, ok := store.SortColumn(raw); ok {
			p.Sort = raw
		}
	}
	if v.Get("order") == "asc" {
		p.Order = "asc"
	}

	var err error
	if p.Page, err = parsePositiveInt(v.Get("page"), 1, 0); err != nil {
		return Params{}, &BadRequestError{Field: "page", Msg: err.Error()}
	}
	if p.PageSize, err = parsePositiveInt(v.Get("pageSize"), DefaultPageSize, MaxPageSize); err != nil {
		return Params{}, &BadRequestError{Field: "pageSize", Msg: err.Error()}
	}

	return p, nil
}

// Window is the normalized pagination window.
type Window struct {
	Page     int
	PageSize int
	Limit    int
	Offset   int
}

// Window normalizes the page specification: page >= 1, pageSize clamped to
// [1, MaxPageSize] with DefaultPageSize fallback, offset = (page-1)*pageSize.
func (p Params) Window() Window {
	page := p.Page
	if page < 1 {
		page = 1
	}
	size := p.PageSize
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Window{Page: page, PageSize: size, Limit: size, Offset: (page - 1) * size}
}

// Filter produces the store query for these params. now anchors the
// overdue predicate so repeated calls within one request agree.
func (p Params) Filter(now time.Time) store.Filter {
	w := p.Window()
	col, ok := store.SortColumn(p.Sort)
	if !ok {
		col, _ = store.SortColumn("updatedAt")
	}
	return store.Filter{
		Q:       p.Q,
		Status:  p.Status,
		Tag:     p.Tag,
		Overdue: p.Overdue,
		Now:     now,
		SortCol: col,
		Desc:    p.Order != "asc",
		Limit:   w.Limit,
		Offset:  w.Offset,
	}
}

// sanitizeSearch trims the free-text term and caps its length.
func sanitizeSearch(q string) string {
	q = strings.TrimSpace(q)
	if len(q) > maxSearchLen {
		q = q[:maxSearchLen]
	}
	return q
}

// parsePositiveInt parses a positive integer query value, returning def for
// the empty string and clamping to max when max > 0.
func parsePositiveInt(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	if max > 0 && n > max {
		return max, nil
	}
	return n, nil
}
