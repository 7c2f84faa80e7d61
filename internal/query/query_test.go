package query

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/taskwell/taskwell/internal/task"
)

// TestParseValuesDefaults tests that an empty query yields the default
// specification.
func TestParseValuesDefaults(t *testing.T) {
	p, err := ParseValues(url.Values{})
	if err != nil {
		t.Fatalf("ParseValues failed: %v", err)
	}
	want := Defaults()
	if p != want {
		t.Errorf("ParseValues = %+v, want %+v", p, want)
	}
}

// TestParseValuesFull tests a fully-specified query.
func TestParseValuesFull(t *testing.T) {
	v := url.Values{
		"q":        {"  deploy  "},
		"status":   {"in_progress"},
		"tag":      {"infra"},
		"overdue":  {"true"},
		"sort":     {"priority"},
		"order":    {"asc"},
		"page":     {"3"},
		"pageSize": {"25"},
	}
	p, err := ParseValues(v)
	if err != nil {
		t.Fatalf("ParseValues failed: %v", err)
	}
	if p.Q != "deploy" {
		t.Errorf("Q = %q, want trimmed deploy", p.Q)
	}
	if p.Status != task.StatusInProgress || p.Tag != "infra" || !p.Overdue {
		t.Errorf("filters = %+v", p)
	}
	if p.Sort != "priority" || p.Order != "asc" {
		t.Errorf("sort = %s/%s, want priority/asc", p.Sort, p.Order)
	}
	if p.Page != 3 || p.PageSize != 25 {
		t.Errorf("page = %d/%d, want 3/25", p.Page, p.PageSize)
	}
}

// TestParseValuesFallbacks tests that unknown sort keys and orders fall
// back silently while invalid status and page numbers are rejected.
func TestParseValuesFallbacks(t *testing.T) {
	p, err := ParseValues(url.Values{"sort": {"rowid"}, "order": {"sideways"}})
	if err != nil {
		t.Fatalf("ParseValues failed: %v", err)
	}
	if p.Sort != "updatedAt" || p.Order != "desc" {
		t.Errorf("fallback sort = %s/%s, want updatedAt/desc", p.Sort, p.Order)
	}

	for _, v := range []url.Values{
		{"status": {"doing"}},
		{"page": {"0"}},
		{"page": {"-2"}},
		{"page": {"abc"}},
		{"pageSize": {"0"}},
	} {
		_, err := ParseValues(v)
		var badReq *BadRequestError
		if !errors.As(err, &badReq) {
			t.Errorf("ParseValues(%v) = %v, want *BadRequestError", v, err)
		}
	}
}

// TestParseValuesClamps tests the oversize pageSize clamp and the search
// length cap.
func TestParseValuesClamps(t *testing.T) {
	p, err := ParseValues(url.Values{"pageSize": {"10000"}})
	if err != nil {
		t.Fatalf("ParseValues failed: %v", err)
	}
	if p.PageSize != MaxPageSize {
		t.Errorf("PageSize = %d, want clamped %d", p.PageSize, MaxPageSize)
	}

	long := strings.Repeat("x", 500)
	p, err = ParseValues(url.Values{"q": {long}})
	if err != nil {
		t.Fatalf("ParseValues failed: %v", err)
	}
	if len(p.Q) != 200 {
		t.Errorf("len(Q) = %d, want capped 200", len(p.Q))
	}
}

// TestWindow tests offset arithmetic and clamping of out-of-range values.
func TestWindow(t *testing.T) {
	cases := []struct {
		name           string
		page, size     int
		wantPage       int
		wantSize       int
		wantOffset     int
	}{
		{"defaults", 1, 10, 1, 10, 0},
		{"third page", 3, 25, 3, 25, 50},
		{"page floor", 0, 10, 1, 10, 0},
		{"size floor", 2, 0, 2, DefaultPageSize, DefaultPageSize},
		{"size ceiling", 1, 5000, 1, MaxPageSize, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := Params{Page: tc.page, PageSize: tc.size}.Window()
			if w.Page != tc.wantPage || w.PageSize != tc.wantSize || w.Offset != tc.wantOffset {
				t.Errorf("Window() = %+v, want page %d size %d offset %d",
					w, tc.wantPage, tc.wantSize, tc.wantOffset)
			}
			if w.Limit != w.PageSize {
				t.Errorf("Limit = %d, want %d", w.Limit, w.PageSize)
			}
		})
	}
}

// TestFilter tests the translation into a store filter, including the
// unknown-sort fallback.
func TestFilter(t *testing.T) {
	now := time.Now()
	p := Params{Q: "x", Status: task.StatusTodo, Overdue: true, Sort: "title", Order: "asc", Page: 2, PageSize: 20}
	f := p.Filter(now)
	if f.Q != "x" || f.Status != task.StatusTodo || !f.Overdue || !f.Now.Equal(now) {
		t.Errorf("filter predicates = %+v", f)
	}
	if f.Desc {
		t.Error("Desc = true for order=asc")
	}
	if f.Limit != 20 || f.Offset != 20 {
		t.Errorf("window = limit %d offset %d, want 20/20", f.Limit, f.Offset)
	}

	f = Params{Sort: "bogus"}.Filter(now)
	if f.SortCol == "" {
		t.Error("unknown sort did not fall back to a column")
	}
	if !f.Desc {
		t.Error("default order should be descending")
	}
}
