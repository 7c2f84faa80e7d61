// Package client is the Go consumer of the taskwell API: a thin HTTP
// client plus an optimistic-concurrency view controller that mirrors the
// list view's state machine (optimistic apply, rollback on failure,
// conflict resolution on stale versions).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/taskwell/taskwell/internal/query"
	"github.com/taskwell/taskwell/internal/task"
)

// APIError is the normalized error for every failed call. Status 0 means
// the request never reached the server (connectivity failure), distinct
// from any server-returned error.
type APIError struct {
	Status  int
	Message string
	Field   string
	Current *task.Task // populated on 409
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("network error: %s", e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsConflict reports whether the error is a version conflict carrying the
// server's current record.
func (e *APIError) IsConflict() bool {
	return e.Status == http.StatusConflict && e.Current != nil
}

// ListResult is the page returned by the list endpoint.
type ListResult struct {
	Items    []task.Task `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Total    int         `json:"total"`
}

// API is the server surface the controller depends on. Satisfied by
// *Client; tests substitute a fake.
type API interface {
	List(ctx context.Context, params query.Params) (*ListResult, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	Create(ctx context.Context, in task.CreateInput) (*task.Task, error)
	Update(ctx context.Context, id string, version int, p task.Patch) (*task.Task, error)
	Delete(ctx context.Context, id string) error
	Users(ctx context.Context) ([]task.User, error)
	Check(ctx context.Context) (string, error)
}

// Client talks to a taskwell server over HTTP with basic auth.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// New creates a client for the given base URL (e.g. "http://localhost:3000").
func New(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// do performs a request and decodes either the success body into out or
// the error body into an *APIError.
func (c *Client) do(ctx context.Context, method, path string, version int, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if version > 0 {
		req.Header.Set("If-Match", strconv.Itoa(version))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
		var wire struct {
			Message string     `json:"message"`
			Field   string     `json:"field"`
			Current *task.Task `json:"current"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&wire); err == nil && wire.Message != "" {
			apiErr.Message = wire.Message
			apiErr.Field = wire.Field
			apiErr.Current = wire.Current
		}
		return apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// List fetches a page of tasks for the given filter specification.
func (c *Client) List(ctx context.Context, params query.Params) (*ListResult, error) {
	var res ListResult
	if err := c.do(ctx, http.MethodGet, "/todos"+encodeParams(params), 0, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Get fetches a single task.
func (c *Client) Get(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodGet, "/todos/"+url.PathEscape(id), 0, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create makes a new task and returns the authoritative server record.
func (c *Client) Create(ctx context.Context, in task.CreateInput) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodPost, "/todos", 0, in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Update issues a conditional PATCH guarded by the expected version.
func (c *Client) Update(ctx context.Context, id string, version int, p task.Patch) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodPatch, "/todos/"+url.PathEscape(id), version, p, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Delete removes a task. Deleting an absent id succeeds (idempotent).
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/todos/"+url.PathEscape(id), 0, nil, nil)
}

// Users lists the provisioned users.
func (c *Client) Users(ctx context.Context) ([]task.User, error) {
	var res struct {
		Items []task.User `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", 0, nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// Check validates the configured credentials and returns the username.
func (c *Client) Check(ctx context.Context) (string, error) {
	var res struct {
		Username string `json:"username"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/check", 0, nil, &res); err != nil {
		return "", err
	}
	return res.Username, nil
}

// encodeParams builds the query string, omitting defaults.
func encodeParams(p query.Params) string {
	qs := url.Values{}
	if p.Q != "" {
		qs.Set("q", p.Q)
	}
	if p.Status != "" {
		qs.Set("status", string(p.Status))
	}
	if p.Tag != "" {
		qs.Set("tag", p.Tag)
	}
	if p.Overdue {
		qs.Set("overdue", "true")
	}
	if p.Sort != "" && p.Sort != "updatedAt" {
		qs.Set("sort", p.Sort)
	}
	if p.Order == "asc" {
		qs.Set("order", "asc")
	}
	if p.Page > 1 {
		qs.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 && p.PageSize != query.DefaultPageSize {
		qs.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	if enc := qs.Encode(); enc != "" {
		return "?" + enc
	}
	return ""
}

// asAPIError normalizes any error to *APIError; non-API failures become
// network-class errors with status 0.
func asAPIError(err error) *APIError {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return &APIError{Status: 0, Message: err.Error()}
}
