package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/taskwell/taskwell/internal/query"
	"github.com/taskwell/taskwell/internal/task"
)

// listResponse is the wire shape for GET /todos.
type listResponse struct {
	Items    []task.Task `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Total    int         `json:"total"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /todos", s.handleListTodos)
	mux.HandleFunc("POST /todos", s.handleCreateTodo)
	mux.HandleFunc("GET /todos/{id}", s.handleGetTodo)
	mux.HandleFunc("PATCH /todos/{id}", s.handlePatchTodo)
	mux.HandleFunc("DELETE /todos/{id}", s.handleDeleteTodo)
	mux.HandleFunc("GET /users", s.handleListUsers)
	mux.HandleFunc("GET /users/{id}", s.handleGetUser)
	mux.HandleFunc("GET /api/check", s.handleCheck)
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.withAuth(mux)
}

// handleListTodos serves the filtered, sorted, paginated task list along
// with the total matching count.
func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request) {
	params, err := query.ParseValues(r.URL.Query())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	items, total, err := s.store.ListTasks(r.Context(), params.Filter(time.Now()))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if items == nil {
		items = []task.Task{}
	}

	win := params.Window()
	writeJSON(w, http.StatusOK, listResponse{
		Items:    items,
		Page:     win.Page,
		PageSize: win.PageSize,
		Total:    total,
	})
}

func (s *Server) handleGetTodo(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var in task.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	t, err := s.store.CreateTask(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.logger.Printf("Task created: %s (%s)", t.ID, t.Title)
	writeJSON(w, http.StatusCreated, t)
}

// handlePatchTodo is the conditional-update endpoint. The caller asserts
// the version it last saw via If-Match; the store applies the patch only
// when that version is still current, otherwise the 409 body carries the
// current record for reconciliation.
func (s *Server) handlePatchTodo(w http.ResponseWriter, r *http.Request) {
	ifMatch := r.Header.Get("If-Match")
	if ifMatch == "" {
		writeError(w, http.StatusBadRequest, "If-Match header required")
		return
	}
	version, err := strconv.Atoi(ifMatch)
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "Invalid If-Match version")
		return
	}

	var patch task.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	id := r.PathValue("id")
	t, err := s.store.UpdateTask(r.Context(), id, version, patch)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.logger.Printf("Task updated: %s (v%d)", t.ID, t.Version)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.logger.Printf("Task deleted: %s", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if users == nil {
		users = []task.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	u, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleCheck validates credentials and nothing else; auth already ran in
// the middleware, so reaching here means the caller is valid.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"username": usernameFrom(r.Context())})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
