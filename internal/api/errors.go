package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/taskwell/taskwell/internal/query"
	"github.com/taskwell/taskwell/internal/store"
	"github.com/taskwell/taskwell/internal/task"
)

// apiError is the wire shape for every error response. Current is only
// populated on 409 so conflicted callers can reconcile against the
// server-side record.
type apiError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Field   string     `json:"field,omitempty"`
	Current *task.Task `json:"current,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Code: status, Message: message})
}

// writeDomainError translates store/validation errors 1:1 to HTTP status
// and body: field validation failures become 422, malformed query input
// 400, missing records 404, and stale-version writes 409 carrying the
// current record. Anything unclassified is a 500, logged server-side.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var fieldErr *task.FieldError
	if errors.As(err, &fieldErr) {
		writeJSON(w, http.StatusUnprocessableEntity, apiError{
			Code:    http.StatusUnprocessableEntity,
			Message: fieldErr.Msg,
			Field:   fieldErr.Field,
		})
		return
	}

	var badReq *query.BadRequestError
	if errors.As(err, &badReq) {
		writeJSON(w, http.StatusBadRequest, apiError{
			Code:    http.StatusBadRequest,
			Message: badReq.Msg,
			Field:   badReq.Field,
		})
		return
	}

	var conflict *store.VersionConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, apiError{
			Code:    http.StatusConflict,
			Message: "Version conflict",
			Current: &conflict.Current,
		})
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	s.logger.Printf("Unhandled error: %v", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
