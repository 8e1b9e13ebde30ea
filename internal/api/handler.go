// internal/api/handler.go
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mathspractice/adaptive/internal/domain/adaptive"
	"github.com/mathspractice/adaptive/internal/domain/performance"
	practicesession "github.com/mathspractice/adaptive/internal/domain/practice_session"
	"github.com/mathspractice/adaptive/internal/domain/student"
	"github.com/mathspractice/adaptive/internal/service"
	"github.com/mathspractice/adaptive/internal/store"
)

// maxBodyBytes bounds JSON request bodies; imports get importMaxBytes.
const maxBodyBytes = 1 << 20

// Handler holds all dependencies needed by HTTP handlers.
// Instead of relying on package-level globals, every handler method
// receives its dependencies through this struct.
type Handler struct {
	store    store.Store
	sessions *service.SessionService
	logger   *slog.Logger
}

// NewHandler creates a Handler with the given dependencies.
func NewHandler(s store.Store, sessions *service.SessionService, logger *slog.Logger) *Handler {
	return &Handler{
		store:    s,
		sessions: sessions,
		logger:   logger.With("component", "api"),
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError writes {"error": msg} with the given status code.
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

type validator interface {
	Validate() error
}

// decodeJSON reads the request body into v. It writes a 400 and returns
// false when the body is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// decodeAndValidate decodes the body and runs the request's Validate.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v validator) bool {
	if !decodeJSON(w, r, v) {
		return false
	}
	if err := v.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// handleStoreError checks for common store errors and writes the appropriate
// HTTP response. Returns true if an error was handled (caller should return).
func (h *Handler) handleStoreError(w http.ResponseWriter, err error, entity string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, entity+" not found")
		return true
	}
	h.logger.Error("store error", "error", err, "entity", entity)
	respondError(w, http.StatusInternalServerError, "internal error")
	return true
}

// handleSessionError maps session state errors onto 400/409 and falls back
// to handleStoreError for everything else.
func (h *Handler) handleSessionError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, practicesession.ErrInvalidLevel),
		errors.Is(err, practicesession.ErrInvalidConfig),
		errors.Is(err, student.ErrInvalidPreferences),
		errors.Is(err, adaptive.ErrInvalidConfig):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, practicesession.ErrDecisionPending),
		errors.Is(err, practicesession.ErrSessionClosed),
		errors.Is(err, practicesession.ErrNotStarted),
		errors.Is(err, practicesession.ErrAlreadyStarted),
		errors.Is(err, practicesession.ErrNoPendingIntervention),
		errors.Is(err, practicesession.ErrInterventionMismatch),
		errors.Is(err, performance.ErrNoActiveSession):
		respondError(w, http.StatusConflict, err.Error())
	default:
		return h.handleStoreError(w, err, "session")
	}
	return true
}
