package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mathspractice/adaptive/internal/domain/performance"
	"github.com/mathspractice/adaptive/internal/service"
	"github.com/mathspractice/adaptive/internal/store"
)

// ── Request / Response types ────────────────────────────────────────────────

type CreateSessionRequest struct {
	StudentID    string `json:"student_id" example:"3f2b8c1e-2d4a-4f7e-9b61-0c5d2e8a7f10"`
	ModuleID     string `json:"module_id" example:"C01"`
	Level        *int   `json:"level,omitempty" example:"3"`
	MaxQuestions *int   `json:"max_questions,omitempty" example:"10"`
	Adaptive     *bool  `json:"adaptive,omitempty" example:"true"`
}

func (r *CreateSessionRequest) Validate() error {
	if r.StudentID == "" {
		return errors.New("student_id is required")
	}
	if strings.TrimSpace(r.ModuleID) == "" {
		return errors.New("module_id is required")
	}
	if r.Level != nil && !performance.ValidLevel(*r.Level) {
		return errors.New("level must be between 1 and 4")
	}
	if r.MaxQuestions != nil && *r.MaxQuestions < 0 {
		return errors.New("max_questions must not be negative")
	}
	return nil
}

type SubmitAnswerRequest struct {
	Correct        *bool `json:"correct" example:"true"`
	ResponseTimeMs int   `json:"response_time_ms,omitempty" example:"4200"`
}

func (r *SubmitAnswerRequest) Validate() error {
	if r.Correct == nil {
		return errors.New("correct is required")
	}
	return nil
}

type ChangeLevelRequest struct {
	Level int `json:"level" example:"2"`
}

func (r *ChangeLevelRequest) Validate() error {
	if !performance.ValidLevel(r.Level) {
		return errors.New("level must be between 1 and 4")
	}
	return nil
}

type InterventionResponseRequest struct {
	Accepted *bool `json:"accepted" example:"true"`
}

func (r *InterventionResponseRequest) Validate() error {
	if r.Accepted == nil {
		return errors.New("accepted is required")
	}
	return nil
}

// ── Handlers ────────────────────────────────────────────────────────────────

// createSession starts a practice session.
// @Summary      Start a session
// @Description  Starts an adaptive session. Without a level the recommended level is used.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        body  body      CreateSessionRequest  true  "Session to start"
// @Success      201   {object}  service.Started
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string  "student not found"
// @Failure      500   {object}  map[string]string
// @Router       /sessions [post]
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	started, err := h.sessions.Start(r.Context(), service.StartRequest{
		StudentID:    req.StudentID,
		ModuleID:     strings.TrimSpace(req.ModuleID),
		Level:        req.Level,
		MaxQuestions: req.MaxQuestions,
		Adaptive:     req.Adaptive,
	})
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	if h.handleSessionError(w, err) {
		return
	}
	respondJSON(w, http.StatusCreated, started)
}

// getSession returns a live session, or the stored record once it has ended.
// @Summary      Get a session
// @Tags         Sessions
// @Produce      json
// @Param        sessionID  path      string  true  "Session ID"
// @Success      200        {object}  service.Lookup
// @Failure      404        {object}  map[string]string
// @Router       /sessions/{sessionID} [get]
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	lookup, err := h.sessions.Get(r.Context(), r.PathValue("sessionID"))
	if h.handleStoreError(w, err, "session") {
		return
	}
	respondJSON(w, http.StatusOK, lookup)
}

// submitAnswer records one answer.
// @Summary      Submit an answer
// @Description  Records an answer. Every fifth answer is a checkpoint that may return an intervention.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        sessionID  path      string               true  "Session ID"
// @Param        body       body      SubmitAnswerRequest  true  "Answer"
// @Success      200        {object}  practicesession.AnswerResult
// @Failure      400        {object}  map[string]string
// @Failure      404        {object}  map[string]string
// @Failure      409        {object}  map[string]string  "decision pending or session closed"
// @Router       /sessions/{sessionID}/answers [post]
func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req SubmitAnswerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.sessions.SubmitAnswer(r.Context(), r.PathValue("sessionID"), performance.AnswerEvent{
		Correct:        *req.Correct,
		ResponseTimeMs: req.ResponseTimeMs,
	})
	if h.handleSessionError(w, err) {
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// changeLevel moves a session to another level.
// @Summary      Change the session level
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        sessionID  path      string              true  "Session ID"
// @Param        body       body      ChangeLevelRequest  true  "New level"
// @Success      200        {object}  practicesession.View
// @Failure      400        {object}  map[string]string
// @Failure      404        {object}  map[string]string
// @Failure      409        {object}  map[string]string
// @Router       /sessions/{sessionID}/level [put]
func (h *Handler) changeLevel(w http.ResponseWriter, r *http.Request) {
	var req ChangeLevelRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	view, err := h.sessions.ChangeLevel(r.Context(), r.PathValue("sessionID"), req.Level)
	if h.handleSessionError(w, err) {
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// respondToIntervention accepts or declines the pending intervention.
// @Summary      Answer an intervention
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        sessionID       path      string                       true  "Session ID"
// @Param        interventionID  path      string                       true  "Intervention ID"
// @Param        body            body      InterventionResponseRequest  true  "Decision"
// @Success      200             {object}  practicesession.Outcome
// @Failure      400             {object}  map[string]string
// @Failure      404             {object}  map[string]string
// @Failure      409             {object}  map[string]string
// @Router       /sessions/{sessionID}/interventions/{interventionID}/response [post]
func (h *Handler) respondToIntervention(w http.ResponseWriter, r *http.Request) {
	var req InterventionResponseRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	out, err := h.sessions.Respond(r.Context(), r.PathValue("sessionID"), r.PathValue("interventionID"), *req.Accepted)
	if h.handleSessionError(w, err) {
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// completeSession ends a session and stores its summary.
// @Summary      Complete a session
// @Tags         Sessions
// @Produce      json
// @Param        sessionID  path      string  true  "Session ID"
// @Success      200        {object}  practicesession.Record
// @Failure      404        {object}  map[string]string
// @Failure      409        {object}  map[string]string  "session already closed"
// @Router       /sessions/{sessionID}/complete [post]
func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sessions.Complete(r.Context(), r.PathValue("sessionID"))
	if h.handleSessionError(w, err) {
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// listInterventions returns the decisions logged for a session.
// @Summary      List a session's interventions
// @Tags         Sessions
// @Produce      json
// @Param        sessionID  path      string  true  "Session ID"
// @Success      200        {array}   store.InterventionLog
// @Failure      404        {object}  map[string]string
// @Router       /sessions/{sessionID}/interventions [get]
func (h *Handler) listInterventions(w http.ResponseWriter, r *http.Request) {
	logs, err := h.sessions.Interventions(r.Context(), r.PathValue("sessionID"))
	if h.handleStoreError(w, err, "session") {
		return
	}
	respondJSON(w, http.StatusOK, logs)
}
