package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/mathspractice/adaptive/internal/domain/performance"
	"github.com/mathspractice/adaptive/internal/domain/student"
	"github.com/mathspractice/adaptive/internal/store"
)

// ── Request / Response types ────────────────────────────────────────────────

type CreateStudentRequest struct {
	Name        string               `json:"name" example:"Ava"`
	YearGroup   string               `json:"year_group,omitempty" example:"Year 4"`
	Preferences *student.Preferences `json:"preferences,omitempty"`
}

func (r *CreateStudentRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if r.Preferences != nil {
		return r.Preferences.Validate()
	}
	return nil
}

type UpdatePreferencesRequest struct {
	DefaultLevel         *int `json:"default_level,omitempty" example:"3"`
	DefaultQuestionCount *int `json:"default_question_count,omitempty" example:"10"`
}

func (r *UpdatePreferencesRequest) Validate() error {
	if r.DefaultLevel == nil && r.DefaultQuestionCount == nil {
		return errors.New("nothing to update")
	}
	return nil
}

// ── Handlers ────────────────────────────────────────────────────────────────

// createStudent registers a learner.
// @Summary      Create a student
// @Tags         Students
// @Accept       json
// @Produce      json
// @Param        body  body      CreateStudentRequest  true  "Student to create"
// @Success      201   {object}  student.Student
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /students [post]
func (h *Handler) createStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	st := student.New(req.Name, req.YearGroup)
	if req.Preferences != nil {
		st.Preferences = *req.Preferences
	}
	if err := h.store.SaveStudent(r.Context(), st); err != nil {
		h.logger.Error("failed to save student", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save student")
		return
	}
	respondJSON(w, http.StatusCreated, st)
}

// listStudents lists learners, most recently active first.
// @Summary      List students
// @Tags         Students
// @Produce      json
// @Success      200  {array}   student.Student
// @Failure      500  {object}  map[string]string
// @Router       /students [get]
func (h *Handler) listStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.store.ListStudents(r.Context())
	if h.handleStoreError(w, err, "students") {
		return
	}
	respondJSON(w, http.StatusOK, students)
}

// getStudent returns one learner.
// @Summary      Get a student
// @Tags         Students
// @Produce      json
// @Param        studentID  path      string  true  "Student ID"
// @Success      200        {object}  student.Student
// @Failure      404        {object}  map[string]string
// @Router       /students/{studentID} [get]
func (h *Handler) getStudent(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.GetStudent(r.Context(), r.PathValue("studentID"))
	if h.handleStoreError(w, err, "student") {
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// updatePreferences changes the default level and question count.
// @Summary      Update student preferences
// @Tags         Students
// @Accept       json
// @Produce      json
// @Param        studentID  path      string                    true  "Student ID"
// @Param        body       body      UpdatePreferencesRequest  true  "Fields to change"
// @Success      200        {object}  student.Preferences
// @Failure      400        {object}  map[string]string
// @Failure      404        {object}  map[string]string
// @Router       /students/{studentID}/preferences [patch]
func (h *Handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpdatePreferencesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	st, err := h.store.GetStudent(ctx, r.PathValue("studentID"))
	if h.handleStoreError(w, err, "student") {
		return
	}

	prefs := st.Preferences
	if req.DefaultLevel != nil {
		prefs.DefaultLevel = *req.DefaultLevel
	}
	if req.DefaultQuestionCount != nil {
		prefs.DefaultQuestionCount = *req.DefaultQuestionCount
	}
	if err := prefs.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.handleStoreError(w, h.store.UpdatePreferences(ctx, st.ID, prefs), "student") {
		return
	}
	respondJSON(w, http.StatusOK, prefs)
}

// deleteStudent removes a learner and all of their history.
// @Summary      Delete a student
// @Tags         Students
// @Param        studentID  path  string  true  "Student ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /students/{studentID} [delete]
func (h *Handler) deleteStudent(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteStudent(r.Context(), r.PathValue("studentID"))
	if h.handleStoreError(w, err, "student") {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listStudentSessions lists a learner's stored sessions, newest first.
// @Summary      List a student's sessions
// @Tags         Students
// @Produce      json
// @Param        studentID  path      string  true   "Student ID"
// @Param        module_id  query     string  false  "Module filter"
// @Param        level      query     int     false  "Final level filter"
// @Param        limit      query     int     false  "Maximum number of sessions"
// @Success      200        {array}   store.SessionRecord
// @Failure      400        {object}  map[string]string
// @Failure      404        {object}  map[string]string
// @Router       /students/{studentID}/sessions [get]
func (h *Handler) listStudentSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studentID := r.PathValue("studentID")
	q := r.URL.Query()

	filter := store.SessionFilter{StudentID: studentID, ModuleID: q.Get("module_id")}
	if v := q.Get("level"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil || !performance.ValidLevel(level) {
			respondError(w, http.StatusBadRequest, "level must be between 1 and 4")
			return
		}
		filter.Level = level
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	if _, err := h.store.GetStudent(ctx, studentID); h.handleStoreError(w, err, "student") {
		return
	}
	sessions, err := h.store.ListSessions(ctx, filter)
	if h.handleStoreError(w, err, "sessions") {
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}
