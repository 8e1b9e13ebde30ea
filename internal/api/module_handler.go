package api

import (
	"net/http"

	"github.com/mathspractice/adaptive/internal/domain/student"
)

// ── Request / Response types ────────────────────────────────────────────────

type ProgressResponse struct {
	student.ModuleProgress
	Complete        bool `json:"complete" example:"false"`
	HighestMastered int  `json:"highest_mastered" example:"2"`
}

// ── Handlers ────────────────────────────────────────────────────────────────

// getRecommendation suggests a starting level for the next session.
// @Summary      Recommend a starting level
// @Description  Looks at the last three completed sessions at each level, highest first.
// @Tags         Modules
// @Produce      json
// @Param        studentID  path      string  true  "Student ID"
// @Param        moduleID   path      string  true  "Module ID"
// @Success      200        {object}  recommend.Recommendation
// @Failure      404        {object}  map[string]string
// @Failure      500        {object}  map[string]string
// @Router       /students/{studentID}/modules/{moduleID}/recommendation [get]
func (h *Handler) getRecommendation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sessions.Recommend(r.Context(), r.PathValue("studentID"), r.PathValue("moduleID"))
	if h.handleStoreError(w, err, "student") {
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// getProgress returns correct answers per level for a module.
// @Summary      Get module progress
// @Tags         Modules
// @Produce      json
// @Param        studentID  path      string  true  "Student ID"
// @Param        moduleID   path      string  true  "Module ID"
// @Success      200        {object}  ProgressResponse
// @Failure      404        {object}  map[string]string
// @Router       /students/{studentID}/modules/{moduleID}/progress [get]
func (h *Handler) getProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studentID := r.PathValue("studentID")

	if _, err := h.store.GetStudent(ctx, studentID); h.handleStoreError(w, err, "student") {
		return
	}
	progress, err := h.store.GetModuleProgress(ctx, studentID, r.PathValue("moduleID"))
	if h.handleStoreError(w, err, "progress") {
		return
	}
	respondJSON(w, http.StatusOK, ProgressResponse{
		ModuleProgress:  progress,
		Complete:        progress.Complete(),
		HighestMastered: progress.HighestMastered(),
	})
}
