// internal/api/router.go
package api

import (
	"net/http"

	"github.com/mathspractice/adaptive/internal/observability"
)

// RegisterRoutes mounts every API route on mux. Each route is recorded in
// the request metrics under its pattern.
func RegisterRoutes(mux *http.ServeMux, h *Handler, m *observability.Metrics) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, m.WrapHandler(pattern, fn))
	}

	// Students
	handle("POST /students", h.createStudent)
	handle("GET /students", h.listStudents)
	handle("GET /students/{studentID}", h.getStudent)
	handle("PATCH /students/{studentID}/preferences", h.updatePreferences)
	handle("DELETE /students/{studentID}", h.deleteStudent)
	handle("GET /students/{studentID}/sessions", h.listStudentSessions)

	// Modules
	handle("GET /students/{studentID}/modules/{moduleID}/recommendation", h.getRecommendation)
	handle("GET /students/{studentID}/modules/{moduleID}/progress", h.getProgress)

	// Sessions
	handle("POST /sessions", h.createSession)
	handle("GET /sessions/{sessionID}", h.getSession)
	handle("POST /sessions/{sessionID}/answers", h.submitAnswer)
	handle("PUT /sessions/{sessionID}/level", h.changeLevel)
	handle("POST /sessions/{sessionID}/interventions/{interventionID}/response", h.respondToIntervention)
	handle("POST /sessions/{sessionID}/complete", h.completeSession)
	handle("GET /sessions/{sessionID}/interventions", h.listInterventions)

	// Export / import
	handle("GET /export", h.exportData)
	handle("POST /import", h.importData)
}
