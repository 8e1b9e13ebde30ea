package store

import (
	"context"
	"errors"
	"time"

	"github.com/mathspractice/adaptive/internal/domain/adaptive"
	practicesession "github.com/mathspractice/adaptive/internal/domain/practice_session"
	"github.com/mathspractice/adaptive/internal/domain/recommend"
	"github.com/mathspractice/adaptive/internal/domain/student"
)

// DataVersion is written into every export and required on import.
const DataVersion = "2.0"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnsupportedVersion = errors.New("unsupported data version")
)

type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// SessionRecord is a persisted session. Completion fields are zero while
// the session is in progress.
type SessionRecord struct {
	practicesession.Record
	Status SessionStatus `json:"status"`
}

// SessionFilter narrows session listings. Zero values match everything.
type SessionFilter struct {
	StudentID     string
	ModuleID      string
	Level         int // matches the final level
	CompletedOnly bool
	Limit         int
}

// InterventionLog is one intervention and the learner's decision.
type InterventionLog struct {
	ID                  string        `json:"id"`
	SessionID           string        `json:"session_id"`
	StudentID           string        `json:"student_id"`
	ModuleID            string        `json:"module_id"`
	Kind                adaptive.Kind `json:"kind"`
	TriggeredAtQuestion int           `json:"triggered_at_question"`
	FromLevel           int           `json:"from_level"`
	ToLevel             *int          `json:"to_level"`
	ConfidenceScore     int           `json:"confidence_score"`
	Band                adaptive.Band `json:"band"`
	Accepted            bool          `json:"accepted"`
	CreatedAt           time.Time     `json:"created_at"`
	RespondedAt         time.Time     `json:"responded_at"`
}

// NewInterventionLog flattens an engine response for storage.
func NewInterventionLog(sessionID, studentID string, resp adaptive.Response) InterventionLog {
	iv := resp.Intervention
	return InterventionLog{
		ID:                  iv.ID,
		SessionID:           sessionID,
		StudentID:           studentID,
		ModuleID:            iv.ModuleID,
		Kind:                iv.Kind,
		TriggeredAtQuestion: iv.TriggeredAtQuestion,
		FromLevel:           iv.CurrentLevel,
		ToLevel:             iv.SuggestedLevel,
		ConfidenceScore:     iv.Confidence.Score,
		Band:                iv.Confidence.Band,
		Accepted:            resp.Accepted,
		CreatedAt:           iv.CreatedAt,
		RespondedAt:         resp.RespondedAt,
	}
}

// ExportData is the portable form of one or all students.
type ExportData struct {
	Version       string                   `json:"version"`
	ExportedAt    time.Time                `json:"exported_at"`
	Students      []*student.Student       `json:"students"`
	Sessions      []SessionRecord          `json:"sessions"`
	Interventions []InterventionLog        `json:"interventions"`
	Progress      []student.ModuleProgress `json:"progress"`
}

type ImportResult struct {
	Students      int `json:"students"`
	Sessions      int `json:"sessions"`
	Interventions int `json:"interventions"`
	Progress      int `json:"progress"`
}

// Store is the persistence surface used by the service layer.
type Store interface {
	SaveStudent(ctx context.Context, s *student.Student) error
	GetStudent(ctx context.Context, id string) (*student.Student, error)
	ListStudents(ctx context.Context) ([]*student.Student, error)
	UpdatePreferences(ctx context.Context, id string, prefs student.Preferences) error
	TouchStudent(ctx context.Context, id string, at time.Time) error
	DeleteStudent(ctx context.Context, id string) error

	StartSession(ctx context.Context, rec practicesession.Record) error
	CompleteSession(ctx context.Context, rec practicesession.Record) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]SessionRecord, error)
	CompletedSummaries(ctx context.Context, studentID, moduleID string, level, limit int) ([]recommend.SessionSummary, error)
	DeleteSessionsCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	SaveIntervention(ctx context.Context, log InterventionLog) error
	ListInterventions(ctx context.Context, sessionID string) ([]InterventionLog, error)

	AddModuleProgress(ctx context.Context, studentID, moduleID string, level int, correct bool) error
	GetModuleProgress(ctx context.Context, studentID, moduleID string) (student.ModuleProgress, error)

	Export(ctx context.Context, studentID string) (*ExportData, error)
	Import(ctx context.Context, data *ExportData) (ImportResult, error)

	Close() error
}
