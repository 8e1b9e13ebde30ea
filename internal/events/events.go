// Package events publishes the adaptive event stream: sessions starting and
// completing, and interventions being offered and resolved.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mathspractice/adaptive/internal/id"
)

type Type string

const (
	TypeSessionStarted       Type = "session.started"
	TypeSessionCompleted     Type = "session.completed"
	TypeLevelChanged         Type = "session.level_changed"
	TypeInterventionOffered  Type = "intervention.offered"
	TypeInterventionResolved Type = "intervention.resolved"
)

type Event struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	SessionID  string          `json:"session_id"`
	StudentID  string          `json:"student_id"`
	ModuleID   string          `json:"module_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// New builds an event with the payload encoded as JSON.
func New(t Type, sessionID, studentID, moduleID string, payload any) (Event, error) {
	ev := Event{
		ID:         id.New(),
		Type:       t,
		SessionID:  sessionID,
		StudentID:  studentID,
		ModuleID:   moduleID,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Payload = raw
	}
	return ev, nil
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// LogPublisher writes events to the log. It stands in when no broker is
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "events")}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Info("event",
		"type", string(ev.Type),
		"event_id", ev.ID,
		"session_id", ev.SessionID,
		"student_id", ev.StudentID,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
