// internal/service/session.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mathspractice/adaptive/internal/domain/adaptive"
	"github.com/mathspractice/adaptive/internal/domain/performance"
	practicesession "github.com/mathspractice/adaptive/internal/domain/practice_session"
	"github.com/mathspractice/adaptive/internal/domain/recommend"
	"github.com/mathspractice/adaptive/internal/events"
	"github.com/mathspractice/adaptive/internal/observability"
	"github.com/mathspractice/adaptive/internal/store"
)

// StartRequest describes a new session. Nil fields fall back to the
// recommended level and the student's preferences.
type StartRequest struct {
	StudentID    string
	ModuleID     string
	Level        *int
	MaxQuestions *int
	Adaptive     *bool
}

// Started is returned when a session begins.
type Started struct {
	Session        practicesession.View      `json:"session"`
	Recommendation *recommend.Recommendation `json:"recommendation,omitempty"`
}

// Lookup is either a live session or, once it has ended, its stored record.
type Lookup struct {
	Live   *practicesession.View `json:"live,omitempty"`
	Record *store.SessionRecord  `json:"record,omitempty"`
}

// DefaultPublishTimeout bounds how long a request waits on the event
// publisher.
const DefaultPublishTimeout = 2 * time.Second

// SessionService hosts live sessions in memory and persists their
// outcomes. Each session carries its own tracker and engine; the service
// only guards the map that holds them.
type SessionService struct {
	store          store.Store
	publisher      events.Publisher
	metrics        *observability.Metrics
	engineCfg      adaptive.Config
	logger         *slog.Logger
	publishTimeout time.Duration

	mu   sync.RWMutex
	live map[string]*practicesession.Session // sessionID → session
}

// NewSessionService validates the engine configuration once so that every
// session built from it is known to be valid.
func NewSessionService(s store.Store, engineCfg adaptive.Config, pub events.Publisher, m *observability.Metrics, logger *slog.Logger) (*SessionService, error) {
	if err := engineCfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = events.NewLogPublisher(logger)
	}
	return &SessionService{
		store:          s,
		publisher:      pub,
		metrics:        m,
		engineCfg:      engineCfg,
		logger:         logger.With("component", "session-service"),
		publishTimeout: DefaultPublishTimeout,
		live:           make(map[string]*practicesession.Session),
	}, nil
}

// SetPublishTimeout changes the per-event publish deadline. Non-positive
// values restore the default.
func (ss *SessionService) SetPublishTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultPublishTimeout
	}
	ss.publishTimeout = d
}

// Start creates, starts and records a session.
func (ss *SessionService) Start(ctx context.Context, req StartRequest) (Started, error) {
	st, err := ss.store.GetStudent(ctx, req.StudentID)
	if err != nil {
		return Started{}, err
	}

	var out Started
	level := 0
	if req.Level != nil {
		level = *req.Level
	} else {
		rec, err := ss.Recommend(ctx, req.StudentID, req.ModuleID)
		if err != nil {
			return Started{}, err
		}
		level = rec.Level
		out.Recommendation = &rec
	}

	maxQuestions := st.Preferences.DefaultQuestionCount
	if req.MaxQuestions != nil {
		maxQuestions = *req.MaxQuestions
	}

	sess, err := practicesession.New(st.ID, req.ModuleID, level, practicesession.WithMaxQuestions(maxQuestions), ss.engineCfg, ss.logger)
	if err != nil {
		return Started{}, err
	}
	if req.Adaptive != nil {
		sess.SetAdaptive(*req.Adaptive)
	}
	if err := sess.Start(); err != nil {
		return Started{}, err
	}

	view := sess.Snapshot()
	if err := ss.store.StartSession(ctx, practicesession.Record{
		SessionID:  sess.ID,
		StudentID:  sess.StudentID,
		ModuleID:   sess.ModuleID,
		StartLevel: sess.StartLevel,
		StartedAt:  view.StartedAt,
	}); err != nil {
		return Started{}, err
	}
	if err := ss.store.TouchStudent(ctx, st.ID, view.StartedAt); err != nil {
		ss.logger.Warn("failed to update last active", "student_id", st.ID, "error", err)
	}

	ss.mu.Lock()
	ss.live[sess.ID] = sess
	ss.mu.Unlock()

	ss.metrics.SessionStarted()
	ss.emit(ctx, events.TypeSessionStarted, sess, map[string]any{
		"level":         level,
		"max_questions": maxQuestions,
	})
	ss.logger.Info("session started",
		"session_id", sess.ID,
		"student_id", st.ID,
		"module_id", req.ModuleID,
		"level", level,
	)

	out.Session = view
	return out, nil
}

// Get returns the live view of a session, or its stored record once ended.
func (ss *SessionService) Get(ctx context.Context, sessionID string) (Lookup, error) {
	ss.mu.RLock()
	sess, ok := ss.live[sessionID]
	ss.mu.RUnlock()
	if ok {
		view := sess.Snapshot()
		return Lookup{Live: &view}, nil
	}

	rec, err := ss.store.GetSession(ctx, sessionID)
	if err != nil {
		return Lookup{}, err
	}
	return Lookup{Record: rec}, nil
}

// SubmitAnswer records an answer, updates module progress and reports any
// intervention raised at this checkpoint.
func (ss *SessionService) SubmitAnswer(ctx context.Context, sessionID string, ev performance.AnswerEvent) (practicesession.AnswerResult, error) {
	sess, err := ss.session(ctx, sessionID)
	if err != nil {
		return practicesession.AnswerResult{}, err
	}

	res, err := sess.Answer(ev)
	if err != nil {
		return practicesession.AnswerResult{}, err
	}

	if err := ss.store.AddModuleProgress(ctx, sess.StudentID, sess.ModuleID, res.Level, ev.Correct); err != nil {
		ss.logger.Error("failed to update module progress", "session_id", sessionID, "error", err)
	}
	ss.metrics.AnswerRecorded(res.Level, ev.Correct, res.Confidence.Score, res.Confidence.Available())

	if iv := res.Intervention; iv != nil {
		ss.metrics.InterventionOffered(iv.Kind.String())
		ss.emit(ctx, events.TypeInterventionOffered, sess, iv)
	}
	return res, nil
}

// Respond applies the learner's decision, logs it, and finishes the
// session when a module switch is accepted.
func (ss *SessionService) Respond(ctx context.Context, sessionID, interventionID string, accepted bool) (practicesession.Outcome, error) {
	sess, err := ss.session(ctx, sessionID)
	if err != nil {
		return practicesession.Outcome{}, err
	}

	out, err := sess.Respond(interventionID, accepted)
	if err != nil {
		return practicesession.Outcome{}, err
	}

	if err := ss.store.SaveIntervention(ctx, store.NewInterventionLog(sess.ID, sess.StudentID, out.Response)); err != nil {
		ss.logger.Error("failed to log intervention", "intervention_id", interventionID, "error", err)
	}
	kind := out.Response.Intervention.Kind.String()
	ss.metrics.InterventionResolved(kind, accepted)
	ss.emit(ctx, events.TypeInterventionResolved, sess, out.Response)

	if out.Completed && out.Record != nil {
		if err := ss.finish(ctx, sess, *out.Record); err != nil {
			return practicesession.Outcome{}, err
		}
	}
	return out, nil
}

// ChangeLevel moves a live session to another level.
func (ss *SessionService) ChangeLevel(ctx context.Context, sessionID string, level int) (practicesession.View, error) {
	sess, err := ss.session(ctx, sessionID)
	if err != nil {
		return practicesession.View{}, err
	}
	from := sess.Snapshot().Level
	if err := sess.ChangeLevel(level); err != nil {
		return practicesession.View{}, err
	}
	ss.emit(ctx, events.TypeLevelChanged, sess, map[string]int{"from": from, "to": level})
	return sess.Snapshot(), nil
}

// Complete ends a live session and stores its record. A session whose
// record could not be saved stays live, and calling Complete again saves
// the same record.
func (ss *SessionService) Complete(ctx context.Context, sessionID string) (practicesession.Record, error) {
	sess, err := ss.session(ctx, sessionID)
	if err != nil {
		return practicesession.Record{}, err
	}
	rec, ok := sess.Record()
	if !ok {
		if rec, err = sess.Complete(); err != nil {
			return practicesession.Record{}, err
		}
	}
	if err := ss.finish(ctx, sess, rec); err != nil {
		return practicesession.Record{}, err
	}
	return rec, nil
}

// Interventions returns the decisions logged for a session.
func (ss *SessionService) Interventions(ctx context.Context, sessionID string) ([]store.InterventionLog, error) {
	if _, err := ss.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return ss.store.ListInterventions(ctx, sessionID)
}

// Recommend picks a starting level for the student in a module from the
// recent completed sessions at every level.
func (ss *SessionService) Recommend(ctx context.Context, studentID, moduleID string) (recommend.Recommendation, error) {
	st, err := ss.store.GetStudent(ctx, studentID)
	if err != nil {
		return recommend.Recommendation{}, err
	}

	history := make(map[int][]recommend.SessionSummary, performance.MaxLevel)
	for level := performance.MinLevel; level <= performance.MaxLevel; level++ {
		summaries, err := ss.store.CompletedSummaries(ctx, studentID, moduleID, level, recommend.WindowSize)
		if err != nil {
			return recommend.Recommendation{}, err
		}
		history[level] = summaries
	}

	rec := recommend.RecommendLevel(func(level int) []recommend.SessionSummary {
		return history[level]
	}, st.Preferences.DefaultLevel)

	ss.logger.Debug("level recommended",
		"student_id", studentID,
		"module_id", moduleID,
		"level", rec.Level,
		"rule", rec.Rule.String(),
	)
	return rec, nil
}

// Cleanup removes completed sessions older than retention.
func (ss *SessionService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	n, err := ss.store.DeleteSessionsCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	ss.logger.Info("old sessions removed", "deleted", n, "cutoff", cutoff)
	return n, nil
}

// ActiveSessions returns the number of sessions held in memory.
func (ss *SessionService) ActiveSessions() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.live)
}

// session returns a live session. A session that exists only in the store
// has ended (or was abandoned by a restart) and reports ErrSessionClosed.
func (ss *SessionService) session(ctx context.Context, sessionID string) (*practicesession.Session, error) {
	ss.mu.RLock()
	sess, ok := ss.live[sessionID]
	ss.mu.RUnlock()
	if ok {
		return sess, nil
	}

	if _, err := ss.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return nil, practicesession.ErrSessionClosed
}

// finish persists the record before the session leaves memory, so a failed
// write can be retried through Complete.
func (ss *SessionService) finish(ctx context.Context, sess *practicesession.Session, rec practicesession.Record) error {
	if err := ss.store.CompleteSession(ctx, rec); err != nil {
		ss.logger.Error("failed to save completed session", "session_id", sess.ID, "error", err)
		return fmt.Errorf("save completed session: %w", err)
	}

	ss.mu.Lock()
	_, live := ss.live[sess.ID]
	delete(ss.live, sess.ID)
	ss.mu.Unlock()
	if !live {
		return nil
	}

	ss.metrics.SessionCompleted(rec.CompletedEarly)
	ss.emit(ctx, events.TypeSessionCompleted, sess, rec)
	if err := ss.store.TouchStudent(ctx, rec.StudentID, rec.CompletedAt); err != nil && !errors.Is(err, store.ErrNotFound) {
		ss.logger.Warn("failed to update last active", "student_id", rec.StudentID, "error", err)
	}
	return nil
}

// emit publishes best effort: a broker outage never fails a learner's
// request, and a slow broker holds it for at most publishTimeout.
func (ss *SessionService) emit(ctx context.Context, t events.Type, sess *practicesession.Session, payload any) {
	ev, err := events.New(t, sess.ID, sess.StudentID, sess.ModuleID, payload)
	if err == nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ss.publishTimeout)
		err = ss.publisher.Publish(pctx, ev)
		cancel()
	}
	if err != nil {
		ss.metrics.EventPublishFailed()
		ss.logger.Warn("event not published", "type", string(t), "session_id", sess.ID, "error", err)
	}
}
