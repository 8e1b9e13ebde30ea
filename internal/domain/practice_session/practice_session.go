package practicesession

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mathspractice/adaptive/internal/domain/adaptive"
	"github.com/mathspractice/adaptive/internal/domain/performance"
	"github.com/mathspractice/adaptive/internal/domain/recommend"
	"github.com/mathspractice/adaptive/internal/id"
)

var (
	ErrInvalidLevel          = errors.New("level must be between 1 and 4")
	ErrNotStarted            = errors.New("session not started")
	ErrAlreadyStarted        = errors.New("session already started")
	ErrSessionClosed         = errors.New("session is closed")
	ErrDecisionPending       = errors.New("an intervention is awaiting a decision")
	ErrNoPendingIntervention = errors.New("no intervention is awaiting a decision")
	ErrInterventionMismatch  = errors.New("intervention does not match the pending one")
)

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StateActive
	StatePendingDecision
	StateCompleted
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateActive:          "active",
	StatePendingDecision: "pending_decision",
	StateCompleted:       "completed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("invalid state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// Session is one learner working through one module. It owns its own
// tracker and engine so sessions never share counters, and it is safe
// for concurrent use.
type Session struct {
	ID         string
	StudentID  string
	ModuleID   string
	StartLevel int
	Config     SessionConfig

	mu        sync.Mutex
	logger    *slog.Logger
	tracker   *performance.Tracker
	engine    *adaptive.Engine
	state     State
	level     int
	pending   *adaptive.Intervention
	responses []adaptive.Response
	final     *performance.SessionMetrics
	record    *Record
	startedAt time.Time
}

// AnswerResult is returned for every recorded answer.
type AnswerResult struct {
	QuestionNumber int                        `json:"question_number"`
	Level          int                        `json:"level"`
	Metrics        performance.SessionMetrics `json:"metrics"`
	Confidence     adaptive.Confidence        `json:"confidence"`
	Intervention   *adaptive.Intervention     `json:"intervention"`
	// Finished is set once the question or time budget is used up.
	Finished bool `json:"finished"`
}

// Outcome is the result of answering an intervention.
type Outcome struct {
	Response  adaptive.Response `json:"response"`
	Level     int               `json:"level"`
	Completed bool              `json:"completed"`
	Record    *Record           `json:"record,omitempty"`
}

// Record is the persisted summary of a completed session.
type Record struct {
	SessionID             string          `json:"session_id"`
	StudentID             string          `json:"student_id"`
	ModuleID              string          `json:"module_id"`
	StartLevel            int             `json:"start_level"`
	FinalLevel            int             `json:"final_level"`
	StartedAt             time.Time       `json:"started_at"`
	CompletedAt           time.Time       `json:"completed_at"`
	FinalScore            recommend.Score `json:"final_score"`
	BestStreak            int             `json:"best_streak"`
	AverageResponseTimeMs int             `json:"average_response_time_ms"`
	DurationMs            int64           `json:"duration_ms"`
	CompletedEarly        bool            `json:"completed_early"`
	AcceptedInterventions int             `json:"accepted_interventions"`
}

// Summary converts the record into the recommender's view.
func (r Record) Summary() recommend.SessionSummary {
	return recommend.SessionSummary{
		SessionID:   r.SessionID,
		CompletedAt: r.CompletedAt,
		Level:       r.FinalLevel,
		FinalScore:  r.FinalScore,
	}
}

// View is a point-in-time copy of the session for callers outside the lock.
type View struct {
	ID                    string                     `json:"id"`
	StudentID             string                     `json:"student_id"`
	ModuleID              string                     `json:"module_id"`
	State                 State                      `json:"state"`
	StartLevel            int                        `json:"start_level"`
	Level                 int                        `json:"level"`
	StartedAt             time.Time                  `json:"started_at"`
	Metrics               performance.SessionMetrics `json:"metrics"`
	Confidence            adaptive.Confidence        `json:"confidence"`
	Pending               *adaptive.Intervention     `json:"pending_intervention"`
	AcceptedInterventions int                        `json:"accepted_interventions"`
	AdaptiveEnabled       bool                       `json:"adaptive_enabled"`
	MaxQuestions          *int                       `json:"max_questions,omitempty"`
}

// New builds an idle session. The engine configuration is validated here
// so a bad configuration never reaches a running session.
func New(studentID, moduleID string, level int, cfg SessionConfig, engineCfg adaptive.Config, logger *slog.Logger) (*Session, error) {
	if !performance.ValidLevel(level) {
		return nil, ErrInvalidLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	engine, err := adaptive.NewEngine(engineCfg, logger)
	if err != nil {
		return nil, err
	}

	sessionID := id.New()
	return &Session{
		ID:         sessionID,
		StudentID:  studentID,
		ModuleID:   moduleID,
		StartLevel: level,
		Config:     cfg,
		logger:     logger.With("component", "practice_session", "session_id", sessionID),
		tracker:    performance.NewTracker(logger),
		engine:     engine,
		state:      StateIdle,
		level:      level,
	}, nil
}

// Start begins tracking answers.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyStarted
	}
	s.tracker.StartSession(performance.SessionInfo{
		SessionID: s.ID,
		StudentID: s.StudentID,
		ModuleID:  s.ModuleID,
		Level:     s.level,
	})
	s.engine.ResetSession()
	s.startedAt = time.Now().UTC()
	s.state = StateActive
	s.logger.Info("session started", "student_id", s.StudentID, "module_id", s.ModuleID, "level", s.level)
	return nil
}

// Answer records one answer and evaluates the checkpoint for it.
func (s *Session) Answer(ev performance.AnswerEvent) (AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return AnswerResult{}, err
	}
	if s.state == StatePendingDecision {
		return AnswerResult{}, ErrDecisionPending
	}

	if err := s.tracker.RecordResult(ev); err != nil {
		return AnswerResult{}, err
	}
	m := s.tracker.Metrics()
	res := AnswerResult{
		QuestionNumber: m.TotalQuestions,
		Level:          s.level,
		Metrics:        m,
		Confidence:     s.engine.ComputeConfidence(m),
		Finished:       s.Config.reached(m.TotalQuestions, time.Since(s.startedAt)),
	}

	if iv, ok := s.engine.CheckForIntervention(m.TotalQuestions, m, s.level); ok {
		s.pending = &iv
		s.state = StatePendingDecision
		res.Intervention = &iv
	}
	return res, nil
}

// Respond applies the learner's decision on the pending intervention.
func (s *Session) Respond(interventionID string, accepted bool) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return Outcome{}, err
	}
	if s.state != StatePendingDecision || s.pending == nil {
		return Outcome{}, ErrNoPendingIntervention
	}
	if s.pending.ID != interventionID {
		return Outcome{}, ErrInterventionMismatch
	}

	iv := *s.pending
	resp := s.engine.RecordInterventionResponse(iv, accepted)
	s.responses = append(s.responses, resp)
	s.pending = nil
	s.state = StateActive

	out := Outcome{Response: resp, Level: s.level}
	if !accepted {
		return out, nil
	}

	if lvl, ok := iv.Suggested(); ok {
		if err := s.setLevel(lvl); err != nil {
			return Outcome{}, err
		}
		out.Level = lvl
		return out, nil
	}

	// switch_module ends this session.
	rec, err := s.complete(true)
	if err != nil {
		return Outcome{}, err
	}
	out.Completed = true
	out.Record = &rec
	return out, nil
}

// ChangeLevel moves the session to a new level on the learner's request.
func (s *Session) ChangeLevel(level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !performance.ValidLevel(level) {
		return ErrInvalidLevel
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.state == StatePendingDecision {
		return ErrDecisionPending
	}
	return s.setLevel(level)
}

// Complete ends the session and returns its record. An intervention still
// awaiting a decision is dropped.
func (s *Session) Complete() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return Record{}, err
	}
	if s.pending != nil {
		s.logger.Info("dropping undecided intervention", "intervention_id", s.pending.ID)
		s.pending = nil
	}
	return s.complete(false)
}

// Responses returns the decisions recorded in this session.
func (s *Session) Responses() []adaptive.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]adaptive.Response, len(s.responses))
	copy(out, s.responses)
	return out
}

// Record returns the completion record once the session has ended.
func (s *Session) Record() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record == nil {
		return Record{}, false
	}
	return *s.record, true
}

// Snapshot returns a consistent copy of the session.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.tracker.Metrics()
	if s.final != nil {
		m = *s.final
	}
	v := View{
		ID:                    s.ID,
		StudentID:             s.StudentID,
		ModuleID:              s.ModuleID,
		State:                 s.state,
		StartLevel:            s.StartLevel,
		Level:                 s.level,
		StartedAt:             s.startedAt,
		Metrics:               m,
		Confidence:            s.engine.ComputeConfidence(m),
		AcceptedInterventions: s.engine.AcceptedCount(),
		AdaptiveEnabled:       s.engine.Enabled(),
		MaxQuestions:          s.Config.MaxQuestions,
	}
	if s.pending != nil {
		iv := *s.pending
		v.Pending = &iv
	}
	return v
}

// SetAdaptive turns interventions on or off for the rest of the session.
func (s *Session) SetAdaptive(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetEnabled(enabled)
}

func (s *Session) checkOpen() error {
	switch s.state {
	case StateIdle:
		return ErrNotStarted
	case StateCompleted:
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) setLevel(level int) error {
	if err := s.tracker.UpdateLevel(level); err != nil {
		return err
	}
	s.level = level
	return nil
}

func (s *Session) complete(early bool) (Record, error) {
	m, err := s.tracker.EndSession()
	if err != nil {
		return Record{}, err
	}
	now := time.Now().UTC()
	rec := Record{
		SessionID:             s.ID,
		StudentID:             s.StudentID,
		ModuleID:              s.ModuleID,
		StartLevel:            s.StartLevel,
		FinalLevel:            s.level,
		StartedAt:             s.startedAt,
		CompletedAt:           now,
		FinalScore:            recommend.NewScore(m.CorrectCount, m.TotalQuestions),
		BestStreak:            m.BestStreak,
		AverageResponseTimeMs: m.AverageResponseTimeMs,
		DurationMs:            now.Sub(s.startedAt).Milliseconds(),
		CompletedEarly:        early,
		AcceptedInterventions: s.engine.AcceptedCount(),
	}
	s.final = &m
	s.record = &rec
	s.state = StateCompleted
	s.logger.Info("session completed",
		"final_level", rec.FinalLevel,
		"score", rec.FinalScore.Percentage,
		"completed_early", early,
	)
	return rec, nil
}
