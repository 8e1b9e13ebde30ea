package performance

import (
	"log/slog"
	"math"
)

// Tracker owns the mutable state of exactly one session at a time.
// It is not safe for concurrent use; callers that run several sessions
// give each its own Tracker.
type Tracker struct {
	logger *slog.Logger
	state  *sessionState
}

type sessionState struct {
	info SessionInfo

	total     int
	correct   int
	incorrect int

	currentStreak     int
	bestStreak        int
	consecutiveErrors int
	streakBreaks      int

	slowResponses int
	fastIncorrect int

	timedCount int
	timedSumMs int64

	window []AnswerEvent
}

// NewTracker creates an idle tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger.With("component", "performance")}
}

// Active reports whether a session is being tracked.
func (t *Tracker) Active() bool {
	return t.state != nil
}

// StartSession discards any unfinished session and begins a fresh one.
func (t *Tracker) StartSession(info SessionInfo) {
	if t.state != nil {
		t.logger.Info("discarding unfinished session",
			"session_id", t.state.info.SessionID,
			"questions", t.state.total,
		)
	}
	t.state = &sessionState{
		info:   info,
		window: make([]AnswerEvent, 0, RollingWindowSize+1),
	}
	t.logger.Debug("session started",
		"session_id", info.SessionID,
		"module_id", info.ModuleID,
		"level", info.Level,
	)
}

// RecordResult applies one answer. Events must arrive in the order the
// learner answered. Negative response times are treated as missing.
func (t *Tracker) RecordResult(ev AnswerEvent) error {
	s := t.state
	if s == nil {
		t.logger.Warn("answer ignored", "error", ErrNoActiveSession)
		return ErrNoActiveSession
	}
	if ev.ResponseTimeMs < 0 {
		ev.ResponseTimeMs = 0
	}

	s.total++
	if ev.Correct {
		s.correct++
		s.currentStreak++
		if s.currentStreak > s.bestStreak {
			s.bestStreak = s.currentStreak
		}
		s.consecutiveErrors = 0
	} else {
		s.incorrect++
		if s.currentStreak > 0 {
			s.streakBreaks++
		}
		s.currentStreak = 0
		s.consecutiveErrors++
	}

	if ev.Timed() {
		s.timedCount++
		s.timedSumMs += int64(ev.ResponseTimeMs)

		expected := float64(ExpectedResponseTimeMs(s.info.Level))
		rt := float64(ev.ResponseTimeMs)
		if rt > expected*slowFactor {
			s.slowResponses++
		}
		if !ev.Correct && rt < expected*0.5 {
			s.fastIncorrect++
		}
	}

	s.window = append(s.window, ev)
	if len(s.window) > RollingWindowSize {
		s.window = append(s.window[:0], s.window[len(s.window)-RollingWindowSize:]...)
	}

	t.logger.Debug("answer recorded",
		"session_id", s.info.SessionID,
		"question", s.total,
		"correct", ev.Correct,
		"response_time_ms", ev.ResponseTimeMs,
	)
	return nil
}

// Metrics returns the derived metrics and diagnosis. It has no side effects.
func (t *Tracker) Metrics() SessionMetrics {
	if t.state == nil {
		return SessionMetrics{Diagnosis: Diagnose(SessionMetrics{})}
	}
	return t.state.metrics()
}

// UpdateLevel changes the level used for future response-time
// comparisons. Answers already recorded are not reclassified.
func (t *Tracker) UpdateLevel(level int) error {
	if t.state == nil {
		t.logger.Warn("level change ignored", "error", ErrNoActiveSession, "level", level)
		return ErrNoActiveSession
	}
	if !ValidLevel(level) {
		t.logger.Warn("level change rejected", "session_id", t.state.info.SessionID, "error", ErrInvalidLevel, "level", level)
		return ErrInvalidLevel
	}
	old := t.state.info.Level
	t.state.info.Level = level
	t.logger.Info("level updated",
		"session_id", t.state.info.SessionID,
		"from", old,
		"to", level,
	)
	return nil
}

// EndSession returns the final metrics and returns the tracker to idle.
func (t *Tracker) EndSession() (SessionMetrics, error) {
	if t.state == nil {
		t.logger.Warn("end ignored", "error", ErrNoActiveSession)
		return SessionMetrics{}, ErrNoActiveSession
	}
	final := t.state.metrics()
	t.state = nil
	t.logger.Info("session ended",
		"session_id", final.SessionID,
		"summary", final.Summary(),
	)
	return final, nil
}

func (s *sessionState) metrics() SessionMetrics {
	window := make([]AnswerEvent, len(s.window))
	copy(window, s.window)

	m := SessionMetrics{
		SessionInfo:                  s.info,
		TotalQuestions:               s.total,
		CorrectCount:                 s.correct,
		IncorrectCount:               s.incorrect,
		Accuracy:                     percent(s.correct, s.total),
		RollingAccuracy:              rollingAccuracy(window),
		RollingWindow:                window,
		AverageResponseTimeMs:        roundDiv(s.timedSumMs, s.timedCount),
		RollingAverageResponseTimeMs: rollingAverageResponseTime(window),
		ExpectedResponseTimeMs:       ExpectedResponseTimeMs(s.info.Level),
		CurrentStreak:                s.currentStreak,
		BestStreak:                   s.bestStreak,
		ConsecutiveErrors:            s.consecutiveErrors,
		StreakBreaks:                 s.streakBreaks,
		SlowResponses:                s.slowResponses,
		FastIncorrect:                s.fastIncorrect,
	}
	m.Diagnosis = Diagnose(m)
	return m
}

func rollingAccuracy(window []AnswerEvent) int {
	correct := 0
	for _, ev := range window {
		if ev.Correct {
			correct++
		}
	}
	return percent(correct, len(window))
}

func rollingAverageResponseTime(window []AnswerEvent) int {
	var sum int64
	n := 0
	for _, ev := range window {
		if ev.Timed() {
			sum += int64(ev.ResponseTimeMs)
			n++
		}
	}
	return roundDiv(sum, n)
}

// percent returns round(part/whole*100), or 0 for an empty whole.
func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(whole)))
}

func roundDiv(sum int64, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}
