package performance

import (
	"errors"
	"fmt"
)

const (
	// MinQuestions is the number of answers needed before any verdict is given.
	MinQuestions = 5

	// RollingWindowSize is how many recent answers feed the rolling statistics.
	RollingWindowSize = 5

	MinLevel = 1
	MaxLevel = 4
)

const defaultExpectedResponseTimeMs = 5000

var expectedResponseTimes = map[int]int{
	1: 8000, // beginning
	2: 6000, // developing
	3: 5000, // meeting
	4: 4000, // exceeding
}

// ErrNoActiveSession is returned when an answer or level change arrives
// while the tracker has no session. The call is a no-op.
var ErrNoActiveSession = errors.New("no active session")

// ErrInvalidLevel is returned for a level outside MinLevel..MaxLevel.
var ErrInvalidLevel = errors.New("level out of range")

// ExpectedResponseTimeMs returns the expected answer time for a level.
// Unknown levels fall back to 5000ms.
func ExpectedResponseTimeMs(level int) int {
	if ms, ok := expectedResponseTimes[level]; ok {
		return ms
	}
	return defaultExpectedResponseTimeMs
}

// ValidLevel reports whether level is within [MinLevel, MaxLevel].
func ValidLevel(level int) bool {
	return level >= MinLevel && level <= MaxLevel
}

// AnswerEvent is one answered question.
type AnswerEvent struct {
	Correct        bool `json:"correct"`
	ResponseTimeMs int  `json:"response_time_ms,omitempty"` // <= 0 means no timing data
}

// Timed reports whether the event carries usable timing data.
func (e AnswerEvent) Timed() bool {
	return e.ResponseTimeMs > 0
}

// SessionInfo identifies the session a tracker is following.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	ModuleID  string `json:"module_id"`
	Level     int    `json:"level"`
}

// ConfidenceLevel is the band attached to a struggling diagnosis.
type ConfidenceLevel int

const (
	InsufficientData ConfidenceLevel = iota
	VeryLow
	Low
	Moderate
	Good
	Excellent
)

var confidenceLevelNames = [...]string{
	InsufficientData: "insufficient_data",
	VeryLow:          "very_low",
	Low:              "low",
	Moderate:         "moderate",
	Good:             "good",
	Excellent:        "excellent",
}

func (c ConfidenceLevel) String() string {
	if c < 0 || int(c) >= len(confidenceLevelNames) {
		return fmt.Sprintf("ConfidenceLevel(%d)", int(c))
	}
	return confidenceLevelNames[c]
}

func (c ConfidenceLevel) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(confidenceLevelNames) {
		return nil, fmt.Errorf("invalid confidence level %d", int(c))
	}
	return []byte(confidenceLevelNames[c]), nil
}

func (c *ConfidenceLevel) UnmarshalText(b []byte) error {
	for i, name := range confidenceLevelNames {
		if name == string(b) {
			*c = ConfidenceLevel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown confidence level %q", string(b))
}

// SessionMetrics is the derived view of a session. It is recomputed on
// every call and never persisted as-is.
type SessionMetrics struct {
	SessionInfo

	TotalQuestions int `json:"total_questions"`
	CorrectCount   int `json:"correct_count"`
	IncorrectCount int `json:"incorrect_count"`
	Accuracy       int `json:"accuracy"` // all answers, percent

	RollingAccuracy int           `json:"rolling_accuracy"` // percent
	RollingWindow   []AnswerEvent `json:"rolling_window"`

	AverageResponseTimeMs        int `json:"average_response_time_ms"`
	RollingAverageResponseTimeMs int `json:"rolling_average_response_time_ms"`
	ExpectedResponseTimeMs       int `json:"expected_response_time_ms"`

	CurrentStreak     int `json:"current_streak"`
	BestStreak        int `json:"best_streak"`
	ConsecutiveErrors int `json:"consecutive_errors"`
	StreakBreaks      int `json:"streak_breaks"`

	SlowResponses int `json:"slow_responses"`
	FastIncorrect int `json:"fast_incorrect"`

	Diagnosis Diagnosis `json:"diagnosis"`
}

// HasEnoughData reports whether at least MinQuestions answers were recorded.
func (m SessionMetrics) HasEnoughData() bool {
	return m.TotalQuestions >= MinQuestions
}

// Summary renders a one-line description for logs.
func (m SessionMetrics) Summary() string {
	verdict := "within range"
	if m.Diagnosis.Struggling {
		verdict = "struggling"
	}
	return fmt.Sprintf("%d questions (%d correct, %d incorrect), accuracy %d%% overall %d%% recent, streak %d, confidence %s, %s",
		m.TotalQuestions, m.CorrectCount, m.IncorrectCount, m.Accuracy, m.RollingAccuracy,
		m.CurrentStreak, m.Diagnosis.Confidence, verdict)
}
