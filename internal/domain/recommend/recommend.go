// Package recommend inspects completed sessions to pick a starting level
// for the next session of a module.
package recommend

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mathspractice/adaptive/internal/domain/performance"
)

const (
	// WindowSize is the number of recent sessions a performance window covers.
	WindowSize = 3
	// DefaultLevel applies when the student has no stored preference.
	DefaultLevel = 3

	minSessions          = 2
	trendMargin          = 10
	advanceThreshold     = 80
	consolidateThreshold = 60
)

// Score is the final tally of a completed session.
type Score struct {
	Correct    int `json:"correct"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// NewScore derives the percentage from the counts.
func NewScore(correct, total int) Score {
	s := Score{Correct: correct, Total: total}
	if total > 0 {
		s.Percentage = int(math.Round(float64(correct) * 100 / float64(total)))
	}
	return s
}

// SessionSummary is the read-only view of one completed session.
type SessionSummary struct {
	SessionID   string    `json:"session_id"`
	CompletedAt time.Time `json:"completed_at"`
	Level       int       `json:"level"`
	FinalScore  Score     `json:"final_score"`
}

// Trend is the direction of accuracy across a window.
type Trend int

const (
	TrendInsufficientData Trend = iota
	TrendStable
	TrendImproving
	TrendDeclining
)

var trendNames = [...]string{
	TrendInsufficientData: "insufficient_data",
	TrendStable:           "stable",
	TrendImproving:        "improving",
	TrendDeclining:        "declining",
}

func (t Trend) String() string {
	if t < 0 || int(t) >= len(trendNames) {
		return fmt.Sprintf("Trend(%d)", int(t))
	}
	return trendNames[t]
}

func (t Trend) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(trendNames) {
		return nil, fmt.Errorf("invalid trend %d", int(t))
	}
	return []byte(trendNames[t]), nil
}

func (t *Trend) UnmarshalText(text []byte) error {
	for i, name := range trendNames {
		if name == string(text) {
			*t = Trend(i)
			return nil
		}
	}
	return fmt.Errorf("unknown trend %q", string(text))
}

// PerformanceWindow summarizes the most recent sessions at one level.
type PerformanceWindow struct {
	Level           int   `json:"level"`
	Sessions        int   `json:"sessions"`
	Accuracies      []int `json:"accuracies"` // newest first
	AverageAccuracy int   `json:"average_accuracy"`
	Trend           Trend `json:"trend"`
}

// ComputePerformanceWindow takes at most WindowSize of the most recent
// sessions. History may arrive in any order; it is sorted newest first.
func ComputePerformanceWindow(history []SessionSummary) PerformanceWindow {
	if len(history) == 0 {
		return PerformanceWindow{Accuracies: []int{}, Trend: TrendInsufficientData}
	}

	recent := make([]SessionSummary, len(history))
	copy(recent, history)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CompletedAt.After(recent[j].CompletedAt)
	})
	if len(recent) > WindowSize {
		recent = recent[:WindowSize]
	}

	w := PerformanceWindow{
		Level:      recent[0].Level,
		Sessions:   len(recent),
		Accuracies: make([]int, len(recent)),
		Trend:      TrendStable,
	}
	sum := 0
	for i, s := range recent {
		w.Accuracies[i] = s.FinalScore.Percentage
		sum += s.FinalScore.Percentage
	}
	w.AverageAccuracy = int(math.Round(float64(sum) / float64(len(recent))))

	if len(recent) >= 2 {
		newest, oldest := w.Accuracies[0], w.Accuracies[len(recent)-1]
		switch {
		case newest > oldest+trendMargin:
			w.Trend = TrendImproving
		case newest < oldest-trendMargin:
			w.Trend = TrendDeclining
		}
	}
	return w
}

// Rule names the branch that produced a recommendation.
type Rule int

const (
	RuleDefault Rule = iota
	RuleAdvance
	RuleConsolidate
	RuleStepDown
)

var ruleNames = [...]string{
	RuleDefault:     "default",
	RuleAdvance:     "advance",
	RuleConsolidate: "consolidate",
	RuleStepDown:    "step_down",
}

func (r Rule) String() string {
	if r < 0 || int(r) >= len(ruleNames) {
		return fmt.Sprintf("Rule(%d)", int(r))
	}
	return ruleNames[r]
}

func (r Rule) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= len(ruleNames) {
		return nil, fmt.Errorf("invalid rule %d", int(r))
	}
	return []byte(ruleNames[r]), nil
}

// History returns the completed sessions of one level, newest first.
type History func(level int) []SessionSummary

// Recommendation is the suggested starting level and how it was reached.
type Recommendation struct {
	Level int  `json:"recommended_level"`
	Rule  Rule `json:"rule"`
	// BasisLevel is the level whose window decided; 0 for RuleDefault.
	BasisLevel int `json:"basis_level,omitempty"`
	// Windows holds every window evaluated, highest level first.
	Windows []PerformanceWindow `json:"windows"`
}

// RecommendLevel scans levels from the highest down and returns on the
// first level with enough evidence for a rule. An out-of-range default
// falls back to DefaultLevel.
func RecommendLevel(history History, defaultLevel int) Recommendation {
	if !performance.ValidLevel(defaultLevel) {
		defaultLevel = DefaultLevel
	}
	rec := Recommendation{Level: defaultLevel, Rule: RuleDefault, Windows: []PerformanceWindow{}}
	if history == nil {
		return rec
	}

	for level := performance.MaxLevel; level >= performance.MinLevel; level-- {
		w := ComputePerformanceWindow(history(level))
		w.Level = level
		rec.Windows = append(rec.Windows, w)
		if w.Sessions < minSessions {
			continue
		}

		switch {
		case w.AverageAccuracy >= advanceThreshold:
			rec.Level, rec.Rule = min(level+1, performance.MaxLevel), RuleAdvance
		case w.AverageAccuracy >= consolidateThreshold:
			rec.Level, rec.Rule = level, RuleConsolidate
		case w.Trend == TrendDeclining:
			rec.Level, rec.Rule = max(level-1, performance.MinLevel), RuleStepDown
		default:
			continue
		}
		rec.BasisLevel = level
		return rec
	}
	return rec
}
