package performance

import (
	"fmt"
	"math"
)

// Struggling thresholds.
const (
	strugglingScoreThreshold = 4

	lowAccuracy         = 40
	belowTargetAccuracy = 60

	slowFactor       = 1.5
	guessingRate     = 0.3
	inconsistentMinQ = 10
	inconsistentBrks = 3
)

// Diagnosis is the rule-based struggling verdict for a session.
type Diagnosis struct {
	Struggling bool            `json:"struggling"`
	Score      int             `json:"score"`
	Indicators []string        `json:"indicators"`
	Confidence ConfidenceLevel `json:"confidence_band"`
}

// Sufficient reports whether a verdict was given.
func (d Diagnosis) Sufficient() bool {
	return d.Confidence != InsufficientData
}

// Diagnose scores the five struggling checks in order. Fewer than
// MinQuestions answers yield an InsufficientData diagnosis.
func Diagnose(m SessionMetrics) Diagnosis {
	if m.TotalQuestions < MinQuestions {
		return Diagnosis{Confidence: InsufficientData, Indicators: []string{}}
	}

	indicators := []string{}
	score := 0

	switch {
	case m.RollingAccuracy < lowAccuracy:
		indicators = append(indicators, fmt.Sprintf("Low accuracy: %d%%", m.RollingAccuracy))
		score += 3
	case m.RollingAccuracy < belowTargetAccuracy:
		indicators = append(indicators, fmt.Sprintf("Below-target accuracy: %d%%", m.RollingAccuracy))
		score++
	}

	switch {
	case m.ConsecutiveErrors >= 3:
		indicators = append(indicators, fmt.Sprintf("%d errors in a row", m.ConsecutiveErrors))
		score += 3
	case m.ConsecutiveErrors >= 2:
		indicators = append(indicators, fmt.Sprintf("%d consecutive errors", m.ConsecutiveErrors))
		score++
	}

	if float64(m.RollingAverageResponseTimeMs) > float64(m.ExpectedResponseTimeMs)*slowFactor {
		secs := int(math.Round(float64(m.RollingAverageResponseTimeMs) / 1000))
		indicators = append(indicators, fmt.Sprintf("Slow responses (avg %ds)", secs))
		score += 2
	}

	if float64(m.FastIncorrect)/float64(m.TotalQuestions) > guessingRate {
		indicators = append(indicators, "Possible guessing behavior")
		score += 2
	}

	if m.TotalQuestions >= inconsistentMinQ && m.StreakBreaks >= inconsistentBrks {
		indicators = append(indicators, "Inconsistent performance")
		score++
	}

	return Diagnosis{
		Struggling: score >= strugglingScoreThreshold,
		Score:      score,
		Indicators: indicators,
		Confidence: confidenceForScore(score),
	}
}

func confidenceForScore(score int) ConfidenceLevel {
	switch {
	case score >= 6:
		return VeryLow
	case score >= 4:
		return Low
	case score >= 2:
		return Moderate
	case score >= 1:
		return Good
	default:
		return Excellent
	}
}
