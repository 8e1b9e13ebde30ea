package adaptive

import (
	"encoding/json"
	"math"

	"github.com/mathspractice/adaptive/internal/domain/performance"
)

// FactorScore is one entry of the confidence breakdown.
type FactorScore struct {
	Score  int `json:"score"`
	Weight int `json:"weight"`
}

// Confidence is a snapshot of how comfortably the learner is performing.
// It is unavailable (null score and band) until enough answers exist.
type Confidence struct {
	Score     int
	Band      Band
	Breakdown map[Factor]FactorScore
	Message   string
}

// Available reports whether a score was computed.
func (c Confidence) Available() bool {
	return c.Band != BandNone
}

func (c Confidence) MarshalJSON() ([]byte, error) {
	type wire struct {
		Score     *int                   `json:"score"`
		Band      *Band                  `json:"band"`
		Breakdown map[Factor]FactorScore `json:"breakdown"`
		Message   string                 `json:"message,omitempty"`
	}
	w := wire{Message: c.Message}
	if c.Available() {
		score, band := c.Score, c.Band
		w.Score = &score
		w.Band = &band
		w.Breakdown = c.Breakdown
	}
	return json.Marshal(w)
}

// Classify maps a score in [0,100] to exactly one band.
func (t BandThresholds) Classify(score int) Band {
	switch {
	case score < t.Struggling:
		return BandCritical
	case score < t.Challenging:
		return BandStruggling
	case score < t.Optimal:
		return BandChallenging
	case score < t.Excelling:
		return BandOptimal
	default:
		return BandExcelling
	}
}

var bandMessages = map[Band]string{
	BandCritical:    "These questions are very tricky. Let's try something easier!",
	BandStruggling:  "These questions are tough. Would you like to try an easier level?",
	BandChallenging: "You're working hard! Keep going!",
	BandOptimal:     "Great job! You're learning well at this level!",
	BandExcelling:   "You're doing brilliantly! Ready for a bigger challenge?",
}

// ComputeConfidence combines the five factor scores into a weighted
// composite. Each factor is within [0,100] and the weights sum to 100,
// so the composite is too.
func (e *Engine) ComputeConfidence(m performance.SessionMetrics) Confidence {
	if !m.HasEnoughData() {
		return Confidence{Message: "Not enough questions answered yet"}
	}

	scores := map[Factor]int{
		FactorAccuracy:     m.RollingAccuracy,
		FactorResponseTime: responseTimeScore(m.RollingAverageResponseTimeMs, m.ExpectedResponseTimeMs),
		FactorHints:        e.cfg.HintsScore,
		FactorConsistency:  consistencyScore(m.StreakBreaks, m.TotalQuestions),
		FactorStreak:       streakScore(m.CurrentStreak, m.ConsecutiveErrors),
	}

	breakdown := make(map[Factor]FactorScore, len(scores))
	weighted := 0
	for _, f := range Factors() {
		w := e.cfg.Weights.of(f)
		breakdown[f] = FactorScore{Score: scores[f], Weight: w}
		weighted += scores[f] * w
	}

	score := int(math.Round(float64(weighted) / 100))
	band := e.cfg.Bands.Classify(score)
	return Confidence{
		Score:     score,
		Band:      band,
		Breakdown: breakdown,
		Message:   bandMessages[band],
	}
}

func responseTimeScore(avgMs, expectedMs int) int {
	if avgMs <= 0 || expectedMs <= 0 {
		return 50
	}
	r := float64(avgMs) / float64(expectedMs)
	switch {
	case r < 0.7:
		return 90
	case r < 1.0:
		return 75
	case r < 1.5:
		return 50
	case r < 2.0:
		return 30
	default:
		return 15
	}
}

func consistencyScore(streakBreaks, total int) int {
	rate := 0.0
	if total > 0 {
		rate = float64(streakBreaks) / float64(total)
	}
	switch {
	case rate == 0:
		return 100
	case rate < 0.2:
		return 80
	case rate < 0.4:
		return 60
	case rate < 0.6:
		return 40
	default:
		return 20
	}
}

func streakScore(streak, consecutiveErrors int) int {
	switch {
	case streak >= 5:
		return 100
	case streak >= 3:
		return 85
	case streak >= 2:
		return 70
	case streak == 1:
		return 55
	case consecutiveErrors >= 3:
		return 15
	case consecutiveErrors >= 2:
		return 30
	default:
		return 50
	}
}
