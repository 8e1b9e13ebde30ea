package adaptive

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("invalid adaptive config")

// ConfigError reports which setting broke a configuration invariant.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid adaptive config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Weights are the factor weights of the confidence score. They must sum to 100.
type Weights struct {
	Accuracy     int `json:"accuracy"`
	ResponseTime int `json:"response_time"`
	Hints        int `json:"hints"`
	Consistency  int `json:"consistency"`
	Streak       int `json:"streak"`
}

// Sum returns the total weight.
func (w Weights) Sum() int {
	return w.Accuracy + w.ResponseTime + w.Hints + w.Consistency + w.Streak
}

func (w Weights) of(f Factor) int {
	switch f {
	case FactorAccuracy:
		return w.Accuracy
	case FactorResponseTime:
		return w.ResponseTime
	case FactorHints:
		return w.Hints
	case FactorConsistency:
		return w.Consistency
	case FactorStreak:
		return w.Streak
	}
	return 0
}

// BandThresholds holds the lower bound of every band above Critical.
// Critical covers [0, Struggling); Excelling covers [Excelling, 100].
type BandThresholds struct {
	Struggling  int `json:"struggling"`
	Challenging int `json:"challenging"`
	Optimal     int `json:"optimal"`
	Excelling   int `json:"excelling"`
}

// Config is the engine configuration. It is immutable once an Engine is
// built; only Enabled can be toggled at runtime through SetEnabled.
type Config struct {
	Enabled                  bool           `json:"enabled"`
	CheckpointInterval       int            `json:"checkpoint_interval"`
	MaxAcceptedInterventions int            `json:"max_accepted_interventions"`
	Weights                  Weights        `json:"weights"`
	Bands                    BandThresholds `json:"bands"`

	// HintsScore stands in for the hints factor until hint usage is
	// tracked upstream.
	HintsScore int `json:"hints_score"`
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:                  true,
		CheckpointInterval:       5,
		MaxAcceptedInterventions: 4,
		Weights: Weights{
			Accuracy:     35,
			ResponseTime: 15,
			Hints:        20,
			Consistency:  15,
			Streak:       15,
		},
		Bands: BandThresholds{
			Struggling:  30,
			Challenging: 40,
			Optimal:     65,
			Excelling:   80,
		},
		HintsScore: 100,
	}
}

// Validate checks every invariant the scoring relies on.
func (c Config) Validate() error {
	if c.CheckpointInterval < 1 {
		return &ConfigError{Field: "checkpoint_interval", Reason: "must be at least 1"}
	}
	if c.MaxAcceptedInterventions < 0 {
		return &ConfigError{Field: "max_accepted_interventions", Reason: "must not be negative"}
	}
	for _, f := range Factors() {
		if c.Weights.of(f) < 0 {
			return &ConfigError{Field: "weights." + f.String(), Reason: "must not be negative"}
		}
	}
	if sum := c.Weights.Sum(); sum != 100 {
		return &ConfigError{Field: "weights", Reason: fmt.Sprintf("must sum to 100, got %d", sum)}
	}
	b := c.Bands
	if !(0 < b.Struggling && b.Struggling < b.Challenging && b.Challenging < b.Optimal &&
		b.Optimal < b.Excelling && b.Excelling <= 100) {
		return &ConfigError{
			Field:  "bands",
			Reason: fmt.Sprintf("thresholds must increase strictly within (0,100], got %d/%d/%d/%d", b.Struggling, b.Challenging, b.Optimal, b.Excelling),
		}
	}
	if c.HintsScore < 0 || c.HintsScore > 100 {
		return &ConfigError{Field: "hints_score", Reason: "must be within [0,100]"}
	}
	return nil
}
