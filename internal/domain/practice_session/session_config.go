package practicesession

import (
	"errors"
	"time"
)

var ErrInvalidConfig = errors.New("invalid session config")

// SessionConfig holds optional constraints for a practice session.
type SessionConfig struct {
	MaxQuestions *int           // nil = unlimited
	MaxDuration  *time.Duration // nil = no time limit
}

// DefaultConfig returns a config with no constraints.
func DefaultConfig() SessionConfig {
	return SessionConfig{
		MaxQuestions: nil,
		MaxDuration:  nil,
	}
}

// WithMaxQuestions returns a config limited to n questions. n <= 0 means
// unlimited.
func WithMaxQuestions(n int) SessionConfig {
	cfg := DefaultConfig()
	if n > 0 {
		cfg.MaxQuestions = &n
	}
	return cfg
}

func (c SessionConfig) Validate() error {
	if c.MaxQuestions != nil && *c.MaxQuestions < 1 {
		return errors.Join(ErrInvalidConfig, errors.New("max_questions must be positive"))
	}
	if c.MaxDuration != nil && *c.MaxDuration <= 0 {
		return errors.Join(ErrInvalidConfig, errors.New("max_duration must be positive"))
	}
	return nil
}

// reached reports whether the session has used up its question or time budget.
func (c SessionConfig) reached(answered int, elapsed time.Duration) bool {
	if c.MaxQuestions != nil && answered >= *c.MaxQuestions {
		return true
	}
	if c.MaxDuration != nil && elapsed >= *c.MaxDuration {
		return true
	}
	return false
}
