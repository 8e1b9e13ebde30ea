package student

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mathspractice/adaptive/internal/domain/performance"
	"github.com/mathspractice/adaptive/internal/domain/recommend"
	"github.com/mathspractice/adaptive/internal/id"
)

const (
	DefaultQuestionCount = 5
	MaxQuestionCount     = 100
)

var ErrInvalidPreferences = errors.New("invalid preferences")

type Preferences struct {
	DefaultLevel         int `json:"default_level"`
	DefaultQuestionCount int `json:"default_question_count"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		DefaultLevel:         recommend.DefaultLevel,
		DefaultQuestionCount: DefaultQuestionCount,
	}
}

func (p Preferences) Validate() error {
	if !performance.ValidLevel(p.DefaultLevel) {
		return fmt.Errorf("%w: default_level must be between %d and %d", ErrInvalidPreferences, performance.MinLevel, performance.MaxLevel)
	}
	if p.DefaultQuestionCount < 1 || p.DefaultQuestionCount > MaxQuestionCount {
		return fmt.Errorf("%w: default_question_count must be between 1 and %d", ErrInvalidPreferences, MaxQuestionCount)
	}
	return nil
}

type Student struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	YearGroup   string      `json:"year_group,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	LastActive  time.Time   `json:"last_active"`
	Preferences Preferences `json:"preferences"`
}

func New(name, yearGroup string) *Student {
	now := time.Now().UTC()
	return &Student{
		ID:          id.New(),
		Name:        strings.TrimSpace(name),
		YearGroup:   strings.TrimSpace(yearGroup),
		CreatedAt:   now,
		LastActive:  now,
		Preferences: DefaultPreferences(),
	}
}

// Touch marks the student as active now.
func (s *Student) Touch() {
	s.LastActive = time.Now().UTC()
}
