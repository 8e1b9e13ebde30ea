package student_test

import (
	"errors"
	"testing"

	"github.com/mathspractice/adaptive/internal/domain/student"
)

func TestNewStudent(t *testing.T) {
	s := student.New("  Ada ", "Year 4")

	if s.Name != "Ada" {
		t.Errorf("expected name %q, got %q", "Ada", s.Name)
	}
	if s.ID == "" {
		t.Error("expected non-empty ID")
	}
	if s.Preferences.DefaultLevel != 3 {
		t.Errorf("expected default level 3, got %d", s.Preferences.DefaultLevel)
	}
	if s.Preferences.DefaultQuestionCount != 5 {
		t.Errorf("expected default question count 5, got %d", s.Preferences.DefaultQuestionCount)
	}
	if !s.CreatedAt.Equal(s.LastActive) {
		t.Error("expected LastActive to start at CreatedAt")
	}
}

func TestTouch(t *testing.T) {
	s := student.New("Ada", "")
	before := s.LastActive
	s.Touch()
	if s.LastActive.Before(before) {
		t.Error("expected LastActive to move forward")
	}
}

func TestPreferences_Validate(t *testing.T) {
	tests := []struct {
		name  string
		prefs student.Preferences
		ok    bool
	}{
		{"defaults", student.DefaultPreferences(), true},
		{"level 1", student.Preferences{DefaultLevel: 1, DefaultQuestionCount: 10}, true},
		{"level 0", student.Preferences{DefaultLevel: 0, DefaultQuestionCount: 10}, false},
		{"level 5", student.Preferences{DefaultLevel: 5, DefaultQuestionCount: 10}, false},
		{"no questions", student.Preferences{DefaultLevel: 2, DefaultQuestionCount: 0}, false},
		{"too many questions", student.Preferences{DefaultLevel: 2, DefaultQuestionCount: 101}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.prefs.Validate()
			if tc.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, student.ErrInvalidPreferences) {
				t.Errorf("expected ErrInvalidPreferences, got %v", err)
			}
		})
	}
}

func TestModuleProgress_Complete(t *testing.T) {
	p := student.NewModuleProgress("s1", "C01")
	if p.Complete() || p.HighestMastered() != 0 {
		t.Fatal("expected empty progress to be incomplete")
	}

	for level := 1; level <= 4; level++ {
		p.Levels[level] = student.LevelProgress{Correct: 3, Attempted: 4}
		if level < 4 && p.Complete() {
			t.Errorf("expected incomplete with %d levels mastered", level)
		}
	}
	if !p.Complete() {
		t.Error("expected complete once every level has 3 correct")
	}
	if p.HighestMastered() != 4 {
		t.Errorf("expected 4, got %d", p.HighestMastered())
	}

	p.Levels[2] = student.LevelProgress{Correct: 2, Attempted: 9}
	if p.Complete() {
		t.Error("expected incomplete when one level is short")
	}
}
