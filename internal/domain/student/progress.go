package student

import "github.com/mathspractice/adaptive/internal/domain/performance"

// MasteryThreshold is the number of correct answers needed at every level
// before a module counts as complete.
const MasteryThreshold = 3

type LevelProgress struct {
	Correct   int `json:"correct"`
	Attempted int `json:"attempted"`
}

// ModuleProgress accumulates answers per level across all sessions.
type ModuleProgress struct {
	StudentID string                `json:"student_id"`
	ModuleID  string                `json:"module_id"`
	Levels    map[int]LevelProgress `json:"levels"`
}

func NewModuleProgress(studentID, moduleID string) ModuleProgress {
	return ModuleProgress{
		StudentID: studentID,
		ModuleID:  moduleID,
		Levels:    make(map[int]LevelProgress),
	}
}

// Complete reports whether every level has reached MasteryThreshold.
func (p ModuleProgress) Complete() bool {
	for level := performance.MinLevel; level <= performance.MaxLevel; level++ {
		if p.Levels[level].Correct < MasteryThreshold {
			return false
		}
	}
	return true
}

// HighestMastered returns the highest level at MasteryThreshold, or 0.
func (p ModuleProgress) HighestMastered() int {
	for level := performance.MaxLevel; level >= performance.MinLevel; level-- {
		if p.Levels[level].Correct >= MasteryThreshold {
			return level
		}
	}
	return 0
}
