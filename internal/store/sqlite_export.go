package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mathspractice/adaptive/internal/domain/performance"
	"github.com/mathspractice/adaptive/internal/domain/student"
)

// ============================================================================
// Export / import
// ============================================================================

// Export collects everything stored for one student, or for every student
// when studentID is empty.
func (s *SQLiteStore) Export(ctx context.Context, studentID string) (*ExportData, error) {
	var students []*student.Student
	if studentID != "" {
		st, err := s.GetStudent(ctx, studentID)
		if err != nil {
			return nil, err
		}
		students = []*student.Student{st}
	} else {
		all, err := s.ListStudents(ctx)
		if err != nil {
			return nil, err
		}
		students = all
	}

	data := &ExportData{
		Version:       DataVersion,
		ExportedAt:    time.Now().UTC(),
		Students:      students,
		Sessions:      []SessionRecord{},
		Interventions: []InterventionLog{},
		Progress:      []student.ModuleProgress{},
	}
	for _, st := range students {
		sessions, err := s.ListSessions(ctx, SessionFilter{StudentID: st.ID})
		if err != nil {
			return nil, err
		}
		data.Sessions = append(data.Sessions, sessions...)

		logs, err := s.queryInterventions(ctx, "student_id = ?", st.ID)
		if err != nil {
			return nil, err
		}
		data.Interventions = append(data.Interventions, logs...)

		progress, err := s.listProgress(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		data.Progress = append(data.Progress, progress...)
	}
	return data, nil
}

// Import writes exported data in one transaction, replacing rows with the
// same keys. Data from another version is rejected untouched.
func (s *SQLiteStore) Import(ctx context.Context, data *ExportData) (ImportResult, error) {
	if data == nil || data.Version != DataVersion {
		version := ""
		if data != nil {
			version = data.Version
		}
		return ImportResult{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportResult{}, err
	}
	defer tx.Rollback()

	var res ImportResult
	for _, st := range data.Students {
		if st == nil || st.ID == "" {
			continue
		}
		prefs := st.Preferences
		if prefs.Validate() != nil {
			prefs = student.DefaultPreferences()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO students (id, name, year_group, created_at, last_active, default_level, default_question_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			st.ID, st.Name, st.YearGroup, toMillis(st.CreatedAt), toMillis(st.LastActive),
			prefs.DefaultLevel, prefs.DefaultQuestionCount,
		)
		if err != nil {
			return ImportResult{}, fmt.Errorf("import student %s: %w", st.ID, err)
		}
		res.Students++
	}

	for _, rec := range data.Sessions {
		if rec.SessionID == "" || !performance.ValidLevel(rec.StartLevel) || !performance.ValidLevel(rec.FinalLevel) {
			continue
		}
		status := rec.Status
		if status != StatusCompleted {
			status = StatusInProgress
		}
		var completedAt any
		if status == StatusCompleted {
			completedAt = toMillis(rec.CompletedAt)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO sessions (`+sessionColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.SessionID, rec.StudentID, rec.ModuleID, status, rec.StartLevel, rec.FinalLevel,
			toMillis(rec.StartedAt), completedAt, rec.FinalScore.Correct, rec.FinalScore.Total,
			rec.FinalScore.Percentage, rec.BestStreak, rec.AverageResponseTimeMs, rec.DurationMs,
			rec.CompletedEarly, rec.AcceptedInterventions,
		)
		if err != nil {
			return ImportResult{}, fmt.Errorf("import session %s: %w", rec.SessionID, err)
		}
		res.Sessions++
	}

	for _, l := range data.Interventions {
		if !validIntervention(l) {
			continue
		}
		if err := saveIntervention(ctx, tx, l); err != nil {
			return ImportResult{}, fmt.Errorf("import intervention %s: %w", l.ID, err)
		}
		res.Interventions++
	}

	for _, p := range data.Progress {
		for level, lp := range p.Levels {
			if !performance.ValidLevel(level) {
				continue
			}
			_, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO module_progress (student_id, module_id, level, correct, attempted)
				 VALUES (?, ?, ?, ?, ?)`,
				p.StudentID, p.ModuleID, level, lp.Correct, lp.Attempted,
			)
			if err != nil {
				return ImportResult{}, fmt.Errorf("import progress %s/%s: %w", p.StudentID, p.ModuleID, err)
			}
		}
		res.Progress++
	}

	if err := tx.Commit(); err != nil {
		return ImportResult{}, err
	}
	return res, nil
}

func validIntervention(l InterventionLog) bool {
	_, kindErr := l.Kind.MarshalText()
	_, bandErr := l.Band.MarshalText()
	return kindErr == nil && bandErr == nil && l.ID != "" && l.SessionID != ""
}
