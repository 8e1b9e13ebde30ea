package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	practicesession "github.com/mathspractice/adaptive/internal/domain/practice_session"
	"github.com/mathspractice/adaptive/internal/domain/recommend"
	"github.com/mathspractice/adaptive/internal/domain/student"
)

// ============================================================================
// Sessions
// ============================================================================

// StartSession records a session that has begun but not completed.
func (s *SQLiteStore) StartSession(ctx context.Context, rec practicesession.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, student_id, module_id, status, start_level, final_level, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.StudentID, rec.ModuleID, StatusInProgress,
		rec.StartLevel, rec.StartLevel, toMillis(rec.StartedAt),
	)
	return err
}

// CompleteSession stores the final summary of a started session.
func (s *SQLiteStore) CompleteSession(ctx context.Context, rec practicesession.Record) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, final_level = ?, completed_at = ?, correct = ?, total = ?,
		     percentage = ?, best_streak = ?, avg_response_ms = ?, duration_ms = ?,
		     completed_early = ?, accepted_interventions = ?
		 WHERE id = ?`,
		StatusCompleted, rec.FinalLevel, toMillis(rec.CompletedAt),
		rec.FinalScore.Correct, rec.FinalScore.Total, rec.FinalScore.Percentage,
		rec.BestStreak, rec.AverageResponseTimeMs, rec.DurationMs,
		rec.CompletedEarly, rec.AcceptedInterventions, rec.SessionID,
	)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

const sessionColumns = `id, student_id, module_id, status, start_level, final_level, started_at,
	completed_at, correct, total, percentage, best_streak, avg_response_ms, duration_ms,
	completed_early, accepted_interventions`

func scanSession(row scanner) (SessionRecord, error) {
	var (
		rec         SessionRecord
		status      string
		startedAt   int64
		completedAt sql.NullInt64
	)
	err := row.Scan(&rec.SessionID, &rec.StudentID, &rec.ModuleID, &status,
		&rec.StartLevel, &rec.FinalLevel, &startedAt, &completedAt,
		&rec.FinalScore.Correct, &rec.FinalScore.Total, &rec.FinalScore.Percentage,
		&rec.BestStreak, &rec.AverageResponseTimeMs, &rec.DurationMs,
		&rec.CompletedEarly, &rec.AcceptedInterventions)
	if err != nil {
		return SessionRecord{}, err
	}
	rec.Status = SessionStatus(status)
	rec.StartedAt = fromMillis(startedAt)
	if completedAt.Valid {
		rec.CompletedAt = fromMillis(completedAt.Int64)
	}
	return rec, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListSessions returns matching sessions, most recent first.
func (s *SQLiteStore) ListSessions(ctx context.Context, f SessionFilter) ([]SessionRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.StudentID != "" {
		where = append(where, "student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.ModuleID != "" {
		where = append(where, "module_id = ?")
		args = append(args, f.ModuleID)
	}
	if f.Level > 0 {
		where = append(where, "final_level = ?")
		args = append(args, f.Level)
	}
	if f.CompletedOnly {
		where = append(where, "status = ?")
		args = append(args, StatusCompleted)
	}

	query := "SELECT " + sessionColumns + " FROM sessions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY COALESCE(completed_at, started_at) DESC, started_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []SessionRecord{}
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CompletedSummaries returns the recommender's view of the most recent
// completed sessions at one level.
func (s *SQLiteStore) CompletedSummaries(ctx context.Context, studentID, moduleID string, level, limit int) ([]recommend.SessionSummary, error) {
	records, err := s.ListSessions(ctx, SessionFilter{
		StudentID:     studentID,
		ModuleID:      moduleID,
		Level:         level,
		CompletedOnly: true,
		Limit:         limit,
	})
	if err != nil {
		return nil, err
	}
	summaries := make([]recommend.SessionSummary, len(records))
	for i, rec := range records {
		summaries[i] = rec.Summary()
	}
	return summaries, nil
}

// DeleteSessionsCompletedBefore removes completed sessions older than the
// cutoff together with their intervention logs. Sessions still in
// progress are kept.
func (s *SQLiteStore) DeleteSessionsCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	ms := toMillis(cutoff)
	_, err = tx.ExecContext(ctx, `
		DELETE FROM interventions
		WHERE session_id IN (
			SELECT id FROM sessions WHERE status = ? AND completed_at < ?
		)
	`, StatusCompleted, ms)
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE status = ? AND completed_at < ?", StatusCompleted, ms)
	if err != nil {
		return 0, err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return deleted, tx.Commit()
}

// ============================================================================
// Interventions
// ============================================================================

func (s *SQLiteStore) SaveIntervention(ctx context.Context, l InterventionLog) error {
	return saveIntervention(ctx, s.db, l)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveIntervention(ctx context.Context, db execer, l InterventionLog) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO interventions (id, session_id, student_id, module_id, kind,
		     triggered_at_question, from_level, to_level, confidence_score, band, accepted,
		     created_at, responded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.SessionID, l.StudentID, l.ModuleID, l.Kind.String(),
		l.TriggeredAtQuestion, l.FromLevel, l.ToLevel, l.ConfidenceScore, l.Band.String(),
		l.Accepted, toMillis(l.CreatedAt), toMillis(l.RespondedAt),
	)
	return err
}

const interventionColumns = `id, session_id, student_id, module_id, kind, triggered_at_question,
	from_level, to_level, confidence_score, band, accepted, created_at, responded_at`

func scanIntervention(row scanner) (InterventionLog, error) {
	var (
		l                      InterventionLog
		kind, band             string
		toLevel                sql.NullInt64
		createdAt, respondedAt int64
	)
	err := row.Scan(&l.ID, &l.SessionID, &l.StudentID, &l.ModuleID, &kind, &l.TriggeredAtQuestion,
		&l.FromLevel, &toLevel, &l.ConfidenceScore, &band, &l.Accepted, &createdAt, &respondedAt)
	if err != nil {
		return InterventionLog{}, err
	}
	if err := l.Kind.UnmarshalText([]byte(kind)); err != nil {
		return InterventionLog{}, err
	}
	if err := l.Band.UnmarshalText([]byte(band)); err != nil {
		return InterventionLog{}, err
	}
	if toLevel.Valid {
		lvl := int(toLevel.Int64)
		l.ToLevel = &lvl
	}
	l.CreatedAt = fromMillis(createdAt)
	l.RespondedAt = fromMillis(respondedAt)
	return l, nil
}

// ListInterventions returns a session's decisions in the order they were made.
func (s *SQLiteStore) ListInterventions(ctx context.Context, sessionID string) ([]InterventionLog, error) {
	return s.queryInterventions(ctx, "session_id = ?", sessionID)
}

func (s *SQLiteStore) queryInterventions(ctx context.Context, where string, arg any) ([]InterventionLog, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+interventionColumns+" FROM interventions WHERE "+where+" ORDER BY responded_at, triggered_at_question",
		arg,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []InterventionLog{}
	for rows.Next() {
		l, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ============================================================================
// Module progress
// ============================================================================

// AddModuleProgress counts one answer toward the student's module progress.
func (s *SQLiteStore) AddModuleProgress(ctx context.Context, studentID, moduleID string, level int, correct bool) error {
	inc := 0
	if correct {
		inc = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO module_progress (student_id, module_id, level, correct, attempted)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (student_id, module_id, level)
		DO UPDATE SET correct = correct + excluded.correct, attempted = attempted + 1
	`, studentID, moduleID, level, inc)
	return err
}

func (s *SQLiteStore) GetModuleProgress(ctx context.Context, studentID, moduleID string) (student.ModuleProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT level, correct, attempted FROM module_progress WHERE student_id = ? AND module_id = ?",
		studentID, moduleID,
	)
	if err != nil {
		return student.ModuleProgress{}, err
	}
	defer rows.Close()

	p := student.NewModuleProgress(studentID, moduleID)
	for rows.Next() {
		var (
			level int
			lp    student.LevelProgress
		)
		if err := rows.Scan(&level, &lp.Correct, &lp.Attempted); err != nil {
			return student.ModuleProgress{}, err
		}
		p.Levels[level] = lp
	}
	return p, rows.Err()
}

func (s *SQLiteStore) listProgress(ctx context.Context, studentID string) ([]student.ModuleProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT student_id, module_id, level, correct, attempted FROM module_progress WHERE student_id = ? ORDER BY module_id, level",
		studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out   []student.ModuleProgress
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			sid, mid string
			level    int
			lp       student.LevelProgress
		)
		if err := rows.Scan(&sid, &mid, &level, &lp.Correct, &lp.Attempted); err != nil {
			return nil, err
		}
		i, ok := index[mid]
		if !ok {
			i = len(out)
			index[mid] = i
			out = append(out, student.NewModuleProgress(sid, mid))
		}
		out[i].Levels[level] = lp
	}
	return out, rows.Err()
}
