// internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mathspractice/adaptive/internal/domain/student"
)

const schema = `
CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    year_group TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    last_active INTEGER NOT NULL,
    default_level INTEGER NOT NULL DEFAULT 3,
    default_question_count INTEGER NOT NULL DEFAULT 5
);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL,
    module_id TEXT NOT NULL,
    status TEXT NOT NULL,
    start_level INTEGER NOT NULL,
    final_level INTEGER NOT NULL,
    started_at INTEGER NOT NULL,
    completed_at INTEGER,
    correct INTEGER NOT NULL DEFAULT 0,
    total INTEGER NOT NULL DEFAULT 0,
    percentage INTEGER NOT NULL DEFAULT 0,
    best_streak INTEGER NOT NULL DEFAULT 0,
    avg_response_ms INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    completed_early BOOLEAN NOT NULL DEFAULT FALSE,
    accepted_interventions INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (student_id) REFERENCES students(id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_history
    ON sessions (student_id, module_id, final_level, completed_at);

CREATE TABLE IF NOT EXISTS interventions (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    student_id TEXT NOT NULL,
    module_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    triggered_at_question INTEGER NOT NULL,
    from_level INTEGER NOT NULL,
    to_level INTEGER,
    confidence_score INTEGER NOT NULL,
    band TEXT NOT NULL,
    accepted BOOLEAN NOT NULL,
    created_at INTEGER NOT NULL,
    responded_at INTEGER NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(id)
);

CREATE TABLE IF NOT EXISTS module_progress (
    student_id TEXT NOT NULL,
    module_id TEXT NOT NULL,
    level INTEGER NOT NULL,
    correct INTEGER NOT NULL DEFAULT 0,
    attempted INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (student_id, module_id, level),
    FOREIGN KEY (student_id) REFERENCES students(id)
);
`

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate brings databases created by older builds up to the current schema.
func migrate(db *sql.DB) error {
	if err := addColumnIfNotExists(db, "sessions", "accepted_interventions", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	return addColumnIfNotExists(db, "students", "year_group", "TEXT NOT NULL DEFAULT ''")
}

func addColumnIfNotExists(db *sql.DB, table, column, definition string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ============================================================================
// Students
// ============================================================================

func (s *SQLiteStore) SaveStudent(ctx context.Context, st *student.Student) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO students (id, name, year_group, created_at, last_active, default_level, default_question_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, st.YearGroup, toMillis(st.CreatedAt), toMillis(st.LastActive),
		st.Preferences.DefaultLevel, st.Preferences.DefaultQuestionCount,
	)
	return err
}

const studentColumns = "id, name, year_group, created_at, last_active, default_level, default_question_count"

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (*student.Student, error) {
	var (
		st                    student.Student
		createdAt, lastActive int64
	)
	err := row.Scan(&st.ID, &st.Name, &st.YearGroup, &createdAt, &lastActive,
		&st.Preferences.DefaultLevel, &st.Preferences.DefaultQuestionCount)
	if err != nil {
		return nil, err
	}
	st.CreatedAt = fromMillis(createdAt)
	st.LastActive = fromMillis(lastActive)
	return &st, nil
}

func (s *SQLiteStore) GetStudent(ctx context.Context, id string) (*student.Student, error) {
	st, err := scanStudent(s.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ListStudents returns all students, most recently active first.
func (s *SQLiteStore) ListStudents(ctx context.Context) ([]*student.Student, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+studentColumns+" FROM students ORDER BY last_active DESC, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	students := []*student.Student{}
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (s *SQLiteStore) UpdatePreferences(ctx context.Context, id string, prefs student.Preferences) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE students SET default_level = ?, default_question_count = ? WHERE id = ?",
		prefs.DefaultLevel, prefs.DefaultQuestionCount, id,
	)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (s *SQLiteStore) TouchStudent(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, "UPDATE students SET last_active = ? WHERE id = ?", toMillis(at), id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// DeleteStudent removes the student and everything recorded for them.
func (s *SQLiteStore) DeleteStudent(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM interventions WHERE student_id = ?",
		"DELETE FROM module_progress WHERE student_id = ?",
		"DELETE FROM sessions WHERE student_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		return err
	}
	if err := expectAffected(result); err != nil {
		return err
	}

	return tx.Commit()
}

func expectAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
