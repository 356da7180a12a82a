package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SQLiteStore implements Store using SQLite, grounded on the worktree
// package's SQLiteStore: schema created lazily on construction, Rebind for
// driver-portable placeholders, UTC timestamps throughout.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore wraps an existing sqlx.DB connection, creating the
// sessions and log_entries tables if they do not already exist.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		worktree_path TEXT NOT NULL DEFAULT '',
		branch_name TEXT NOT NULL DEFAULT '',
		executor_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		exit_code INTEGER,
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_task_id ON sessions(task_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

	CREATE TABLE IF NOT EXISTS log_entries (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		log_type TEXT NOT NULL,
		content TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_log_entries_session_id ON log_entries(session_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) InsertSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO sessions (
			id, task_id, worktree_path, branch_name, executor_type,
			status, exit_code, created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), sess.ID, sess.TaskID, sess.WorktreePath, sess.BranchName, sess.ExecutorType,
		string(sess.Status), sess.ExitCode, sess.CreatedAt, sess.StartedAt, sess.FinishedAt)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, id string, status Status, finishedAt *time.Time, exitCode *int) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE sessions SET status = ?, finished_at = ?, exit_code = COALESCE(?, exit_code) WHERE id = ?`),
		string(status), finishedAt, exitCode, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const selectSessionColumns = `
	id, task_id, worktree_path, branch_name, executor_type,
	status, exit_code, created_at, started_at, finished_at
`

func scanSessionRow(row *sql.Row) (*Session, error) {
	sess := &Session{}
	var status string
	err := row.Scan(
		&sess.ID, &sess.TaskID, &sess.WorktreePath, &sess.BranchName, &sess.ExecutorType,
		&status, &sess.ExitCode, &sess.CreatedAt, &sess.StartedAt, &sess.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.Status = Status(status)
	return sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT `+selectSessionColumns+` FROM sessions WHERE id = ?`), id)
	return scanSessionRow(row)
}

func (s *SQLiteStore) ListSessionsByTask(ctx context.Context, taskID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT `+selectSessionColumns+` FROM sessions WHERE task_id = ? ORDER BY created_at DESC`), taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Session
	for rows.Next() {
		sess := &Session{}
		var status string
		if err := rows.Scan(
			&sess.ID, &sess.TaskID, &sess.WorktreePath, &sess.BranchName, &sess.ExecutorType,
			&status, &sess.ExitCode, &sess.CreatedAt, &sess.StartedAt, &sess.FinishedAt,
		); err != nil {
			return nil, err
		}
		sess.Status = Status(status)
		result = append(result, sess)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) InsertLogEntry(ctx context.Context, sessionID string, logType LogType, content string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO log_entries (id, session_id, timestamp, log_type, content)
		VALUES (?, ?, ?, ?, ?)
	`), uuid.New().String(), sessionID, time.Now().UTC(), string(logType), content)
	return err
}

func (s *SQLiteStore) ListLogs(ctx context.Context, sessionID string) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT id, session_id, timestamp, log_type, content FROM log_entries WHERE session_id = ? ORDER BY timestamp ASC`),
		sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*LogEntry
	for rows.Next() {
		e := &LogEntry{}
		var logType string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &logType, &e.Content); err != nil {
			return nil, err
		}
		e.LogType = LogType(logType)
		result = append(result, e)
	}
	return result, rows.Err()
}

// isUniqueConstraintErr reports whether err looks like a SQLite primary-key
// / unique-constraint violation, without importing the mattn/go-sqlite3
// error type directly (keeps this file driver-agnostic for the memstore
// parity tests).
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY must be unique")
}

var _ Store = (*SQLiteStore)(nil)
