package worktree

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SQLiteStore implements Store using SQLite, grounded on the same
// schema-init-on-construct and Rebind-for-placeholders idiom used by the
// session store.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore wraps an existing sqlx.DB connection, creating the
// worktrees table if it does not already exist.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize worktree schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS worktrees (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		task_id TEXT NOT NULL DEFAULT '',
		repository_id TEXT NOT NULL DEFAULT '',
		repository_path TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		base_branch TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP,
		UNIQUE(session_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_worktrees_session_id ON worktrees(session_id);
	CREATE INDEX IF NOT EXISTS idx_worktrees_task_id ON worktrees(task_id);
	CREATE INDEX IF NOT EXISTS idx_worktrees_status ON worktrees(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateWorktree(ctx context.Context, wt *Worktree) error {
	if wt.ID == "" {
		wt.ID = uuid.New().String()
	}
	if wt.SessionID == "" {
		return fmt.Errorf("session ID is required to persist worktree")
	}
	if wt.Status == "" {
		wt.Status = StatusActive
	}
	now := time.Now().UTC()
	if wt.CreatedAt.IsZero() {
		wt.CreatedAt = now
	}
	if wt.UpdatedAt.IsZero() {
		wt.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO worktrees (
			id, session_id, task_id, repository_id, repository_path,
			path, branch, base_branch, status, created_at, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, id) DO UPDATE SET
			repository_id = excluded.repository_id,
			repository_path = excluded.repository_path,
			path = excluded.path,
			branch = excluded.branch,
			base_branch = excluded.base_branch,
			status = excluded.status,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`), wt.ID, wt.SessionID, wt.TaskID, wt.RepositoryID, wt.RepositoryPath,
		wt.Path, wt.Branch, wt.BaseBranch, string(wt.Status), wt.CreatedAt, wt.UpdatedAt, wt.DeletedAt)

	return err
}

const selectWorktreeColumns = `
	id, session_id, task_id, repository_id, repository_path,
	path, branch, base_branch, status, created_at, updated_at, deleted_at
`

func scanWorktreeRow(row *sql.Row) (*Worktree, error) {
	wt := &Worktree{}
	var deletedAt sql.NullTime
	var status string

	err := row.Scan(
		&wt.ID, &wt.SessionID, &wt.TaskID, &wt.RepositoryID, &wt.RepositoryPath,
		&wt.Path, &wt.Branch, &wt.BaseBranch, &status, &wt.CreatedAt, &wt.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	wt.Status = Status(status)
	if deletedAt.Valid {
		wt.DeletedAt = &deletedAt.Time
	}
	return wt, nil
}

func (s *SQLiteStore) GetWorktreeByID(ctx context.Context, id string) (*Worktree, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT `+selectWorktreeColumns+` FROM worktrees WHERE id = ?`), id)
	return scanWorktreeRow(row)
}

func (s *SQLiteStore) GetWorktreeBySessionID(ctx context.Context, sessionID string) (*Worktree, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT `+selectWorktreeColumns+` FROM worktrees WHERE session_id = ? AND status = ?`),
		sessionID, string(StatusActive))
	return scanWorktreeRow(row)
}

func (s *SQLiteStore) GetWorktreesByTaskID(ctx context.Context, taskID string) ([]*Worktree, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT `+selectWorktreeColumns+` FROM worktrees WHERE task_id = ? ORDER BY created_at DESC`), taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return s.scanWorktrees(rows)
}

func (s *SQLiteStore) UpdateWorktree(ctx context.Context, wt *Worktree) error {
	wt.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE worktrees SET
			repository_id = ?, repository_path = ?, path = ?, branch = ?,
			base_branch = ?, status = ?, updated_at = ?, deleted_at = ?
		WHERE id = ? AND session_id = ?
	`), wt.RepositoryID, wt.RepositoryPath, wt.Path, wt.Branch, wt.BaseBranch,
		string(wt.Status), wt.UpdatedAt, wt.DeletedAt, wt.ID, wt.SessionID)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("worktree not found: %s", wt.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteWorktree(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM worktrees WHERE id = ?`), id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("worktree not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) ListActiveWorktrees(ctx context.Context) ([]*Worktree, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT `+selectWorktreeColumns+` FROM worktrees WHERE status = ?`), string(StatusActive))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return s.scanWorktrees(rows)
}

func (s *SQLiteStore) scanWorktrees(rows *sql.Rows) ([]*Worktree, error) {
	var result []*Worktree
	for rows.Next() {
		wt := &Worktree{}
		var deletedAt sql.NullTime
		var status string

		err := rows.Scan(
			&wt.ID, &wt.SessionID, &wt.TaskID, &wt.RepositoryID, &wt.RepositoryPath,
			&wt.Path, &wt.Branch, &wt.BaseBranch, &status, &wt.CreatedAt, &wt.UpdatedAt, &deletedAt,
		)
		if err != nil {
			return nil, err
		}
		wt.Status = Status(status)
		if deletedAt.Valid {
			wt.DeletedAt = &deletedAt.Time
		}
		result = append(result, wt)
	}
	return result, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
