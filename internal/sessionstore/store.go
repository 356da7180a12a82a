package sessionstore

import (
	"context"
	"time"
)

// Store is the durable persistence interface for Session and LogEntry
// records. All operations are single-statement; no multi-row transactions
// are needed per spec.md §4.4.
type Store interface {
	// InsertSession persists a new session record. Returns ErrDuplicate if
	// the id already exists.
	InsertSession(ctx context.Context, s *Session) error

	// UpdateSessionStatus applies a status transition and, for terminal
	// statuses, the finished_at timestamp and exit code (nil when not
	// applicable, e.g. a spawn failure that never produced a child exit).
	// The status is written as given; neither implementation rejects a
	// backward transition.
	UpdateSessionStatus(ctx context.Context, id string, status Status, finishedAt *time.Time, exitCode *int) error

	// GetSession returns a session by id, or ErrNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessionsByTask returns every session for a task, ordered by
	// created_at descending.
	ListSessionsByTask(ctx context.Context, taskID string) ([]*Session, error)

	// InsertLogEntry appends a durable log row; the timestamp is assigned
	// at the call site (now, UTC).
	InsertLogEntry(ctx context.Context, sessionID string, logType LogType, content string) error

	// ListLogs returns every log entry for a session ordered by timestamp
	// ascending.
	ListLogs(ctx context.Context, sessionID string) ([]*LogEntry, error)
}
