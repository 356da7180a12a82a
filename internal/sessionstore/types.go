// Package sessionstore is the Session Store component (C4): durable
// persistence of Session records and LogEntry rows, keyed by id and queried
// by task id. Two backends implement the same Store interface, grounded on
// the worktree package's SQLiteStore (schema-init-on-construct, Rebind,
// UTC timestamps) and a mutex-protected in-memory map for unit tests.
package sessionstore

import "time"

// Status is a Session's lifecycle state. Transitions only move forward:
// Starting -> Running -> {Completed | Failed | Killed}.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusKilled    Status = "killed"
)

// Terminal reports whether status is one of the absorbing states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusKilled:
		return true
	default:
		return false
	}
}

// Session is one execution attempt of an agent for a task.
type Session struct {
	ID           string
	TaskID       string
	WorktreePath string
	BranchName   string
	ExecutorType string
	Status       Status
	ExitCode     *int
	CreatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// LogType discriminates a LogEntry's stream.
type LogType string

const (
	LogTypeStdout LogType = "stdout"
	LogTypeStderr LogType = "stderr"
	LogTypeEvent  LogType = "event"
)

// LogEntry is one durably recorded line of output.
type LogEntry struct {
	ID        string
	SessionID string
	Timestamp time.Time
	LogType   LogType
	Content   string
}
