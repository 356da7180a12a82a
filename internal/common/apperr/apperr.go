// Package apperr provides the error taxonomy shared by every supervisor
// component. Each error kind is a distinct code so callers can branch on
// errors.As without string-matching messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes, one per failure kind named in the supervisor's error taxonomy.
const (
	CodeWorktreeCreationFailed = "WORKTREE_CREATION_FAILED"
	CodeSpawnFailed            = "SPAWN_FAILED"
	CodeExecutorStartupTimeout = "EXECUTOR_STARTUP_TIMEOUT"
	CodeSessionNotFound        = "SESSION_NOT_FOUND"
	CodeSessionStillRunning    = "SESSION_STILL_RUNNING"
	CodeSessionNotRunning      = "SESSION_NOT_RUNNING"
	CodePersistFailed          = "PERSIST_FAILED"
	CodeCleanupFailed          = "CLEANUP_FAILED"
	CodeInternal               = "INTERNAL_ERROR"
)

// SupervisorError carries a stable code alongside the human-readable message
// and, when applicable, the underlying cause.
type SupervisorError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *SupervisorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SupervisorError) Unwrap() error {
	return e.Err
}

func WorktreeCreationFailed(sessionID string, err error) *SupervisorError {
	return &SupervisorError{
		Code:       CodeWorktreeCreationFailed,
		Message:    fmt.Sprintf("failed to create worktree for session %q", sessionID),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func SpawnFailed(sessionID string, err error) *SupervisorError {
	return &SupervisorError{
		Code:       CodeSpawnFailed,
		Message:    fmt.Sprintf("failed to spawn executor for session %q", sessionID),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func ExecutorStartupTimeout(sessionID string, waited string) *SupervisorError {
	return &SupervisorError{
		Code:       CodeExecutorStartupTimeout,
		Message:    fmt.Sprintf("executor for session %q did not signal readiness within %s", sessionID, waited),
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

func SessionNotFound(sessionID string) *SupervisorError {
	return &SupervisorError{
		Code:       CodeSessionNotFound,
		Message:    fmt.Sprintf("session %q not found", sessionID),
		HTTPStatus: http.StatusNotFound,
	}
}

func SessionStillRunning(sessionID string) *SupervisorError {
	return &SupervisorError{
		Code:       CodeSessionStillRunning,
		Message:    fmt.Sprintf("session %q is still running", sessionID),
		HTTPStatus: http.StatusConflict,
	}
}

func SessionNotRunning(sessionID string) *SupervisorError {
	return &SupervisorError{
		Code:       CodeSessionNotRunning,
		Message:    fmt.Sprintf("session %q is not running", sessionID),
		HTTPStatus: http.StatusConflict,
	}
}

func PersistFailed(operation string, err error) *SupervisorError {
	return &SupervisorError{
		Code:       CodePersistFailed,
		Message:    fmt.Sprintf("failed to persist %s", operation),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func CleanupFailed(sessionID string, err error) *SupervisorError {
	return &SupervisorError{
		Code:       CodeCleanupFailed,
		Message:    fmt.Sprintf("cleanup failed for session %q", sessionID),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Wrap wraps err as an internal SupervisorError, preserving the code and
// status of an already-classified error.
func Wrap(err error, message string) *SupervisorError {
	if err == nil {
		return nil
	}

	var se *SupervisorError
	if errors.As(err, &se) {
		return &SupervisorError{
			Code:       se.Code,
			Message:    fmt.Sprintf("%s: %s", message, se.Message),
			HTTPStatus: se.HTTPStatus,
			Err:        err,
		}
	}

	return &SupervisorError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Code extracts the stable code from err, or "" if err is not a SupervisorError.
func Code(err error) string {
	var se *SupervisorError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Is reports whether err is a SupervisorError with the given code.
func Is(err error, code string) bool {
	return Code(err) == code
}
