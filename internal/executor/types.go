// Package executor is the Executor Adapter component (C3): a pluggable
// strategy that launches an agent as a child process (or a helper task
// driving a long-running daemon), exposing a uniform child+cancel+exit
// contract per spec.md §4.3. Two concrete adapters ship: cliexec (Direct-CLI
// shape) and daemonclient (Daemon-plus-client shape), registered by name in
// a Registry grounded on the teacher's executor_registry.go pattern.
package executor

import (
	"context"
	"io"
)

// ExecutionEnv carries the parameters create_session assembles for a spawn:
// the recognized configuration options named in spec.md §4.3.
type ExecutionEnv struct {
	// Model selects an agent model identifier passed through to the tool.
	Model string
	// AutoApprove requests non-interactive permission for the agent. Neither
	// adapter in this package reads it: cliexec always passes
	// --dangerously-skip-permissions, and daemonclient sends no permission
	// setting.
	AutoApprove bool
	// EnvVars are additional environment variables set in the child.
	EnvVars map[string]string
	// RepoPaths lists additional working directories for the agent. Neither
	// adapter in this package passes them to the child.
	RepoPaths []string
}

// ExitResult is delivered once on a SpawnedChild's ExitSignal when the
// adapter considers the session done.
type ExitResult struct {
	ExitCode int
	Err      error
}

// SpawnedChild is the uniform handle an Adapter returns from Spawn /
// SpawnFollowUp. The Supervisor never touches the underlying process
// directly — it only ever calls Kill, reads Stdout/Stderr, waits on
// ExitSignal, and sends on InterruptSender.
type SpawnedChild struct {
	// Stdout and Stderr are the streams the Supervisor's pump goroutines
	// read from. They are closed by the adapter once there is nothing more
	// to read.
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	// Kill forcefully terminates the underlying OS process. Idempotent.
	Kill func() error

	// ExitSignal fires exactly once when the adapter considers the session
	// done — the child exiting, or an internal helper task finishing for a
	// daemon-style adapter whose "logical completion" can differ from its
	// underlying child's exit.
	ExitSignal <-chan ExitResult

	// InterruptSender lets the Supervisor request cooperative cancellation
	// before resorting to Kill. Sending on a channel already closed or
	// drained after termination must not panic; adapters guarantee this by
	// buffering it and only ever receiving once.
	InterruptSender chan<- struct{}
}

// Adapter abstracts over different agent launch strategies. The Supervisor
// holds adapters by this narrow interface — no inheritance, no runtime-type
// switching (spec.md §9).
type Adapter interface {
	// ExecutorType returns a stable identifier persisted in the Session
	// record (e.g. "claude", "opencode").
	ExecutorType() string

	// Spawn launches a fresh agent session with the given prompt.
	Spawn(ctx context.Context, workingDir, prompt string, env ExecutionEnv) (*SpawnedChild, error)

	// SpawnFollowUp launches an agent session that resumes a prior
	// conversation identified by sessionID.
	SpawnFollowUp(ctx context.Context, workingDir, prompt, sessionID string, env ExecutionEnv) (*SpawnedChild, error)
}
