package supervisor

import (
	"context"
	"io"
	"sync"

	"github.com/agentrelay/supervisor/internal/executor"
)

// testChild is the test's handle to the child a fakeAdapter spawned: the
// write ends of the pipes the Supervisor's pumps read from, plus controls
// over the exit signal and kill observation, standing in for a real OS
// process the way cliexec_test.go's fixture scripts stand in for a real
// agent binary.
type testChild struct {
	stdoutW *io.PipeWriter
	stderrW *io.PipeWriter
	exitCh  chan executor.ExitResult

	mu        sync.Mutex
	killed    int
	interrupt chan struct{}
}

func newTestChild() (*testChild, *executor.SpawnedChild) {
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	exitCh := make(chan executor.ExitResult, 1)
	interruptCh := make(chan struct{}, 1)

	tc := &testChild{
		stdoutW:   stdoutW,
		stderrW:   stderrW,
		exitCh:    exitCh,
		interrupt: interruptCh,
	}

	child := &executor.SpawnedChild{
		Stdout: stdoutR,
		Stderr: stderrR,
		Kill: func() error {
			tc.mu.Lock()
			tc.killed++
			tc.mu.Unlock()
			return nil
		},
		ExitSignal:      exitCh,
		InterruptSender: interruptCh,
	}
	return tc, child
}

func (tc *testChild) killCount() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.killed
}

// writeLinesAndClose writes each line followed by a newline, then closes
// both streams — the pump's equivalent of a process exiting.
func (tc *testChild) writeLinesAndClose(stdout, stderr []string) {
	for _, l := range stdout {
		_, _ = tc.stdoutW.Write([]byte(l + "\n"))
	}
	_ = tc.stdoutW.Close()
	for _, l := range stderr {
		_, _ = tc.stderrW.Write([]byte(l + "\n"))
	}
	_ = tc.stderrW.Close()
}

func (tc *testChild) finish(res executor.ExitResult) {
	tc.exitCh <- res
}

// fakeAdapter is a deterministic, in-process stand-in for an executor.Adapter,
// grounded on registry_test.go's stubAdapter pattern but returning a live
// SpawnedChild the test can drive.
type fakeAdapter struct {
	name      string
	spawnErr  error
	lastChild *testChild
}

func (a *fakeAdapter) ExecutorType() string { return a.name }

func (a *fakeAdapter) Spawn(ctx context.Context, workingDir, prompt string, env executor.ExecutionEnv) (*executor.SpawnedChild, error) {
	if a.spawnErr != nil {
		return nil, a.spawnErr
	}
	tc, child := newTestChild()
	a.lastChild = tc
	return child, nil
}

func (a *fakeAdapter) SpawnFollowUp(ctx context.Context, workingDir, prompt, sessionID string, env executor.ExecutionEnv) (*executor.SpawnedChild, error) {
	return a.Spawn(ctx, workingDir, prompt, env)
}

var _ executor.Adapter = (*fakeAdapter)(nil)
