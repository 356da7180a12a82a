package executor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentrelay/supervisor/internal/common/logger"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	return log
}

// writeFixtureScript writes an executable shell script standing in for a
// real agent CLI, in the shape of a test fixture binary rather than a real
// shelled-out agent.
func writeFixtureScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fixture-agent.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestCLIExecAdapter_Spawn_HappyPath(t *testing.T) {
	binary := writeFixtureScript(t, `echo "hi"
echo "trouble" 1>&2
exit 0
`)
	adapter := NewCLIExecAdapter("fixture", binary, newTestLogger())
	require.Equal(t, "fixture", adapter.ExecutorType())

	child, err := adapter.Spawn(context.Background(), t.TempDir(), "say hi", ExecutionEnv{})
	require.NoError(t, err)

	stdout, err := io.ReadAll(child.Stdout)
	require.NoError(t, err)
	require.Equal(t, "hi\n", string(stdout))

	stderr, err := io.ReadAll(child.Stderr)
	require.NoError(t, err)
	require.Equal(t, "trouble\n", string(stderr))

	select {
	case res := <-child.ExitSignal:
		require.Equal(t, 0, res.ExitCode)
		require.NoError(t, res.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit signal")
	}
}

func TestCLIExecAdapter_Spawn_PassesPromptAsLastArg(t *testing.T) {
	binary := writeFixtureScript(t, `for arg in "$@"; do echo "arg:$arg"; done
`)
	adapter := NewCLIExecAdapter("fixture", binary, newTestLogger())

	child, err := adapter.Spawn(context.Background(), t.TempDir(), "the prompt", ExecutionEnv{Model: "big-model"})
	require.NoError(t, err)

	out, err := io.ReadAll(child.Stdout)
	require.NoError(t, err)
	require.Contains(t, string(out), "arg:--print")
	require.Contains(t, string(out), "arg:--model")
	require.Contains(t, string(out), "arg:big-model")
	require.Contains(t, string(out), "arg:the prompt")

	<-child.ExitSignal
}

func TestCLIExecAdapter_Interrupt_Kills(t *testing.T) {
	binary := writeFixtureScript(t, `trap '' TERM
sleep 30
`)
	adapter := NewCLIExecAdapter("fixture", binary, newTestLogger())

	child, err := adapter.Spawn(context.Background(), t.TempDir(), "long running", ExecutionEnv{})
	require.NoError(t, err)

	child.InterruptSender <- struct{}{}

	select {
	case res := <-child.ExitSignal:
		require.Error(t, res.Err, "killed process should report a wait error")
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt did not terminate the child in time")
	}
}
