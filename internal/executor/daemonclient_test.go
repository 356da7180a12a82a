package executor

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDaemonClientAdapter_StartupTimeout(t *testing.T) {
	// Never prints a "listening on" line; create_session must not hang
	// past the configured deadline.
	binary := writeFixtureScript(t, `echo "starting up, please wait"
sleep 5
`)
	adapter := NewDaemonClientAdapter("fixture-daemon", binary, newTestLogger(),
		WithStartupTimeout(200*time.Millisecond))

	_, err := adapter.Spawn(context.Background(), t.TempDir(), "prompt", ExecutionEnv{})
	require.True(t, errors.Is(err, ErrStartupTimeout))
}

func TestDaemonClientAdapter_ReadyLineParsed(t *testing.T) {
	addr := startFakeControlServer(t)
	binary := writeFixtureScript(t, `echo "fixture server listening on http://`+addr+`"
sleep 5
`)
	adapter := NewDaemonClientAdapter("fixture-daemon", binary, newTestLogger(),
		WithListeningPrefix("fixture server listening on "),
		WithStartupTimeout(2*time.Second))

	child, err := adapter.Spawn(context.Background(), t.TempDir(), "do the thing", ExecutionEnv{})
	require.NoError(t, err)

	out, err := io.ReadAll(child.Stdout)
	require.NoError(t, err)
	require.Equal(t, "line one\nline two\n", string(out))

	select {
	case res := <-child.ExitSignal:
		require.Equal(t, 0, res.ExitCode)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit signal")
	}
}
