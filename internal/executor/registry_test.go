package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubAdapter struct{ name string }

func (s *stubAdapter) ExecutorType() string { return s.name }
func (s *stubAdapter) Spawn(ctx context.Context, workingDir, prompt string, env ExecutionEnv) (*SpawnedChild, error) {
	return nil, nil
}
func (s *stubAdapter) SpawnFollowUp(ctx context.Context, workingDir, prompt, sessionID string, env ExecutionEnv) (*SpawnedChild, error) {
	return nil, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubAdapter{name: "claude"})
	reg.Register(&stubAdapter{name: "opencode"})

	a, err := reg.Get("claude")
	require.NoError(t, err)
	require.Equal(t, "claude", a.ExecutorType())

	require.Equal(t, []string{"claude", "opencode"}, reg.Types())
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("missing")
	require.True(t, errors.Is(err, ErrUnknownExecutorType))
}
