package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults pins the production defaults Load falls back to absent
// any env vars or config file, catching regressions like a stray default
// disagreeing with spec.md (e.g. worktree.branchPrefix).
func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "./supervisor.db", cfg.Database.Path)
	require.True(t, cfg.Worktree.Enabled)
	require.Equal(t, "task/", cfg.Worktree.BranchPrefix)
	require.Equal(t, "main", cfg.Worktree.DefaultBranch)
	require.Equal(t, "cliexec", cfg.Executor.DefaultKind)
}
