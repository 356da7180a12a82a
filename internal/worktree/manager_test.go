package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrelay/supervisor/internal/common/logger"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	return log
}

func newTestConfig(t *testing.T) Config {
	return Config{
		Enabled:      true,
		BranchPrefix: DefaultBranchPrefix,
	}
}

// mockStore is an in-memory Store for tests that don't need SQLite.
type mockStore struct {
	worktrees map[string]*Worktree
}

func newMockStore() *mockStore {
	return &mockStore{worktrees: make(map[string]*Worktree)}
}

func (s *mockStore) CreateWorktree(ctx context.Context, wt *Worktree) error {
	s.worktrees[wt.ID] = wt
	return nil
}

func (s *mockStore) GetWorktreeByID(ctx context.Context, id string) (*Worktree, error) {
	return s.worktrees[id], nil
}

func (s *mockStore) GetWorktreeBySessionID(ctx context.Context, sessionID string) (*Worktree, error) {
	for _, wt := range s.worktrees {
		if wt.SessionID == sessionID && wt.Status == StatusActive {
			return wt, nil
		}
	}
	return nil, nil
}

func (s *mockStore) GetWorktreesByTaskID(ctx context.Context, taskID string) ([]*Worktree, error) {
	var result []*Worktree
	for _, wt := range s.worktrees {
		if wt.TaskID == taskID {
			result = append(result, wt)
		}
	}
	return result, nil
}

func (s *mockStore) UpdateWorktree(ctx context.Context, wt *Worktree) error {
	s.worktrees[wt.ID] = wt
	return nil
}

func (s *mockStore) DeleteWorktree(ctx context.Context, id string) error {
	delete(s.worktrees, id)
	return nil
}

func (s *mockStore) ListActiveWorktrees(ctx context.Context) ([]*Worktree, error) {
	var result []*Worktree
	for _, wt := range s.worktrees {
		if wt.Status == StatusActive {
			result = append(result, wt)
		}
	}
	return result, nil
}

var _ Store = (*mockStore)(nil)

// initTestRepo creates a throwaway git repository with one commit on main,
// returning its path.
func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0644))
	run("add", "README.md")
	run("commit", "-m", "initial commit")
	return dir
}

func TestManager_Create_NewWorktree(t *testing.T) {
	repo := initTestRepo(t)
	mgr, err := NewManager(newTestConfig(t), newMockStore(), newTestLogger())
	require.NoError(t, err)

	wt, err := mgr.Create(context.Background(), CreateRequest{
		SessionID:      "sess-1",
		TaskID:         "task-1",
		RepositoryPath: repo,
		BaseBranch:     "main",
	})
	require.NoError(t, err)
	require.True(t, mgr.IsValid(wt.Path))
	require.Equal(t, filepath.Join(repo, ".worktrees", "task-1"), wt.Path)
	require.Equal(t, "task/task-1", wt.Branch)
}

func TestManager_Create_VerbatimBranchName(t *testing.T) {
	repo := initTestRepo(t)
	mgr, err := NewManager(newTestConfig(t), newMockStore(), newTestLogger())
	require.NoError(t, err)

	wt, err := mgr.Create(context.Background(), CreateRequest{
		SessionID:      "sess-1",
		TaskID:         "task-1",
		RepositoryPath: repo,
		BaseBranch:     "main",
		BranchName:     "my-custom-branch",
	})
	require.NoError(t, err)
	require.Equal(t, "my-custom-branch", wt.Branch)
}

func TestManager_Create_PathExists_WorktreeBusy(t *testing.T) {
	repo := initTestRepo(t)
	mgr, err := NewManager(newTestConfig(t), newMockStore(), newTestLogger())
	require.NoError(t, err)

	worktreesDir := filepath.Join(repo, ".worktrees")
	require.NoError(t, os.MkdirAll(filepath.Join(worktreesDir, "task-1"), 0755))

	_, err = mgr.Create(context.Background(), CreateRequest{
		SessionID:      "sess-1",
		TaskID:         "task-1",
		RepositoryPath: repo,
		BaseBranch:     "main",
	})
	require.ErrorIs(t, err, ErrWorktreeExists)
}

func TestManager_Create_IdempotentBySessionID(t *testing.T) {
	repo := initTestRepo(t)
	mgr, err := NewManager(newTestConfig(t), newMockStore(), newTestLogger())
	require.NoError(t, err)

	req := CreateRequest{SessionID: "sess-1", TaskID: "task-1", RepositoryPath: repo, BaseBranch: "main"}
	first, err := mgr.Create(context.Background(), req)
	require.NoError(t, err)

	second, err := mgr.Create(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Path, second.Path)
}

func TestManager_Create_InvalidBaseBranch(t *testing.T) {
	repo := initTestRepo(t)
	mgr, err := NewManager(newTestConfig(t), newMockStore(), newTestLogger())
	require.NoError(t, err)

	_, err = mgr.Create(context.Background(), CreateRequest{
		SessionID: "sess-1", TaskID: "task-1", RepositoryPath: repo, BaseBranch: "does-not-exist",
	})
	require.ErrorIs(t, err, ErrInvalidBaseBranch)
}

func TestManager_Create_NotGitRepo(t *testing.T) {
	mgr, err := NewManager(newTestConfig(t), newMockStore(), newTestLogger())
	require.NoError(t, err)

	_, err = mgr.Create(context.Background(), CreateRequest{
		SessionID: "sess-1", TaskID: "task-1", RepositoryPath: t.TempDir(), BaseBranch: "main",
	})
	require.ErrorIs(t, err, ErrRepoNotGit)
}

func TestManager_RemoveBySessionID(t *testing.T) {
	repo := initTestRepo(t)
	mgr, err := NewManager(newTestConfig(t), newMockStore(), newTestLogger())
	require.NoError(t, err)

	wt, err := mgr.Create(context.Background(), CreateRequest{
		SessionID: "sess-1", TaskID: "task-1", RepositoryPath: repo, BaseBranch: "main",
	})
	require.NoError(t, err)

	require.NoError(t, mgr.RemoveBySessionID(context.Background(), "sess-1", true))
	_, err = os.Stat(wt.Path)
	require.True(t, os.IsNotExist(err))

	_, err = mgr.GetBySessionID(context.Background(), "sess-1")
	require.ErrorIs(t, err, ErrWorktreeNotFound)
}

func TestManager_ListWorktrees(t *testing.T) {
	repo := initTestRepo(t)
	mgr, err := NewManager(newTestConfig(t), newMockStore(), newTestLogger())
	require.NoError(t, err)

	_, err = mgr.Create(context.Background(), CreateRequest{
		SessionID: "sess-1", TaskID: "task-1", RepositoryPath: repo, BaseBranch: "main",
	})
	require.NoError(t, err)

	listed, err := mgr.ListWorktrees(context.Background(), repo)
	require.NoError(t, err)
	// The origin checkout itself plus the one we just created.
	require.Len(t, listed, 2)
}

func TestParseWorktreePorcelain(t *testing.T) {
	output := "worktree /repo\nHEAD abc123\nbranch refs/heads/main\n\n" +
		"worktree /repo/.worktrees/t1\nHEAD def456\nbranch refs/heads/task/t1-abc\n\n"

	listed := parseWorktreePorcelain([]byte(output))
	require.Len(t, listed, 2)
	require.Equal(t, "/repo", listed[0].Path)
	require.Equal(t, "main", listed[0].Branch)
	require.Equal(t, "task/t1-abc", listed[1].Branch)
}
