package supervisor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentrelay/supervisor/internal/common/logger"
	"github.com/agentrelay/supervisor/internal/executor"
	"github.com/agentrelay/supervisor/internal/logstore"
	"github.com/agentrelay/supervisor/internal/sessionstore"
	"github.com/agentrelay/supervisor/internal/worktree"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	return log
}

// initTestRepo creates a throwaway git repository with one commit on main,
// mirroring worktree/manager_test.go's fixture.
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

type testHarness struct {
	sup     *Supervisor
	adapter *fakeAdapter
	repo    string
	wtMgr   *worktree.Manager
	sess    sessionstore.Store
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	repo := initTestRepo(t)

	wtMgr, err := worktree.NewManager(worktree.Config{
		Enabled:      true,
		BranchPrefix: worktree.DefaultBranchPrefix,
	}, newFakeWorktreeStore(), newTestLogger())
	require.NoError(t, err)

	sess := sessionstore.NewMemStore()
	logs := logstore.NewStore()

	adapter := &fakeAdapter{name: "fake"}
	reg := executor.NewRegistry()
	reg.Register(adapter)

	sup := New(wtMgr, sess, logs, reg, newTestLogger(), "main", 50*time.Millisecond)

	return &testHarness{sup: sup, adapter: adapter, repo: repo, wtMgr: wtMgr, sess: sess}
}

func drainUntilFinished(t *testing.T, ch <-chan logstore.Message, timeout time.Duration) []logstore.Message {
	t.Helper()
	var got []logstore.Message
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-ch:
			got = append(got, msg)
			if _, ok := msg.(logstore.FinishedMsg); ok {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out waiting for Finished; got %d messages so far", len(got))
		}
	}
}

func TestSupervisor_CreateSession_HappyPath(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	sess, err := h.sup.CreateSession(ctx, CreateSessionRequest{
		TaskID: "T1", ProjectPath: h.repo, Prompt: "echo hi", ExecutorType: "fake",
	})
	require.NoError(t, err)
	require.Equal(t, sessionstore.StatusRunning, sess.Status)
	require.Equal(t, filepath.Join(h.repo, ".worktrees", "T1"), sess.WorktreePath)
	require.Equal(t, "task/T1", sess.BranchName)
	require.True(t, h.wtMgr.IsValid(sess.WorktreePath))

	sub, err := h.sup.SubscribeLogs(sess.ID)
	require.NoError(t, err)
	defer sub.Close()

	h.adapter.lastChild.writeLinesAndClose([]string{"hi"}, nil)
	h.adapter.lastChild.finish(executor.ExitResult{ExitCode: 0})

	msgs := drainUntilFinished(t, sub.C(), 5*time.Second)
	require.IsType(t, logstore.SessionIDMsg{}, msgs[0])

	var sawStdout bool
	for _, m := range msgs {
		if s, ok := m.(logstore.StdoutMsg); ok && s.Text == "hi" {
			sawStdout = true
		}
	}
	require.True(t, sawStdout, "expected a Stdout(\"hi\") message before Finished")

	finished := msgs[len(msgs)-1].(logstore.FinishedMsg)
	require.Equal(t, string(sessionstore.StatusCompleted), finished.Status)

	require.Eventually(t, func() bool {
		got, err := h.sess.GetSession(ctx, sess.ID)
		return err == nil && got.Status == sessionstore.StatusCompleted && got.ExitCode != nil && *got.ExitCode == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSupervisor_CreateSession_VerbatimBranchName(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	sess, err := h.sup.CreateSession(ctx, CreateSessionRequest{
		TaskID: "T1b", ProjectPath: h.repo, Prompt: "echo hi", ExecutorType: "fake",
		BranchName: "release/hotfix",
	})
	require.NoError(t, err)
	require.Equal(t, "release/hotfix", sess.BranchName)
}

func TestSupervisor_CreateSession_SpawnFailure(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.adapter.spawnErr = errors.New("agent binary not found")

	sess, err := h.sup.CreateSession(ctx, CreateSessionRequest{
		TaskID: "T2", ProjectPath: h.repo, Prompt: "echo hi", ExecutorType: "fake",
	})
	require.Error(t, err)
	require.Nil(t, sess)

	sessions, err := h.sess.ListSessionsByTask(ctx, "T2")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, sessionstore.StatusFailed, sessions[0].Status)

	_, err = h.wtMgr.GetBySessionID(ctx, sessions[0].ID)
	require.ErrorIs(t, err, worktree.ErrWorktreeNotFound)
}

func TestSupervisor_StopSession_Idempotent(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	sess, err := h.sup.CreateSession(ctx, CreateSessionRequest{
		TaskID: "T3", ProjectPath: h.repo, Prompt: "sleep", ExecutorType: "fake",
	})
	require.NoError(t, err)

	require.NoError(t, h.sup.StopSession(ctx, sess.ID))
	require.Equal(t, 1, h.adapter.lastChild.killCount(), "grace window elapsed with no exit, expected escalation to Kill")

	// Simulate the killed process actually exiting now.
	h.adapter.lastChild.writeLinesAndClose(nil, nil)
	h.adapter.lastChild.finish(executor.ExitResult{Err: errors.New("signal: killed")})

	require.Eventually(t, func() bool {
		got, err := h.sess.GetSession(ctx, sess.ID)
		return err == nil && got.Status == sessionstore.StatusKilled
	}, 2*time.Second, 10*time.Millisecond)

	// Second call is a no-op success, not a second Kill.
	require.NoError(t, h.sup.StopSession(ctx, sess.ID))
	require.Equal(t, 1, h.adapter.lastChild.killCount())
}

func TestSupervisor_StopSession_NotFound(t *testing.T) {
	h := newTestHarness(t)
	err := h.sup.StopSession(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestSupervisor_ConcurrentSubscribers_SeeIdenticalSequences(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	sess, err := h.sup.CreateSession(ctx, CreateSessionRequest{
		TaskID: "T4", ProjectPath: h.repo, Prompt: "echo hi", ExecutorType: "fake",
	})
	require.NoError(t, err)

	sub1, err := h.sup.SubscribeLogs(sess.ID)
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := h.sup.SubscribeLogs(sess.ID)
	require.NoError(t, err)
	defer sub2.Close()

	h.adapter.lastChild.writeLinesAndClose([]string{"one", "two"}, []string{"oops"})
	h.adapter.lastChild.finish(executor.ExitResult{ExitCode: 0})

	msgs1 := drainUntilFinished(t, sub1.C(), 5*time.Second)
	msgs2 := drainUntilFinished(t, sub2.C(), 5*time.Second)

	kinds := func(msgs []logstore.Message) []string {
		kinds := make([]string, len(msgs))
		for i, m := range msgs {
			kinds[i] = m.Kind()
		}
		return kinds
	}
	require.Equal(t, kinds(msgs1), kinds(msgs2))
}

func TestSupervisor_CleanupSession_RequiresTerminal(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	sess, err := h.sup.CreateSession(ctx, CreateSessionRequest{
		TaskID: "T5", ProjectPath: h.repo, Prompt: "sleep", ExecutorType: "fake",
	})
	require.NoError(t, err)

	err = h.sup.CleanupSession(ctx, sess.ID, false)
	require.Error(t, err)

	h.adapter.lastChild.writeLinesAndClose(nil, nil)
	h.adapter.lastChild.finish(executor.ExitResult{ExitCode: 0})

	require.Eventually(t, func() bool {
		got, err := h.sess.GetSession(ctx, sess.ID)
		return err == nil && got.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.sup.CleanupSession(ctx, sess.ID, false))

	_, err = h.wtMgr.GetBySessionID(ctx, sess.ID)
	require.ErrorIs(t, err, worktree.ErrWorktreeNotFound)
	require.Empty(t, h.sup.ListLive())
}

func TestSupervisor_ListByTask(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	sess, err := h.sup.CreateSession(ctx, CreateSessionRequest{
		TaskID: "T6", ProjectPath: h.repo, Prompt: "echo hi", ExecutorType: "fake",
	})
	require.NoError(t, err)

	h.adapter.lastChild.writeLinesAndClose(nil, nil)
	h.adapter.lastChild.finish(executor.ExitResult{ExitCode: 0})

	sessions, err := h.sup.ListByTask(ctx, "T6")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, sess.ID, sessions[0].ID)
}
