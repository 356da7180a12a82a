package supervisor

import (
	"context"
	"sync"

	"github.com/agentrelay/supervisor/internal/worktree"
)

// fakeWorktreeStore is an in-memory worktree.Store, mirroring the mockStore
// the worktree package itself tests against.
type fakeWorktreeStore struct {
	mu        sync.Mutex
	worktrees map[string]*worktree.Worktree
}

func newFakeWorktreeStore() *fakeWorktreeStore {
	return &fakeWorktreeStore{worktrees: make(map[string]*worktree.Worktree)}
}

func (s *fakeWorktreeStore) CreateWorktree(ctx context.Context, wt *worktree.Worktree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worktrees[wt.ID] = wt
	return nil
}

func (s *fakeWorktreeStore) GetWorktreeByID(ctx context.Context, id string) (*worktree.Worktree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worktrees[id], nil
}

func (s *fakeWorktreeStore) GetWorktreeBySessionID(ctx context.Context, sessionID string) (*worktree.Worktree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wt := range s.worktrees {
		if wt.SessionID == sessionID && wt.Status == worktree.StatusActive {
			return wt, nil
		}
	}
	return nil, nil
}

func (s *fakeWorktreeStore) GetWorktreesByTaskID(ctx context.Context, taskID string) ([]*worktree.Worktree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*worktree.Worktree
	for _, wt := range s.worktrees {
		if wt.TaskID == taskID {
			result = append(result, wt)
		}
	}
	return result, nil
}

func (s *fakeWorktreeStore) UpdateWorktree(ctx context.Context, wt *worktree.Worktree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worktrees[wt.ID] = wt
	return nil
}

func (s *fakeWorktreeStore) DeleteWorktree(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.worktrees, id)
	return nil
}

func (s *fakeWorktreeStore) ListActiveWorktrees(ctx context.Context) ([]*worktree.Worktree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*worktree.Worktree
	for _, wt := range s.worktrees {
		if wt.Status == worktree.StatusActive {
			result = append(result, wt)
		}
	}
	return result, nil
}

var _ worktree.Store = (*fakeWorktreeStore)(nil)
