// Package supervisor is the Session Supervisor component (C5): the
// orchestration core that composes the worktree provider, log store,
// executor adapters, and session store into the create/stop/cleanup
// session lifecycle, grounded on the teacher's lifecycle.Manager (live
// instance map under sync.RWMutex, byTask secondary index, structured
// logging at each transition).
package supervisor

import (
	"sync"

	"github.com/agentrelay/supervisor/internal/executor"
	"github.com/agentrelay/supervisor/internal/sessionstore"
)

// CreateSessionRequest carries the parameters create_session assembles a
// session from.
type CreateSessionRequest struct {
	TaskID       string
	ProjectPath  string
	Prompt       string
	ExecutorType string
	// BranchName, if set, is passed to the worktree manager verbatim and
	// used as the new branch's literal name. Left empty, the worktree
	// manager defaults the branch to its configured prefix plus TaskID
	// (task/<TaskID> with the default prefix).
	BranchName string
	// FollowUpOf, if set, resumes an existing executor conversation
	// instead of starting a fresh one.
	FollowUpOf string

	Model       string
	AutoApprove bool
	EnvVars     map[string]string
}

// LiveSession is the Supervisor's in-memory record of a session with a
// spawned child: the Session snapshot, the adapter handle needed to
// cancel or kill it, and the completion signal pumps and the exit watcher
// close once they've all drained.
type LiveSession struct {
	mu sync.Mutex

	session         sessionstore.Session
	child           *executor.SpawnedChild
	cancelRequested bool

	// done is closed once the stdout pump, stderr pump, and exit watcher
	// have all returned — cleanup_session waits on it before touching the
	// worktree, so pumps never write to a store entry mid-removal.
	done chan struct{}
}

func (ls *LiveSession) snapshot() sessionstore.Session {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.session
}

func (ls *LiveSession) setCancelRequested() {
	ls.mu.Lock()
	ls.cancelRequested = true
	ls.mu.Unlock()
}

func (ls *LiveSession) wasCancelRequested() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.cancelRequested
}
