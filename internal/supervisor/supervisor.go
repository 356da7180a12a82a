package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentrelay/supervisor/internal/common/apperr"
	"github.com/agentrelay/supervisor/internal/common/constants"
	"github.com/agentrelay/supervisor/internal/common/logger"
	"github.com/agentrelay/supervisor/internal/executor"
	"github.com/agentrelay/supervisor/internal/logstore"
	"github.com/agentrelay/supervisor/internal/sessionstore"
	"github.com/agentrelay/supervisor/internal/tracing"
	"github.com/agentrelay/supervisor/internal/worktree"
)

// Supervisor owns every live session's runtime state and is the only
// component that mutates it; its pump and exit-watcher goroutines only
// ever write through the Supervisor's own helpers.
type Supervisor struct {
	worktrees *worktree.Manager
	sessions  sessionstore.Store
	logs      *logstore.Store
	executors *executor.Registry
	logger    *logger.Logger

	defaultBaseBranch string
	stopGraceWindow   time.Duration

	mu   sync.RWMutex
	live map[string]*LiveSession
}

// New builds a Supervisor from its four component dependencies (C1-C4).
func New(
	worktrees *worktree.Manager,
	sessions sessionstore.Store,
	logs *logstore.Store,
	executors *executor.Registry,
	log *logger.Logger,
	defaultBaseBranch string,
	stopGraceWindow time.Duration,
) *Supervisor {
	if log == nil {
		log = logger.Default()
	}
	if stopGraceWindow <= 0 {
		stopGraceWindow = constants.StopGraceWindow
	}
	return &Supervisor{
		worktrees:         worktrees,
		sessions:          sessions,
		logs:              logs,
		executors:         executors,
		logger:            log.WithFields(zap.String("component", "supervisor")),
		defaultBaseBranch: defaultBaseBranch,
		stopGraceWindow:   stopGraceWindow,
		live:              make(map[string]*LiveSession),
	}
}

// CreateSession materializes a worktree, persists the initial session
// record, spawns the executor, and registers the live session with its
// background pumps per spec.md §4.5 step 5a.
func (s *Supervisor) CreateSession(ctx context.Context, req CreateSessionRequest) (*sessionstore.Session, error) {
	ctx, span := tracing.TraceCreateSession(ctx, req.TaskID, req.ExecutorType)
	defer span.End()

	sess, err := s.createSession(ctx, req)
	tracing.TraceCreateSessionResult(span, sessionIDOf(sess), err)
	return sess, err
}

func sessionIDOf(s *sessionstore.Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}

func (s *Supervisor) createSession(ctx context.Context, req CreateSessionRequest) (*sessionstore.Session, error) {
	id := uuid.New().String()

	baseBranch := s.defaultBaseBranch
	if baseBranch == "" {
		baseBranch = "main"
	}

	wt, err := s.worktrees.Create(ctx, worktree.CreateRequest{
		SessionID:      id,
		TaskID:         req.TaskID,
		RepositoryPath: req.ProjectPath,
		BaseBranch:     baseBranch,
		BranchName:     req.BranchName,
	})
	if err != nil {
		s.logger.Error("worktree creation failed",
			zap.String("task_id", req.TaskID), zap.Error(err))
		return nil, apperr.WorktreeCreationFailed(id, err)
	}

	now := time.Now().UTC()
	sess := sessionstore.Session{
		ID:           id,
		TaskID:       req.TaskID,
		WorktreePath: wt.Path,
		BranchName:   wt.Branch,
		ExecutorType: req.ExecutorType,
		Status:       sessionstore.StatusRunning,
		CreatedAt:    now,
		StartedAt:    &now,
	}

	if err := s.sessions.InsertSession(ctx, &sess); err != nil {
		s.logger.Error("session persist failed",
			zap.String("session_id", id), zap.Error(err))
		if rmErr := s.worktrees.RemoveBySessionID(ctx, id, false); rmErr != nil {
			s.logger.Warn("failed to roll back worktree after persist failure",
				zap.String("session_id", id), zap.Error(rmErr))
		}
		return nil, apperr.PersistFailed("session "+id, err)
	}

	adapter, err := s.executors.Get(req.ExecutorType)
	if err != nil {
		return nil, s.failSpawn(ctx, &sess, err)
	}

	env := executor.ExecutionEnv{
		Model:       req.Model,
		AutoApprove: req.AutoApprove,
		EnvVars:     mergeEnvVars(req.TaskID, req.EnvVars),
		RepoPaths:   []string{req.ProjectPath},
	}

	var child *executor.SpawnedChild
	if req.FollowUpOf != "" {
		child, err = adapter.SpawnFollowUp(ctx, wt.Path, req.Prompt, req.FollowUpOf, env)
	} else {
		child, err = adapter.Spawn(ctx, wt.Path, req.Prompt, env)
	}
	if err != nil {
		return nil, s.failSpawn(ctx, &sess, err)
	}

	ls := &LiveSession{
		session: sess,
		child:   child,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.live[id] = ls
	s.mu.Unlock()

	s.startBackgroundTasks(ls)

	s.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("task_id", req.TaskID),
		zap.String("executor_type", req.ExecutorType),
		zap.String("worktree_path", wt.Path))

	result := sess
	return &result, nil
}

func mergeEnvVars(taskID string, extra map[string]string) map[string]string {
	env := map[string]string{"TASK_ID": taskID}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

// failSpawn implements spec.md §4.5 step 6's failure path: the session is
// marked Failed, the worktree is rolled back, and a SpawnFailed error
// (covering both adapter-launch failure and executor startup timeout) is
// surfaced to the caller.
func (s *Supervisor) failSpawn(ctx context.Context, sess *sessionstore.Session, cause error) error {
	now := time.Now().UTC()
	if err := s.sessions.UpdateSessionStatus(ctx, sess.ID, sessionstore.StatusFailed, &now, nil); err != nil {
		s.logger.Warn("failed to mark session failed after spawn failure",
			zap.String("session_id", sess.ID), zap.Error(err))
	}
	if err := s.worktrees.RemoveBySessionID(ctx, sess.ID, false); err != nil {
		s.logger.Warn("failed to roll back worktree after spawn failure",
			zap.String("session_id", sess.ID), zap.Error(err))
	}
	s.logger.Error("session spawn failed",
		zap.String("session_id", sess.ID), zap.Error(cause))
	return apperr.SpawnFailed(sess.ID, cause)
}

// startBackgroundTasks launches the stdout pump, stderr pump, and exit
// watcher, fanning their completion in via errgroup so cleanup_session can
// wait for all three to drain before touching the worktree.
func (s *Supervisor) startBackgroundTasks(ls *LiveSession) {
	g := new(errgroup.Group)
	g.Go(func() error { s.pumpStdout(ls); return nil })
	g.Go(func() error { s.pumpStderr(ls); return nil })
	g.Go(func() error { s.exitWatcher(ls); return nil })

	go func() {
		_ = g.Wait()
		close(ls.done)
	}()
}

func (s *Supervisor) pumpStdout(ls *LiveSession) {
	defer s.recoverPump(ls, "stdout")
	s.pumpLines(ls, ls.child.Stdout, sessionstore.LogTypeStdout, s.logs.PushStdout)
}

func (s *Supervisor) pumpStderr(ls *LiveSession) {
	defer s.recoverPump(ls, "stderr")
	s.pumpLines(ls, ls.child.Stderr, sessionstore.LogTypeStderr, s.logs.PushStderr)
}

func (s *Supervisor) pumpLines(ls *LiveSession, r io.Reader, logType sessionstore.LogType, broadcast func(sessionID, text string)) {
	id := ls.snapshot().ID
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		broadcast(id, line)
		if err := s.sessions.InsertLogEntry(context.Background(), id, logType, line); err != nil {
			s.logger.Warn("failed to persist log entry",
				zap.String("session_id", id), zap.String("log_type", string(logType)), zap.Error(err))
		}
	}
}

// recoverPump implements spec.md §7's pump-panic policy: catch, log as an
// Event, and best-effort transition the session to Failed.
func (s *Supervisor) recoverPump(ls *LiveSession, stream string) {
	r := recover()
	if r == nil {
		return
	}
	id := ls.snapshot().ID
	s.logger.Error("pump crashed",
		zap.String("session_id", id), zap.String("stream", stream), zap.Any("panic", r))

	event := fmt.Sprintf("pump crashed: %v", r)
	s.logs.PushEvent(id, event)
	if err := s.sessions.InsertLogEntry(context.Background(), id, sessionstore.LogTypeEvent, event); err != nil {
		s.logger.Warn("failed to persist pump crash event",
			zap.String("session_id", id), zap.Error(err))
	}

	now := time.Now().UTC()
	if err := s.sessions.UpdateSessionStatus(context.Background(), id, sessionstore.StatusFailed, &now, nil); err != nil {
		s.logger.Warn("failed to mark session failed after pump crash",
			zap.String("session_id", id), zap.Error(err))
	}
}

// exitWatcher implements spec.md §4.5 step 8's exit watcher: it awaits the
// adapter's exit signal, resolves Completed vs. Killed from whether a
// cancellation was requested, persists the terminal state, and broadcasts
// Finished exactly once.
func (s *Supervisor) exitWatcher(ls *LiveSession) {
	defer s.recoverPump(ls, "exit_watcher")

	res := <-ls.child.ExitSignal

	id := ls.snapshot().ID
	status := sessionstore.StatusCompleted
	if ls.wasCancelRequested() {
		status = sessionstore.StatusKilled
	}

	now := time.Now().UTC()
	exitCode := res.ExitCode
	if err := s.sessions.UpdateSessionStatus(context.Background(), id, status, &now, &exitCode); err != nil {
		s.logger.Warn("failed to persist terminal session status",
			zap.String("session_id", id), zap.String("status", string(status)), zap.Error(err))
	}

	ls.mu.Lock()
	ls.session.Status = status
	ls.session.FinishedAt = &now
	ls.session.ExitCode = &exitCode
	ls.mu.Unlock()

	s.logger.Info("session finished",
		zap.String("session_id", id), zap.String("status", string(status)),
		zap.Int("exit_code", exitCode), zap.Error(res.Err))

	s.logs.PushFinished(id, string(status))
}

// StopSession implements spec.md §4.5 step 5b: cooperative interrupt, then
// a forceful kill if the adapter does not exit within the grace window.
// Idempotent on an already-terminal session.
func (s *Supervisor) StopSession(ctx context.Context, sessionID string) error {
	ctx, span := tracing.TraceStopSession(ctx, sessionID, false)
	defer span.End()

	err := s.stopSession(ctx, sessionID)
	tracing.TraceSpanResult(span, err)
	return err
}

func (s *Supervisor) stopSession(ctx context.Context, sessionID string) error {
	s.mu.RLock()
	ls, ok := s.live[sessionID]
	s.mu.RUnlock()

	if !ok {
		sess, err := s.sessions.GetSession(ctx, sessionID)
		if err != nil {
			return apperr.SessionNotFound(sessionID)
		}
		if sess.Status.Terminal() {
			return nil
		}
		return apperr.SessionNotFound(sessionID)
	}

	if ls.snapshot().Status.Terminal() {
		return nil
	}

	ls.setCancelRequested()

	child := ls.child
	if child.InterruptSender != nil {
		select {
		case child.InterruptSender <- struct{}{}:
		default:
		}
	}

	select {
	case <-ls.done:
		return nil
	case <-time.After(s.stopGraceWindow):
	}

	if child.Kill != nil {
		if err := child.Kill(); err != nil {
			s.logger.Warn("kill after grace window failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	return nil
}

// CleanupSession implements spec.md §4.5 step 5c: removes the worktree and
// evicts the live entry for a terminal session. Calling it on a live
// session fails with SessionStillRunning.
func (s *Supervisor) CleanupSession(ctx context.Context, sessionID string, deleteBranch bool) error {
	ctx, span := tracing.TraceCleanupSession(ctx, sessionID, deleteBranch)
	defer span.End()

	err := s.cleanupSession(ctx, sessionID, deleteBranch)
	tracing.TraceSpanResult(span, err)
	return err
}

func (s *Supervisor) cleanupSession(ctx context.Context, sessionID string, deleteBranch bool) error {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return apperr.SessionNotFound(sessionID)
	}

	s.mu.RLock()
	ls, ok := s.live[sessionID]
	s.mu.RUnlock()

	if ok {
		if !ls.snapshot().Status.Terminal() {
			return apperr.SessionStillRunning(sessionID)
		}
		// Wait for the pumps and exit watcher to fully drain before the
		// worktree disappears out from under them.
		select {
		case <-ls.done:
		case <-time.After(constants.ExitWaitTimeout):
		}
	} else if !sess.Status.Terminal() {
		return apperr.SessionStillRunning(sessionID)
	}

	if sess.WorktreePath != "" {
		if err := s.worktrees.RemoveBySessionID(ctx, sessionID, deleteBranch); err != nil {
			s.logger.Error("worktree cleanup failed",
				zap.String("session_id", sessionID), zap.Error(err))
			return apperr.CleanupFailed(sessionID, err)
		}
	}

	s.mu.Lock()
	delete(s.live, sessionID)
	s.mu.Unlock()

	s.logs.Clear(sessionID)

	s.logger.Info("session cleaned up",
		zap.String("session_id", sessionID), zap.Bool("delete_branch", deleteBranch))

	return nil
}

// SubscribeLogs implements spec.md §4.5 step 5d: a live feed for a running
// session. Terminal sessions fail with SessionNotRunning — callers wanting
// their history use GetLogs.
func (s *Supervisor) SubscribeLogs(sessionID string) (*logstore.Subscription, error) {
	s.mu.RLock()
	ls, ok := s.live[sessionID]
	s.mu.RUnlock()

	if !ok || ls.snapshot().Status.Terminal() {
		return nil, apperr.SessionNotRunning(sessionID)
	}

	return s.logs.Subscribe(sessionID), nil
}

// GetLogs implements spec.md §4.5 step 5e: the durable log for a session,
// timestamp ascending.
func (s *Supervisor) GetLogs(ctx context.Context, sessionID string) ([]*sessionstore.LogEntry, error) {
	return s.sessions.ListLogs(ctx, sessionID)
}

// ListLive returns a snapshot of every currently live session, supplementing
// spec.md to back a live dashboard view.
func (s *Supervisor) ListLive() []sessionstore.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]sessionstore.Session, 0, len(s.live))
	for _, ls := range s.live {
		result = append(result, ls.snapshot())
	}
	return result
}

// ListByTask returns every session recorded for a task, live or terminal,
// supplementing spec.md's per-task session history view.
func (s *Supervisor) ListByTask(ctx context.Context, taskID string) ([]*sessionstore.Session, error) {
	return s.sessions.ListSessionsByTask(ctx, taskID)
}
