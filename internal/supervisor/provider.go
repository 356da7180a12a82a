package supervisor

import (
	"github.com/agentrelay/supervisor/internal/common/config"
	"github.com/agentrelay/supervisor/internal/common/logger"
	"github.com/agentrelay/supervisor/internal/executor"
	"github.com/agentrelay/supervisor/internal/logstore"
	"github.com/agentrelay/supervisor/internal/sessionstore"
	"github.com/agentrelay/supervisor/internal/worktree"
)

// Provide wires a Supervisor from its already-constructed component
// dependencies and application configuration, the way every other
// component in this codebase builds its own constructor from
// *config.Config.
func Provide(
	cfg *config.Config,
	log *logger.Logger,
	worktrees *worktree.Manager,
	sessions sessionstore.Store,
	logs *logstore.Store,
	executors *executor.Registry,
) *Supervisor {
	return New(worktrees, sessions, logs, executors, log,
		cfg.Worktree.DefaultBranch, cfg.Executor.StopGraceWindow)
}
