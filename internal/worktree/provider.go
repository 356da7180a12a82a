package worktree

import (
	"github.com/jmoiron/sqlx"

	"github.com/agentrelay/supervisor/internal/common/config"
	"github.com/agentrelay/supervisor/internal/common/logger"
)

// Provide wires a Manager from application configuration and an open
// database handle, the way the rest of this codebase's components build
// their own constructors from *config.Config.
func Provide(db *sqlx.DB, cfg *config.Config, log *logger.Logger) (*Manager, error) {
	store, err := NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}

	mgrCfg := Config{
		Enabled:      cfg.Worktree.Enabled,
		BranchPrefix: cfg.Worktree.BranchPrefix,
	}

	return NewManager(mgrCfg, store, log)
}
