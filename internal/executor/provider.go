package executor

import (
	"github.com/agentrelay/supervisor/internal/common/config"
	"github.com/agentrelay/supervisor/internal/common/logger"
)

// Provide builds a Registry with the two canonical adapter shapes: the
// Direct-CLI shape registered as "claude" and the Daemon-plus-client shape
// as "opencode", each launching the binary of the same name. Per
// SPEC_FULL.md's Open Question decision, no executor_type is special-cased
// — any binary can be wired as either shape.
func Provide(cfg *config.Config, log *logger.Logger) *Registry {
	reg := NewRegistry()
	reg.Register(NewCLIExecAdapter("claude", "claude", log))
	reg.Register(NewDaemonClientAdapter("opencode", "opencode", log,
		WithListeningPrefix("opencode server listening on ")))
	return reg
}
