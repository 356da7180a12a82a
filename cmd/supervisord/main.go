// Command supervisord boots the session supervisor's components and keeps
// them running until terminated. It is the process a front-end (HTTP
// server, CLI, TUI) embeds or shells out to; this binary itself exposes no
// network surface — internal/supervisor's exported Go API is the
// integration seam, per spec.md's scope.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentrelay/supervisor/internal/common/config"
	"github.com/agentrelay/supervisor/internal/common/db"
	"github.com/agentrelay/supervisor/internal/common/logger"
	"github.com/agentrelay/supervisor/internal/executor"
	"github.com/agentrelay/supervisor/internal/logstore"
	"github.com/agentrelay/supervisor/internal/sessionstore"
	"github.com/agentrelay/supervisor/internal/supervisor"
	"github.com/agentrelay/supervisor/internal/tracing"
	"github.com/agentrelay/supervisor/internal/worktree"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting session supervisor")

	if cfg.Tracing.OTLPEndpoint != "" {
		_ = os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown error", zap.Error(err))
		}
	}()

	conn, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err), zap.String("path", cfg.Database.Path))
	}
	defer conn.Close()

	worktrees, err := worktree.Provide(conn, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize worktree provider", zap.Error(err))
	}

	sessions, err := sessionstore.Provide(conn)
	if err != nil {
		log.Fatal("failed to initialize session store", zap.Error(err))
	}

	logs := logstore.NewStore()
	executors := executor.Provide(cfg, log)
	sup := supervisor.Provide(cfg, log, worktrees, sessions, logs, executors)

	log.Info("session supervisor ready", zap.Int("executor_types", len(executors.Types())))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reportLiveSessions(ctx, sup, log)

	<-ctx.Done()
	log.Info("shutting down session supervisor")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	drainLiveSessions(shutdownCtx, sup, log)

	log.Info("session supervisor stopped")
}

// reportLiveSessions logs the live-session count periodically so an
// operator tailing the daemon's output can see it doing something even
// with no front-end attached yet.
func reportLiveSessions(ctx context.Context, sup *supervisor.Supervisor, log *logger.Logger) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Debug("live sessions", zap.Int("count", len(sup.ListLive())))
			}
		}
	}()
}

// drainLiveSessions asks every still-running session to stop before the
// process exits, giving each the grace window from cfg.Executor before the
// parent process itself disappears out from under them.
func drainLiveSessions(ctx context.Context, sup *supervisor.Supervisor, log *logger.Logger) {
	live := sup.ListLive()
	for _, sess := range live {
		if err := sup.StopSession(ctx, sess.ID); err != nil {
			log.Error("failed to stop session during shutdown", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
}
