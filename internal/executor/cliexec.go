package executor

import (
	"context"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/agentrelay/supervisor/internal/common/logger"
)

// CLIExecAdapter is the Direct-CLI adapter shape (spec.md §4.3, §6.1):
// it launches the configured agent binary with
// "--print --dangerously-skip-permissions <prompt>" (plus "--model" when
// set), piping stdout/stderr to the caller. ExitSignal fires when the
// child exits; InterruptSender triggers Kill. Grounded on the teacher's
// exec.CommandContext usage throughout worktree/manager.go.
type CLIExecAdapter struct {
	executorType string
	binary       string
	logger       *logger.Logger
}

// NewCLIExecAdapter builds a Direct-CLI adapter for the given binary,
// registered under executorType (e.g. "claude", "codex").
func NewCLIExecAdapter(executorType, binary string, log *logger.Logger) *CLIExecAdapter {
	if log == nil {
		log = logger.Default()
	}
	return &CLIExecAdapter{
		executorType: executorType,
		binary:       binary,
		logger:       log.WithFields(zap.String("component", "cliexec-adapter"), zap.String("executor_type", executorType)),
	}
}

func (a *CLIExecAdapter) ExecutorType() string { return a.executorType }

func (a *CLIExecAdapter) Spawn(ctx context.Context, workingDir, prompt string, env ExecutionEnv) (*SpawnedChild, error) {
	return a.spawn(ctx, workingDir, prompt, env, nil)
}

func (a *CLIExecAdapter) SpawnFollowUp(ctx context.Context, workingDir, prompt, sessionID string, env ExecutionEnv) (*SpawnedChild, error) {
	return a.spawn(ctx, workingDir, prompt, env, &sessionID)
}

func (a *CLIExecAdapter) spawn(ctx context.Context, workingDir, prompt string, env ExecutionEnv, resumeSessionID *string) (*SpawnedChild, error) {
	args := []string{"--print", "--dangerously-skip-permissions"}
	if env.Model != "" {
		args = append(args, "--model", env.Model)
	}
	if resumeSessionID != nil && *resumeSessionID != "" {
		args = append(args, "--resume", *resumeSessionID)
	}
	args = append(args, prompt)

	cmd := exec.CommandContext(ctx, a.binary, args...)
	cmd.Dir = workingDir
	cmd.Env = buildChildEnv(env)
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	a.logger.Debug("spawned cliexec child", zap.String("binary", a.binary), zap.Int("pid", cmd.Process.Pid))

	exitCh := make(chan ExitResult, 1)
	go func() {
		waitErr := cmd.Wait()
		exitCode := 0
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		exitCh <- ExitResult{ExitCode: exitCode, Err: waitErr}
	}()

	var killOnce sync.Once
	kill := func() error {
		var err error
		killOnce.Do(func() {
			if cmd.Process != nil {
				err = cmd.Process.Kill()
			}
		})
		return err
	}

	interruptCh := make(chan struct{}, 1)
	go func() {
		if _, ok := <-interruptCh; ok {
			_ = kill()
		}
	}()

	return &SpawnedChild{
		Stdout:          stdout,
		Stderr:          stderr,
		Kill:            kill,
		ExitSignal:      exitCh,
		InterruptSender: interruptCh,
	}, nil
}

var _ Adapter = (*CLIExecAdapter)(nil)
