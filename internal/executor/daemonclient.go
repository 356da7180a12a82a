package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentrelay/supervisor/internal/common/constants"
	"github.com/agentrelay/supervisor/internal/common/logger"
)

// DaemonClientAdapter is the Daemon-plus-client adapter shape (spec.md
// §4.3, §6.1): it launches a server binary on a random local port, parses
// its first "listening on <url>" line within a bounded deadline, then
// drives a minimal JSON-lines protocol client against that url in a
// background goroutine. ExitSignal fires when the client task completes,
// not necessarily when the underlying process exits. Grounded on the
// teacher's waitForReady polling loop and "serve on a random port, client
// connects" pattern.
type DaemonClientAdapter struct {
	executorType    string
	binary          string
	serveArgs       []string
	listeningPrefix string
	startupTimeout  time.Duration
	logger          *logger.Logger
}

// DaemonClientOption customizes a DaemonClientAdapter at construction.
type DaemonClientOption func(*DaemonClientAdapter)

// WithServeArgs overrides the default "serve --hostname 127.0.0.1 --port 0".
func WithServeArgs(args ...string) DaemonClientOption {
	return func(a *DaemonClientAdapter) { a.serveArgs = args }
}

// WithListeningPrefix overrides the default "listening on " readiness
// marker (e.g. "opencode server listening on ").
func WithListeningPrefix(prefix string) DaemonClientOption {
	return func(a *DaemonClientAdapter) { a.listeningPrefix = prefix }
}

// WithStartupTimeout overrides the 180s default from spec.md §4.3.
func WithStartupTimeout(d time.Duration) DaemonClientOption {
	return func(a *DaemonClientAdapter) { a.startupTimeout = d }
}

// NewDaemonClientAdapter builds a Daemon-plus-client adapter for the given
// server binary, registered under executorType (e.g. "opencode").
func NewDaemonClientAdapter(executorType, binary string, log *logger.Logger, opts ...DaemonClientOption) *DaemonClientAdapter {
	if log == nil {
		log = logger.Default()
	}
	a := &DaemonClientAdapter{
		executorType:    executorType,
		binary:          binary,
		serveArgs:       []string{"serve", "--hostname", "127.0.0.1", "--port", "0"},
		listeningPrefix: "listening on ",
		startupTimeout:  constants.ExecutorStartupTimeout,
		logger:          log.WithFields(zap.String("component", "daemonclient-adapter"), zap.String("executor_type", executorType)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *DaemonClientAdapter) ExecutorType() string { return a.executorType }

func (a *DaemonClientAdapter) Spawn(ctx context.Context, workingDir, prompt string, env ExecutionEnv) (*SpawnedChild, error) {
	return a.spawn(ctx, workingDir, prompt, "", env)
}

func (a *DaemonClientAdapter) SpawnFollowUp(ctx context.Context, workingDir, prompt, sessionID string, env ExecutionEnv) (*SpawnedChild, error) {
	return a.spawn(ctx, workingDir, prompt, sessionID, env)
}

func (a *DaemonClientAdapter) spawn(ctx context.Context, workingDir, prompt, sessionID string, env ExecutionEnv) (*SpawnedChild, error) {
	cmd := exec.CommandContext(ctx, a.binary, a.serveArgs...)
	cmd.Dir = workingDir
	cmd.Env = buildChildEnv(env)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	addrCh := make(chan string, 1)
	scanErrCh := make(chan error, 1)
	go a.scanForListening(stdoutPipe, addrCh, scanErrCh)

	startupCtx, cancel := context.WithTimeout(ctx, a.startupTimeout)
	defer cancel()

	var addr string
	select {
	case addr = <-addrCh:
	case scanErr := <-scanErrCh:
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, scanErr
	case <-startupCtx.Done():
		a.logger.Warn("executor did not become ready in time", zap.Duration("timeout", a.startupTimeout))
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, ErrStartupTimeout
	}

	a.logger.Debug("daemon executor ready", zap.String("addr", addr))

	outR, outW := io.Pipe()
	interruptCh := make(chan struct{}, 1)
	exitCh := make(chan ExitResult, 1)

	var killOnce sync.Once
	kill := func() error {
		var killErr error
		killOnce.Do(func() {
			if cmd.Process != nil {
				killErr = cmd.Process.Kill()
			}
		})
		return killErr
	}

	go func() {
		client := newProtocolClient(addr)
		exitCode, runErr := client.runTurn(prompt, sessionID, env.Model, func(line string) {
			_, _ = outW.Write([]byte(line + "\n"))
		}, interruptCh)
		_ = outW.Close()
		_ = kill()
		waitErr := cmd.Wait()
		if runErr == nil {
			runErr = waitErr
		}
		exitCh <- ExitResult{ExitCode: exitCode, Err: runErr}
	}()

	return &SpawnedChild{
		Stdout:          outR,
		Stderr:          stderrPipe,
		Kill:            kill,
		ExitSignal:      exitCh,
		InterruptSender: interruptCh,
	}, nil
}

// scanForListening reads r line by line looking for the adapter's readiness
// marker, sends the parsed host:port on addrCh, then keeps draining r so
// the child's stdout pipe never fills and blocks it.
func (a *DaemonClientAdapter) scanForListening(r io.Reader, addrCh chan<- string, errCh chan<- error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, a.listeningPrefix); idx >= 0 {
			addr := stripScheme(strings.TrimSpace(line[idx+len(a.listeningPrefix):]))
			addrCh <- addr
			_, _ = io.Copy(io.Discard, r)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		errCh <- err
		return
	}
	errCh <- fmt.Errorf("%w: process stdout closed before printing %q", ErrStartupTimeout, a.listeningPrefix)
}

func stripScheme(addr string) string {
	for _, prefix := range []string{"http://", "https://"} {
		if strings.HasPrefix(addr, prefix) {
			return strings.TrimPrefix(addr, prefix)
		}
	}
	return addr
}

var _ Adapter = (*DaemonClientAdapter)(nil)
