package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"toolgate.dev/cli/internal/core/ports"
)

// Transport is the byte-stream connection to a backend tool server. The
// production implementation wraps an OS process; tests substitute
// in-memory pipes.
type Transport interface {
	// Start establishes the connection (spawns the process)
	Start(ctx context.Context) error

	// Writer is the stream carrying requests to the server
	Writer() io.Writer

	// Reader is the stream carrying replies from the server
	Reader() io.Reader

	// Exited is closed when the server side goes away
	Exited() <-chan struct{}

	// ExitError returns the termination error once Exited is closed
	ExitError() error

	// Stop tears the connection down
	Stop() error
}

// killGracePeriod is how long Stop waits for a SIGTERM'd process before
// escalating to SIGKILL.
const killGracePeriod = 5 * time.Second

// ProcessTransport runs a backend server as a child process with stdin
// and stdout connected as pipes. The child's stderr is passed through to
// our own stderr so backend diagnostics stay visible.
type ProcessTransport struct {
	command string
	args    []string
	dir     string
	env     map[string]string
	logger  ports.LoggingGateway

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	exited  chan struct{}
	exitErr error
	started bool
}

// ProcessOption customizes a ProcessTransport.
type ProcessOption func(*ProcessTransport)

// WithDir sets the child process working directory.
func WithDir(dir string) ProcessOption {
	return func(t *ProcessTransport) { t.dir = dir }
}

// WithEnv adds environment variables to the child process.
func WithEnv(env map[string]string) ProcessOption {
	return func(t *ProcessTransport) { t.env = env }
}

// NewProcessTransport creates a transport for the given command line.
func NewProcessTransport(command string, args []string, logger ports.LoggingGateway, opts ...ProcessOption) *ProcessTransport {
	t := &ProcessTransport{
		command: command,
		args:    args,
		logger:  logger,
		exited:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start spawns the child process and begins waiting for its exit.
func (t *ProcessTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return fmt.Errorf("process is already running")
	}

	cmd := exec.CommandContext(ctx, t.command, t.args...)
	cmd.Stderr = os.Stderr
	if t.dir != "" {
		cmd.Dir = t.dir
	}
	if len(t.env) > 0 {
		env := os.Environ()
		for key, value := range t.env {
			env = append(env, fmt.Sprintf("%s=%s", key, value))
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("failed to start process: %w", err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout
	t.started = true

	t.logger.Log(ports.LogLevelDebug, "Backend process started", map[string]interface{}{
		"command": t.command,
		"pid":     cmd.Process.Pid,
	})

	go t.waitForExit()

	return nil
}

// waitForExit reaps the child and records its termination.
func (t *ProcessTransport) waitForExit() {
	err := t.cmd.Wait()

	t.mu.Lock()
	t.exitErr = err
	t.mu.Unlock()
	close(t.exited)

	fields := map[string]interface{}{"command": t.command}
	if t.cmd.ProcessState != nil {
		fields["exit_code"] = t.cmd.ProcessState.ExitCode()
	}
	if err != nil {
		t.logger.LogError(err, "Backend process exited with error", fields)
	} else {
		t.logger.Log(ports.LogLevelDebug, "Backend process exited", fields)
	}
}

// Writer returns the child's stdin.
func (t *ProcessTransport) Writer() io.Writer { return t.stdin }

// Reader returns the child's stdout.
func (t *ProcessTransport) Reader() io.Reader { return t.stdout }

// Exited returns a channel closed when the child process terminates.
func (t *ProcessTransport) Exited() <-chan struct{} { return t.exited }

// ExitError returns the child's termination error, if any.
func (t *ProcessTransport) ExitError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitErr
}

// Stop terminates the child: SIGTERM first, SIGKILL after a grace period.
func (t *ProcessTransport) Stop() error {
	t.mu.Lock()
	cmd := t.cmd
	stdin := t.stdin
	started := t.started
	t.mu.Unlock()

	if !started || cmd == nil || cmd.Process == nil {
		return nil
	}

	if stdin != nil {
		stdin.Close()
	}

	select {
	case <-t.exited:
		return nil // already gone
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		t.logger.LogError(err, "Failed to send SIGTERM", nil)
	}

	select {
	case <-t.exited:
	case <-time.After(killGracePeriod):
		t.logger.Log(ports.LogLevelWarn, "Forcing backend process termination", nil)
		if err := cmd.Process.Kill(); err != nil {
			t.logger.LogError(err, "Failed to kill process", nil)
		}
		<-t.exited
	}

	return nil
}
