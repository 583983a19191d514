// Package transport provides ways to start an engine worker process and
// attach to its standard streams. The local transport spawns the worker
// directly; the SSH transport uploads it to a remote host and runs it there.
package transport

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/matbridge/matbridge/pkg/telemetry"
)

// Transport starts the engine worker and exposes its stdio.
type Transport interface {
	// Start launches the worker and returns its stdin and stdout. The
	// returned streams stay valid after ctx is done; ctx bounds only the
	// startup itself.
	Start(ctx context.Context) (stdin io.WriteCloser, stdout io.ReadCloser, err error)

	// Close terminates the worker and releases transport resources.
	Close(ctx context.Context) error
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "start", "upload", "connect")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// LocalConfig configures a local worker process.
type LocalConfig struct {
	// Command is the worker executable.
	Command string

	// Args are passed to the worker verbatim.
	Args []string

	// WorkDir is the worker's working directory. Empty means inherit.
	WorkDir string

	// Env is appended to the inherited environment, as KEY=VALUE pairs.
	Env []string

	// ShutdownGrace is how long to wait after closing stdin before the
	// process is killed.
	ShutdownGrace time.Duration
}

// Validate checks if the configuration is valid.
func (c *LocalConfig) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

// Local runs the engine worker as a child process.
type Local struct {
	config LocalConfig
	logger *telemetry.Logger
	cmd    *exec.Cmd
}

// NewLocal creates a local transport. logger may be nil.
func NewLocal(config LocalConfig, logger *telemetry.Logger) (*Local, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = 5 * time.Second
	}
	if logger == nil {
		logger = telemetry.Noop().Logger
	}
	return &Local{
		config: config,
		logger: logger.WithField("transport", "local"),
	}, nil
}

// Start launches the worker process and returns its stdio.
func (t *Local) Start(ctx context.Context) (io.WriteCloser, io.ReadCloser, error) {
	if t.cmd != nil {
		return nil, nil, &TransportError{Op: "start", Err: fmt.Errorf("worker already started")}
	}

	cmd := exec.Command(t.config.Command, t.config.Args...)
	cmd.Dir = t.config.WorkDir
	if len(t.config.Env) > 0 {
		cmd.Env = append(cmd.Environ(), t.config.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, &TransportError{Op: "start", Err: fmt.Errorf("failed to create stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, &TransportError{Op: "start", Err: fmt.Errorf("failed to create stdout pipe: %w", err)}
	}
	// Worker stderr is diagnostic only; drain it into the log.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, &TransportError{Op: "start", Err: fmt.Errorf("failed to create stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, &TransportError{
			Op:          "start",
			Err:         fmt.Errorf("failed to start worker: %w", err),
			IsTemporary: true,
		}
	}

	t.cmd = cmd
	t.logger.WithField("pid", cmd.Process.Pid).
		WithField("command", t.config.Command).
		Info("engine worker started")

	go t.drainStderr(stderr)

	return stdin, stdout, nil
}

func (t *Local) drainStderr(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			t.logger.WithField("stream", "stderr").Debug(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// Close terminates the worker, escalating from SIGTERM to SIGKILL after the
// shutdown grace period.
func (t *Local) Close(ctx context.Context) error {
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}

	_ = t.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- t.cmd.Wait()
	}()

	grace := time.NewTimer(t.config.ShutdownGrace)
	defer grace.Stop()

	select {
	case <-done:
	case <-grace.C:
		t.logger.Warn("worker did not exit in time, killing")
		_ = t.cmd.Process.Kill()
		<-done
	case <-ctx.Done():
		_ = t.cmd.Process.Kill()
		<-done
	}

	t.cmd = nil
	return nil
}
