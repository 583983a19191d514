// Package engineproc implements the engine interface over a worker process
// speaking the JSON-over-stdio protocol. One worker serves one engine; the
// package multiplexes concurrent commands (a pending eval plus probes and
// debug queries) over the single stream by command ID.
package engineproc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matbridge/matbridge/pkg/engine"
	"github.com/matbridge/matbridge/pkg/engineproc/protocol"
	"github.com/matbridge/matbridge/pkg/engineproc/transport"
	"github.com/matbridge/matbridge/pkg/telemetry"
)

// EngineError carries the engine's own error report for a failed command.
// Message and Identifier are verbatim from the engine.
type EngineError struct {
	Code       string
	Identifier string
	Message    string
}

func (e *EngineError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("%s: %s", e.Identifier, e.Message)
	}
	return e.Message
}

// Config configures a ProcEngine.
type Config struct {
	// Transport starts the worker process.
	Transport transport.Transport

	// StartupTimeout bounds the wait for the worker's READY message.
	StartupTimeout time.Duration

	// InterruptTimeout bounds the best-effort interrupt sent by Cancel.
	InterruptTimeout time.Duration

	// ExportFigures controls figure export on each evaluation: "inline",
	// "file", or empty for none.
	ExportFigures string

	// ExportDir receives figure files when ExportFigures is "file".
	ExportDir string
}

// commandResult is what the reader loop routes to a waiting command.
type commandResult struct {
	data json.RawMessage
	err  error
}

// ProcEngine is a process-backed engine. It satisfies engine.Engine.
type ProcEngine struct {
	config  Config
	logger  *telemetry.Logger
	encoder *protocol.Encoder
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	ready   *protocol.ReadyMessage

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan commandResult
	started  bool
	starting bool
	closed   bool
	fatal    error
}

var _ engine.Engine = (*ProcEngine)(nil)

// New creates a ProcEngine over the given transport. logger may be nil.
func New(cfg Config, logger *telemetry.Logger) (*ProcEngine, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 60 * time.Second
	}
	if cfg.InterruptTimeout <= 0 {
		cfg.InterruptTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = telemetry.Noop().Logger
	}
	return &ProcEngine{
		config:  cfg,
		logger:  logger.WithField("component", "engineproc"),
		pending: make(map[string]chan commandResult),
	}, nil
}

// Start launches the worker, waits for its READY message, and begins
// routing responses.
func (p *ProcEngine) Start(ctx context.Context) error {
	// Claim the startup atomically so concurrent Start calls cannot both
	// launch a worker and race on the stream fields.
	p.mu.Lock()
	if p.started || p.starting {
		p.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	p.starting = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.starting = false
		p.mu.Unlock()
	}()

	stdin, stdout, err := p.config.Transport.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	decoder := protocol.NewDecoder(stdout)

	readyCtx, cancel := context.WithTimeout(ctx, p.config.StartupTimeout)
	defer cancel()

	readyCh := make(chan *protocol.ReadyMessage, 1)
	errCh := make(chan error, 1)

	go func() {
		msg, err := decoder.Decode()
		if err != nil {
			errCh <- err
			return
		}
		if msg.Type != protocol.MessageTypeReady {
			errCh <- fmt.Errorf("expected READY, got %s", msg.Type)
			return
		}
		var ready protocol.ReadyMessage
		if err := protocol.ParseData(msg.Data, &ready); err != nil {
			errCh <- err
			return
		}
		readyCh <- &ready
	}()

	select {
	case <-readyCtx.Done():
		_ = stdin.Close()
		_ = stdout.Close()
		return fmt.Errorf("timeout waiting for READY message")
	case err := <-errCh:
		_ = stdin.Close()
		_ = stdout.Close()
		return fmt.Errorf("failed to receive READY: %w", err)
	case ready := <-readyCh:
		p.mu.Lock()
		p.stdin = stdin
		p.stdout = stdout
		p.encoder = protocol.NewEncoder(stdin)
		p.ready = ready
		p.started = true
		p.mu.Unlock()

		p.logger.WithField("engine", ready.EngineName).
			WithField("engine_version", ready.EngineVersion).
			WithField("worker_pid", ready.PID).
			Info("engine worker ready")

		go p.readLoop(decoder)
		return nil
	}
}

// Ready returns the READY message received during startup, or nil if the
// engine has not started.
func (p *ProcEngine) Ready() *protocol.ReadyMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// readLoop is the single reader of the worker's stdout. It routes DONE and
// ERROR messages to the command that issued them and logs EVENT output.
// On EXIT or stream failure it fails every outstanding command.
func (p *ProcEngine) readLoop(decoder *protocol.Decoder) {
	for {
		msg, err := decoder.Decode()
		if err != nil {
			if err == io.EOF {
				p.failAll(fmt.Errorf("worker closed the stream"))
			} else {
				p.failAll(fmt.Errorf("worker stream error: %w", err))
			}
			return
		}

		switch msg.Type {
		case protocol.MessageTypeDone:
			var done protocol.DoneMessage
			if err := protocol.ParseData(msg.Data, &done); err != nil {
				p.logger.WithError(err).Warn("malformed DONE message")
				continue
			}
			p.route(done.CommandID, commandResult{data: done.Result})

		case protocol.MessageTypeError:
			var errMsg protocol.ErrorMessage
			if err := protocol.ParseData(msg.Data, &errMsg); err != nil {
				p.logger.WithError(err).Warn("malformed ERROR message")
				continue
			}
			p.route(errMsg.CommandID, commandResult{err: &EngineError{
				Code:       errMsg.Code,
				Identifier: errMsg.Identifier,
				Message:    errMsg.Message,
			}})

		case protocol.MessageTypeEvent:
			var event protocol.EventMessage
			if err := protocol.ParseData(msg.Data, &event); err != nil {
				p.logger.WithError(err).Warn("malformed EVENT message")
				continue
			}
			p.logger.WithField("command_id", event.CommandID).
				WithField("stream", event.Stream).
				Debug(event.Text)

		case protocol.MessageTypeExit:
			var exit protocol.ExitMessage
			if err := protocol.ParseData(msg.Data, &exit); err == nil {
				p.logger.WithField("reason", exit.Reason).
					WithField("exit_code", exit.ExitCode).
					Info("worker exiting")
			}
			p.failAll(fmt.Errorf("worker exited"))
			return

		default:
			p.logger.WithField("type", string(msg.Type)).Warn("unexpected message from worker")
		}
	}
}

// route delivers a result to the command waiting on it. An unknown ID means
// the waiter gave up (ctx done); the result is dropped.
func (p *ProcEngine) route(commandID string, res commandResult) {
	p.mu.Lock()
	ch, ok := p.pending[commandID]
	if ok {
		delete(p.pending, commandID)
	}
	p.mu.Unlock()
	if ok {
		ch <- res
	}
}

// failAll fails every outstanding command and marks the engine dead.
func (p *ProcEngine) failAll(cause error) {
	p.mu.Lock()
	p.fatal = cause
	pending := p.pending
	p.pending = make(map[string]chan commandResult)
	p.mu.Unlock()

	for _, ch := range pending {
		ch <- commandResult{err: cause}
	}
}

// send registers a waiter and writes one command to the worker.
func (p *ProcEngine) send(cmdType protocol.CommandType, params interface{}) (string, chan commandResult, error) {
	p.mu.Lock()
	if !p.started || p.closed {
		p.mu.Unlock()
		return "", nil, fmt.Errorf("engine not running")
	}
	if p.fatal != nil {
		err := p.fatal
		p.mu.Unlock()
		return "", nil, fmt.Errorf("engine worker is gone: %w", err)
	}
	id := uuid.New().String()
	ch := make(chan commandResult, 1)
	p.pending[id] = ch
	p.mu.Unlock()

	var rawParams json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			p.forget(id)
			return "", nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		rawParams = b
	}

	cmd := &protocol.CommandMessage{
		ID:     id,
		Type:   cmdType,
		Params: rawParams,
	}

	p.writeMu.Lock()
	err := p.encoder.EncodeCommand(cmd)
	p.writeMu.Unlock()
	if err != nil {
		p.forget(id)
		return "", nil, fmt.Errorf("failed to send command: %w", err)
	}
	return id, ch, nil
}

func (p *ProcEngine) forget(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

// call sends a command and waits for its result or ctx.
func (p *ProcEngine) call(ctx context.Context, cmdType protocol.CommandType, params interface{}) (json.RawMessage, error) {
	id, ch, err := p.send(cmdType, params)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		p.forget(id)
		return nil, ctx.Err()
	case res := <-ch:
		return res.data, res.err
	}
}

// Submit dispatches code for asynchronous evaluation.
func (p *ProcEngine) Submit(_ context.Context, code string) (engine.PendingHandle, error) {
	id, ch, err := p.send(protocol.CommandTypeEval, &protocol.EvalParams{
		Code:          code,
		CaptureOutput: true,
		ExportFigures: p.config.ExportFigures,
		ExportDir:     p.config.ExportDir,
	})
	if err != nil {
		return nil, err
	}
	return &pendingEval{engine: p, id: id, ch: ch}, nil
}

// Probe checks engine responsiveness with a trivial request.
func (p *ProcEngine) Probe(ctx context.Context) error {
	_, err := p.call(ctx, protocol.CommandTypeProbe, nil)
	return err
}

// QueryInDebugPause reports whether the engine is paused at a breakpoint.
func (p *ProcEngine) QueryInDebugPause(ctx context.Context) (bool, error) {
	data, err := p.call(ctx, protocol.CommandTypeDebugQuery, nil)
	if err != nil {
		return false, err
	}
	var result protocol.DebugQueryResult
	if err := protocol.ParseData(data, &result); err != nil {
		return false, err
	}
	return result.InDebugPause, nil
}

// QueryDesktopVisible reports whether the engine desktop is visible.
func (p *ProcEngine) QueryDesktopVisible(ctx context.Context) (bool, error) {
	data, err := p.call(ctx, protocol.CommandTypeDesktopQuery, nil)
	if err != nil {
		return false, err
	}
	var result protocol.DesktopQueryResult
	if err := protocol.ParseData(data, &result); err != nil {
		return false, err
	}
	return result.Visible, nil
}

// CommandShowDesktop asks the engine to open its desktop.
func (p *ProcEngine) CommandShowDesktop(ctx context.Context) error {
	_, err := p.call(ctx, protocol.CommandTypeDesktopShow, nil)
	return err
}

// Close shuts down the worker. Outstanding commands fail with a worker-gone
// error once the stream closes.
func (p *ProcEngine) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	stdin := p.stdin
	p.mu.Unlock()

	// Closing stdin signals the worker to exit.
	if stdin != nil {
		_ = stdin.Close()
	}
	return p.config.Transport.Close(ctx)
}
