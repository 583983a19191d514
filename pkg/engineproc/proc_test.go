package engineproc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matbridge/matbridge/pkg/engineproc/protocol"
)

// pipeTransport wires a ProcEngine to an in-process fake worker.
type pipeTransport struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (t *pipeTransport) Start(_ context.Context) (io.WriteCloser, io.ReadCloser, error) {
	return t.stdin, t.stdout, nil
}

func (t *pipeTransport) Close(_ context.Context) error {
	_ = t.stdin.Close()
	_ = t.stdout.Close()
	return nil
}

// fakeWorker speaks the worker side of the protocol. handle is called for
// every command and may respond via the encoder.
type fakeWorker struct {
	dec    *protocol.Decoder
	enc    *protocol.Encoder
	handle func(w *fakeWorker, cmd *protocol.CommandMessage)
}

func (w *fakeWorker) done(commandID string, result interface{}) {
	var raw json.RawMessage
	if result != nil {
		raw, _ = json.Marshal(result)
	}
	_ = w.enc.EncodeDone(&protocol.DoneMessage{CommandID: commandID, Result: raw})
}

func (w *fakeWorker) fail(commandID, identifier, message string) {
	_ = w.enc.EncodeError(&protocol.ErrorMessage{
		CommandID:  commandID,
		Code:       "EVAL_FAILED",
		Identifier: identifier,
		Message:    message,
	})
}

func (w *fakeWorker) run() {
	for {
		cmd, err := w.dec.DecodeCommand()
		if err != nil {
			return
		}
		w.handle(w, cmd)
	}
}

// startEngine builds a ProcEngine connected to a fake worker that sends
// READY and then serves commands with the given handler.
func startEngine(t *testing.T, handler func(w *fakeWorker, cmd *protocol.CommandMessage)) *ProcEngine {
	t.Helper()

	cmdReader, cmdWriter := io.Pipe()
	respReader, respWriter := io.Pipe()

	worker := &fakeWorker{
		dec:    protocol.NewDecoder(cmdReader),
		enc:    protocol.NewEncoder(respWriter),
		handle: handler,
	}

	eng, err := New(Config{
		Transport:      &pipeTransport{stdin: cmdWriter, stdout: respReader},
		StartupTimeout: time.Second,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		_ = worker.enc.EncodeReady(&protocol.ReadyMessage{
			Version:       "1.0",
			EngineName:    "matlab",
			EngineVersion: "R2025a",
			PID:           1234,
		})
		worker.run()
	}()

	if err := eng.Start(t.Context()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(context.Background()) })
	return eng
}

func TestStartReadsReady(t *testing.T) {
	eng := startEngine(t, func(w *fakeWorker, cmd *protocol.CommandMessage) {})
	ready := eng.Ready()
	if ready == nil || ready.EngineName != "matlab" || ready.EngineVersion != "R2025a" {
		t.Errorf("ready message lost: %+v", ready)
	}
}

func TestStartTimesOutWithoutReady(t *testing.T) {
	_, cmdWriter := io.Pipe()
	respReader, _ := io.Pipe()

	eng, err := New(Config{
		Transport:      &pipeTransport{stdin: cmdWriter, stdout: respReader},
		StartupTimeout: 50 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(t.Context()); err == nil {
		t.Error("start should time out when the worker never sends READY")
	}
}

// countingTransport records how many workers were launched.
type countingTransport struct {
	pipeTransport
	starts int32
}

func (t *countingTransport) Start(ctx context.Context) (io.WriteCloser, io.ReadCloser, error) {
	atomic.AddInt32(&t.starts, 1)
	return t.pipeTransport.Start(ctx)
}

func TestStartConcurrentlyLaunchesOneWorker(t *testing.T) {
	cmdReader, cmdWriter := io.Pipe()
	respReader, respWriter := io.Pipe()

	worker := &fakeWorker{
		dec:    protocol.NewDecoder(cmdReader),
		enc:    protocol.NewEncoder(respWriter),
		handle: func(w *fakeWorker, cmd *protocol.CommandMessage) {},
	}
	go func() {
		_ = worker.enc.EncodeReady(&protocol.ReadyMessage{Version: "1.0", EngineName: "matlab"})
		worker.run()
	}()

	tr := &countingTransport{pipeTransport: pipeTransport{stdin: cmdWriter, stdout: respReader}}
	eng, err := New(Config{Transport: tr, StartupTimeout: time.Second}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close(context.Background()) })

	const racers = 4
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- eng.Start(t.Context())
		}()
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		if err == nil {
			ok++
		} else {
			rejected++
		}
	}
	if ok != 1 || rejected != racers-1 {
		t.Errorf("want exactly one winner, got %d ok / %d rejected", ok, rejected)
	}
	if got := atomic.LoadInt32(&tr.starts); got != 1 {
		t.Errorf("want exactly one worker launch, got %d", got)
	}
}

func TestSubmitAndCollect(t *testing.T) {
	eng := startEngine(t, func(w *fakeWorker, cmd *protocol.CommandMessage) {
		if cmd.Type == protocol.CommandTypeEval {
			go func() {
				time.Sleep(30 * time.Millisecond)
				w.done(cmd.ID, &protocol.EvalResult{Output: "ans = 42"})
			}()
		}
	})

	handle, err := eng.Submit(t.Context(), "6*7")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if handle.Done() {
		t.Error("evaluation should not be done immediately")
	}

	deadline := time.Now().Add(time.Second)
	for !handle.Done() {
		if time.Now().After(deadline) {
			t.Fatal("evaluation never finished")
		}
		time.Sleep(2 * time.Millisecond)
	}

	value, err := handle.Collect(t.Context())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	eval, ok := value.(*protocol.EvalResult)
	if !ok || eval.Output != "ans = 42" {
		t.Errorf("unexpected value %#v", value)
	}
}

func TestCollectCarriesEngineErrorText(t *testing.T) {
	eng := startEngine(t, func(w *fakeWorker, cmd *protocol.CommandMessage) {
		if cmd.Type == protocol.CommandTypeEval {
			w.fail(cmd.ID, "MATLAB:UndefinedFunction", "Undefined function 'frob'.")
		}
	})

	handle, err := eng.Submit(t.Context(), "frob(1)")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	_, err = handle.Collect(t.Context())
	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("expected EngineError, got %v", err)
	}
	if engErr.Identifier != "MATLAB:UndefinedFunction" {
		t.Errorf("identifier lost: %q", engErr.Identifier)
	}
	if got := engErr.Error(); got != "MATLAB:UndefinedFunction: Undefined function 'frob'." {
		t.Errorf("unexpected error text %q", got)
	}
}

func TestProbesInterleaveWithPendingEval(t *testing.T) {
	evalStarted := make(chan string, 1)
	release := make(chan struct{})

	eng := startEngine(t, func(w *fakeWorker, cmd *protocol.CommandMessage) {
		switch cmd.Type {
		case protocol.CommandTypeEval:
			evalStarted <- cmd.ID
			go func() {
				<-release
				w.done(cmd.ID, &protocol.EvalResult{})
			}()
		case protocol.CommandTypeProbe:
			w.done(cmd.ID, &protocol.ProbeResult{UptimeSeconds: 1})
		case protocol.CommandTypeDebugQuery:
			w.done(cmd.ID, &protocol.DebugQueryResult{InDebugPause: true, Frame: "frob"})
		case protocol.CommandTypeDesktopQuery:
			w.done(cmd.ID, &protocol.DesktopQueryResult{Visible: false})
		}
	})

	handle, err := eng.Submit(t.Context(), "pause(inf)")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-evalStarted

	// All side-channel queries answer while the eval is outstanding.
	if err := eng.Probe(t.Context()); err != nil {
		t.Errorf("probe failed during pending eval: %v", err)
	}
	inDebug, err := eng.QueryInDebugPause(t.Context())
	if err != nil || !inDebug {
		t.Errorf("debug query failed: %v %v", inDebug, err)
	}
	visible, err := eng.QueryDesktopVisible(t.Context())
	if err != nil || visible {
		t.Errorf("desktop query failed: %v %v", visible, err)
	}
	if handle.Done() {
		t.Error("eval must still be pending")
	}

	close(release)
	if _, err := handle.Collect(t.Context()); err != nil {
		t.Errorf("collect failed: %v", err)
	}
}

func TestProbeHonorsContextDeadline(t *testing.T) {
	eng := startEngine(t, func(w *fakeWorker, cmd *protocol.CommandMessage) {
		// Never answer probes.
	})

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()
	if err := eng.Probe(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestWorkerExitFailsOutstandingCommands(t *testing.T) {
	eng := startEngine(t, func(w *fakeWorker, cmd *protocol.CommandMessage) {
		if cmd.Type == protocol.CommandTypeEval {
			_ = w.enc.EncodeExit(&protocol.ExitMessage{Reason: "crash", ExitCode: 1})
		}
	})

	handle, err := eng.Submit(t.Context(), "x")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := handle.Collect(t.Context()); err == nil {
		t.Error("collect should fail after worker exit")
	}

	// Later submissions are refused outright.
	deadline := time.Now().Add(time.Second)
	for {
		if _, err := eng.Submit(t.Context(), "y"); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("submissions still accepted after worker exit")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestCancelSendsInterrupt(t *testing.T) {
	interrupted := make(chan struct{}, 1)
	eng := startEngine(t, func(w *fakeWorker, cmd *protocol.CommandMessage) {
		switch cmd.Type {
		case protocol.CommandTypeEval:
			// Leave pending.
		case protocol.CommandTypeInterrupt:
			interrupted <- struct{}{}
			w.done(cmd.ID, nil)
		}
	})

	handle, err := eng.Submit(t.Context(), "pause(inf)")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	handle.Cancel()

	select {
	case <-interrupted:
	case <-time.After(time.Second):
		t.Error("interrupt never reached the worker")
	}
}
