package engine

import (
	"context"
	"time"
)

// Engine is the handle on a long-lived external computational engine. The
// supervisor drives every execution through this interface; it never blocks
// on the engine's own completion signal and relies on PendingHandle polling
// instead.
type Engine interface {
	// Submit dispatches code to the engine for asynchronous execution.
	// It returns immediately with a handle to the pending request, or a
	// dispatch-class error if the engine rejected the submission outright.
	Submit(ctx context.Context, code string) (PendingHandle, error)

	// Probe issues a trivial request to check engine responsiveness. It
	// returns nil if the engine answered within the deadline carried by ctx.
	Probe(ctx context.Context) error

	// QueryInDebugPause reports whether the engine is currently paused at
	// a debug breakpoint.
	QueryInDebugPause(ctx context.Context) (bool, error)

	// QueryDesktopVisible reports whether the engine's interactive desktop
	// is currently visible.
	QueryDesktopVisible(ctx context.Context) (bool, error)

	// CommandShowDesktop asks the engine to open its interactive desktop.
	// The call is fire-and-forget on the engine side.
	CommandShowDesktop(ctx context.Context) error
}

// PendingHandle tracks a single dispatched execution.
type PendingHandle interface {
	// Done reports whether the execution has finished, without blocking
	// and without retrieving the result.
	Done() bool

	// Collect retrieves the result of the finished execution. Calling
	// Collect before Done reports true is undefined. The returned error,
	// if any, carries the engine's own error text.
	Collect(ctx context.Context) (any, error)

	// Cancel makes a best-effort attempt to interrupt the execution.
	Cancel()
}

// ExecutionRecord is one row of execution history.
type ExecutionRecord struct {
	ID               string        `json:"id"`
	Code             string        `json:"code"`
	Status           Status        `json:"status"`
	Classification   Classification `json:"classification"`
	ErrorClass       string        `json:"error_class,omitempty"`
	ErrorDetail      string        `json:"error_detail,omitempty"`
	SawDebugPause    bool          `json:"saw_debug_pause"`
	DesktopAutoShown bool          `json:"desktop_auto_shown"`
	ProbeFailures    int           `json:"probe_failures"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Duration         time.Duration `json:"duration"`
}

// HistoryRecorder persists finished executions. The supervisor treats
// recording as best-effort; a recorder failure never changes an outcome.
type HistoryRecorder interface {
	RecordExecution(ctx context.Context, rec *ExecutionRecord) error
}
