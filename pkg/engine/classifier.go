package engine

import (
	"context"
	"time"
)

// classify collects the result of a finished execution and resolves its
// terminal status. An engine error observed after a debug pause is treated
// as an artifact of the interactive debug session and reclassified as
// success; the engine's error text is preserved on the outcome for
// auditability.
func classify(ctx context.Context, handle PendingHandle, state *executionState, finished time.Time) (*ExecutionOutcome, error) {
	value, err := handle.Collect(ctx)

	outcome := &ExecutionOutcome{
		ExecutionID:      state.id,
		SawDebugPause:    state.sawDebugPause,
		DesktopAutoShown: state.desktopAutoShown,
		ProbeFailures:    state.probeFailures,
		StartedAt:        state.startedAt,
		FinishedAt:       finished,
		Duration:         finished.Sub(state.startedAt),
	}

	if err == nil {
		outcome.Status = StatusOk
		outcome.Classification = ClassificationDirect
		outcome.Value = value
		return outcome, nil
	}

	if state.sawDebugPause {
		outcome.Status = StatusOk
		outcome.Classification = ClassificationReclassifiedAfterDebug
		outcome.ErrorDetail = err.Error()
		return outcome, nil
	}

	outcome.Status = StatusError
	outcome.Classification = ClassificationDirect
	outcome.ErrorDetail = err.Error()
	return outcome, NewExecutionError("engine reported an error", err).
		WithCode(ErrCodeCollectFailed).
		WithExecutionID(state.id)
}
