package engineproc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/matbridge/matbridge/pkg/engine"
	"github.com/matbridge/matbridge/pkg/engineproc/protocol"
)

var _ engine.PendingHandle = (*pendingEval)(nil)

// pendingEval tracks one dispatched evaluation. Done drains the result
// channel without blocking; Collect returns the stored result.
type pendingEval struct {
	engine *ProcEngine
	id     string
	ch     chan commandResult

	mu       sync.Mutex
	resolved bool
	result   commandResult
}

// Done reports whether the evaluation has finished.
func (h *pendingEval) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resolved {
		return true
	}
	select {
	case res := <-h.ch:
		h.resolved = true
		h.result = res
		return true
	default:
		return false
	}
}

// Collect returns the evaluation result, blocking until it arrives if Done
// has not reported true yet. On success the value is the worker's EvalResult.
func (h *pendingEval) Collect(ctx context.Context) (any, error) {
	h.mu.Lock()
	if !h.resolved {
		h.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-h.ch:
			h.mu.Lock()
			h.resolved = true
			h.result = res
		}
	}
	res := h.result
	h.mu.Unlock()

	if res.err != nil {
		return nil, res.err
	}
	if len(res.data) == 0 {
		return nil, nil
	}
	var eval protocol.EvalResult
	if err := json.Unmarshal(res.data, &eval); err != nil {
		return nil, err
	}
	return &eval, nil
}

// Cancel makes a best-effort attempt to interrupt the evaluation.
func (h *pendingEval) Cancel() {
	ctx, cancel := context.WithTimeout(context.Background(), h.engine.config.InterruptTimeout)
	defer cancel()
	if _, err := h.engine.call(ctx, protocol.CommandTypeInterrupt, nil); err != nil {
		h.engine.logger.WithError(err).Debug("interrupt failed")
	}
}
