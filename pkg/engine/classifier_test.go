package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClassifyDirectSuccess(t *testing.T) {
	state := &executionState{id: "e1", startedAt: time.Now().Add(-time.Second)}
	handle := &fakeHandle{value: "ans = 3"}

	outcome, err := classify(context.Background(), handle, state, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != StatusOk || outcome.Classification != ClassificationDirect {
		t.Errorf("expected ok/direct, got %s/%s", outcome.Status, outcome.Classification)
	}
	if outcome.Value != "ans = 3" {
		t.Errorf("value not carried through: %v", outcome.Value)
	}
	if outcome.Duration <= 0 {
		t.Errorf("duration should be positive, got %v", outcome.Duration)
	}
}

func TestClassifyErrorWithoutDebugPause(t *testing.T) {
	engineErr := errors.New("Index exceeds the number of array elements (3).")
	state := &executionState{id: "e2", startedAt: time.Now()}
	handle := &fakeHandle{err: engineErr}

	outcome, err := classify(context.Background(), handle, state, time.Now())
	if !IsExecution(err) {
		t.Fatalf("expected execution-class error, got %v", err)
	}
	if outcome.Status != StatusError || outcome.Classification != ClassificationDirect {
		t.Errorf("expected error/direct, got %s/%s", outcome.Status, outcome.Classification)
	}
	if outcome.ErrorDetail != engineErr.Error() {
		t.Errorf("engine text not preserved: %q", outcome.ErrorDetail)
	}
}

func TestClassifyErrorAfterDebugPause(t *testing.T) {
	engineErr := errors.New("Operation terminated by user")
	state := &executionState{id: "e3", sawDebugPause: true, startedAt: time.Now()}
	handle := &fakeHandle{err: engineErr}

	outcome, err := classify(context.Background(), handle, state, time.Now())
	if err != nil {
		t.Fatalf("post-debug error must be reclassified, got %v", err)
	}
	if outcome.Status != StatusOk {
		t.Errorf("expected ok, got %s", outcome.Status)
	}
	if outcome.Classification != ClassificationReclassifiedAfterDebug {
		t.Errorf("expected reclassified_after_debug, got %s", outcome.Classification)
	}
	if outcome.ErrorDetail != engineErr.Error() {
		t.Errorf("engine text should remain on the outcome: %q", outcome.ErrorDetail)
	}
	if outcome.Value != nil {
		t.Errorf("a reclassified outcome carries no value, got %v", outcome.Value)
	}
}

func TestClassifySuccessAfterDebugPauseStaysDirect(t *testing.T) {
	// A clean finish after debugging is an ordinary success; the pause
	// alone never changes classification.
	state := &executionState{id: "e4", sawDebugPause: true, startedAt: time.Now()}
	handle := &fakeHandle{value: 1}

	outcome, err := classify(context.Background(), handle, state, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Classification != ClassificationDirect {
		t.Errorf("clean success should stay direct, got %s", outcome.Classification)
	}
	if !outcome.SawDebugPause {
		t.Error("the pause observation should still be reported")
	}
}
