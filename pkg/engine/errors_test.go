package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestBridgeErrorFormatting(t *testing.T) {
	base := errors.New("socket closed")
	err := NewUnresponsiveError("engine stopped responding", base).
		WithCode(ErrCodeProbeTimeout).
		WithExecutionID("abc-123")

	msg := err.Error()
	for _, want := range []string{"unresponsive", "engine stopped responding", "abc-123", "socket closed"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}

func TestBridgeErrorUnwrap(t *testing.T) {
	base := errors.New("root cause")
	wrapped := fmt.Errorf("context: %w", NewDispatchError("failed", base))

	if !errors.Is(wrapped, base) {
		t.Error("base error should be reachable through the chain")
	}
	var berr *BridgeError
	if !errors.As(wrapped, &berr) || berr.Class != ErrorClassDispatch {
		t.Errorf("expected dispatch BridgeError in chain, got %v", wrapped)
	}
}

func TestBridgeErrorIsMatchesClassAndCode(t *testing.T) {
	err := NewDispatchError("busy", nil).WithCode(ErrCodeBusy)

	if !errors.Is(err, &BridgeError{Class: ErrorClassDispatch}) {
		t.Error("class-only target should match")
	}
	if !errors.Is(err, &BridgeError{Class: ErrorClassDispatch, Code: ErrCodeBusy}) {
		t.Error("class+code target should match")
	}
	if errors.Is(err, &BridgeError{Class: ErrorClassDispatch, Code: ErrCodeEngineGone}) {
		t.Error("mismatched code must not match")
	}
	if errors.Is(err, &BridgeError{Class: ErrorClassExecution}) {
		t.Error("mismatched class must not match")
	}
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		err  error
		pred func(error) bool
		want bool
	}{
		{NewDispatchError("x", nil), IsDispatch, true},
		{NewUnresponsiveError("x", nil), IsUnresponsive, true},
		{NewExecutionError("x", nil), IsExecution, true},
		{NewDispatchError("x", nil).WithCode(ErrCodeBusy), IsBusy, true},
		{NewExecutionError("x", nil), IsDispatch, false},
		{errors.New("plain"), IsUnresponsive, false},
		{nil, IsExecution, false},
	}
	for i, tc := range cases {
		if got := tc.pred(tc.err); got != tc.want {
			t.Errorf("case %d: got %v, want %v", i, got, tc.want)
		}
	}
}
