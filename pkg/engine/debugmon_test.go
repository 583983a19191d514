package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/matbridge/matbridge/pkg/telemetry"
)

func TestDebugMonitorSwallowsQueryFailures(t *testing.T) {
	eng := &fakeEngine{debugErr: errors.New("query failed")}
	m := NewDebugMonitor(eng, true, telemetry.Noop().Logger)
	state := &executionState{}

	obs := m.Check(context.Background(), state)
	if obs.InDebugPause || obs.ShowedDesktop {
		t.Errorf("a failed query must report nothing, got %+v", obs)
	}
	if state.sawDebugPause {
		t.Error("a failed query must not record a pause")
	}
}

func TestDebugMonitorShowFailureStillLatches(t *testing.T) {
	eng := &fakeEngine{inDebug: true, showErr: errors.New("no display")}
	m := NewDebugMonitor(eng, true, telemetry.Noop().Logger)
	state := &executionState{}

	obs := m.Check(context.Background(), state)
	if !obs.InDebugPause {
		t.Fatal("the pause should still be observed")
	}
	if obs.ShowedDesktop || state.desktopAutoShown {
		t.Error("a failed show must not count as shown")
	}

	// The attempt latched: later ticks never issue the command again,
	// even once it would succeed.
	eng.mu.Lock()
	eng.showErr = nil
	eng.mu.Unlock()

	obs = m.Check(context.Background(), state)
	if obs.ShowedDesktop || state.desktopAutoShown {
		t.Error("a latched execution must not show on later ticks")
	}
	if got := atomic.LoadInt32(&eng.showCalls); got != 1 {
		t.Errorf("expected exactly one show attempt, got %d", got)
	}
}
