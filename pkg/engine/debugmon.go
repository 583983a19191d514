package engine

import (
	"context"

	"github.com/matbridge/matbridge/pkg/telemetry"
)

// DebugMonitor checks for debug pauses on the slow timer and owns the
// show-desktop latch: the desktop is auto-shown at most once per execution,
// and only on observing a debug pause while the desktop is not visible.
type DebugMonitor struct {
	engine   Engine
	autoShow bool
	logger   *telemetry.Logger
}

// NewDebugMonitor creates a DebugMonitor. When autoShow is false the monitor
// still reports debug pauses but never commands the desktop.
func NewDebugMonitor(engine Engine, autoShow bool, logger *telemetry.Logger) *DebugMonitor {
	return &DebugMonitor{
		engine:   engine,
		autoShow: autoShow,
		logger:   logger,
	}
}

// Check queries debug state and, on the first pause observed for this
// execution, shows the desktop if it is not already visible. Query failures
// are swallowed: a debug check must never abandon an execution, so a failed
// query simply reports no pause and the next slow tick retries.
func (m *DebugMonitor) Check(ctx context.Context, state *executionState) DebugObservation {
	inDebug, err := m.engine.QueryInDebugPause(ctx)
	if err != nil {
		m.logger.WithError(err).Debug("debug state query failed, will retry on next tick")
		return DebugObservation{}
	}
	if !inDebug {
		return DebugObservation{}
	}

	state.sawDebugPause = true
	obs := DebugObservation{InDebugPause: true}

	if !m.autoShow || state.desktopSettled {
		return obs
	}

	visible, err := m.engine.QueryDesktopVisible(ctx)
	if err != nil {
		m.logger.WithError(err).Debug("desktop visibility query failed")
		return obs
	}
	if visible {
		// The user already has a desktop; latch so a later hide never
		// triggers a surprise show mid-session.
		state.desktopSettled = true
		return obs
	}

	// Latch on the attempt, not the result: repeated show commands while
	// paused are disruptive, so one try per execution is all we get.
	state.desktopSettled = true
	if err := m.engine.CommandShowDesktop(ctx); err != nil {
		m.logger.WithError(err).Warn("show-desktop command failed")
		return obs
	}

	state.desktopAutoShown = true
	obs.ShowedDesktop = true
	return obs
}
