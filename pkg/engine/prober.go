package engine

import (
	"context"
	"time"
)

// Prober runs bounded responsiveness probes and tracks the consecutive
// failure streak. A probe that succeeds resets the streak; the engine is
// declared unresponsive only after FailureThreshold consecutive failures,
// so a single slow answer never abandons an execution.
type Prober struct {
	engine    Engine
	timeout   time.Duration
	threshold int
	streak    int
}

// NewProber creates a Prober over the given engine. A non-positive timeout
// or threshold falls back to the supervisor defaults.
func NewProber(engine Engine, timeout time.Duration, threshold int) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if threshold <= 0 {
		threshold = DefaultProbeFailureThreshold
	}
	return &Prober{
		engine:    engine,
		timeout:   timeout,
		threshold: threshold,
	}
}

// Probe issues one bounded responsiveness check and updates the streak.
func (p *Prober) Probe(ctx context.Context) ProbeOutcome {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := p.engine.Probe(probeCtx)
	elapsed := time.Since(start)

	if err != nil {
		p.streak++
		return ProbeOutcome{
			Responsive: false,
			Streak:     p.streak,
			Duration:   elapsed,
			Err:        err,
		}
	}

	p.streak = 0
	return ProbeOutcome{
		Responsive: true,
		Streak:     0,
		Duration:   elapsed,
	}
}

// Exhausted reports whether the consecutive failure streak has reached the
// threshold.
func (p *Prober) Exhausted() bool {
	return p.streak >= p.threshold
}

// Streak returns the current consecutive failure streak.
func (p *Prober) Streak() int {
	return p.streak
}

// Reset clears the failure streak. The supervisor calls it at the start of
// each execution so stale failures from a previous run never count against
// a new one.
func (p *Prober) Reset() {
	p.streak = 0
}
