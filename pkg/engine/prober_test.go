package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProberStreakAndReset(t *testing.T) {
	eng := &fakeEngine{probeErr: errors.New("busy")}
	p := NewProber(eng, 50*time.Millisecond, 3)

	for i := 1; i <= 2; i++ {
		out := p.Probe(context.Background())
		if out.Responsive {
			t.Fatalf("probe %d should have failed", i)
		}
		if out.Streak != i {
			t.Errorf("expected streak %d, got %d", i, out.Streak)
		}
	}
	if p.Exhausted() {
		t.Error("two failures must not exhaust a threshold of three")
	}

	eng.mu.Lock()
	eng.probeErr = nil
	eng.mu.Unlock()

	out := p.Probe(context.Background())
	if !out.Responsive || out.Streak != 0 {
		t.Errorf("a successful probe should reset the streak, got %+v", out)
	}

	eng.mu.Lock()
	eng.probeErr = errors.New("busy again")
	eng.mu.Unlock()

	for i := 0; i < 3; i++ {
		p.Probe(context.Background())
	}
	if !p.Exhausted() {
		t.Errorf("three consecutive failures should exhaust the threshold, streak=%d", p.Streak())
	}

	p.Reset()
	if p.Streak() != 0 || p.Exhausted() {
		t.Error("reset should clear the streak")
	}
}

func TestProberBoundsEachProbe(t *testing.T) {
	eng := &fakeEngine{probeBlock: time.Second}
	p := NewProber(eng, 20*time.Millisecond, 3)

	start := time.Now()
	out := p.Probe(context.Background())
	if out.Responsive {
		t.Error("a probe past the deadline must count as a failure")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("probe was not bounded, took %v", elapsed)
	}
	if !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", out.Err)
	}
}

func TestProberDefaults(t *testing.T) {
	p := NewProber(&fakeEngine{}, 0, 0)
	if p.timeout != DefaultProbeTimeout {
		t.Errorf("expected default timeout, got %v", p.timeout)
	}
	if p.threshold != DefaultProbeFailureThreshold {
		t.Errorf("expected default threshold, got %d", p.threshold)
	}
}
