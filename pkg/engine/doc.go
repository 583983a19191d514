// Package engine implements the matbridge execution supervisor: the component
// that dispatches user code to a long-lived computational engine without
// blocking the host, senses the engine's liveness and debug state while the
// work is outstanding, and reconciles an eventually-raised error against that
// history to produce a single classified outcome.
//
// The engine executes requests synchronously from its own point of view, but a
// request may enter an interactive debug pause that holds the underlying call
// open indefinitely. Exiting that pause can surface a terminal error on the
// original call even though the user's intent (quit debugging) was satisfied.
// The supervisor's job is to tell those two situations apart.
//
// The supervisor runs one execution at a time through a small state machine:
//
//	Dispatched -> Polling -> DebugObserved -> Completing -> Resolved
//
// Two independent timers drive it. A fast timer checks only whether the
// pending handle is done. A slow timer probes engine responsiveness and, when
// the engine answers, queries its debug state. Completion detection is never
// gated on probing: a probe can legitimately be slow or fail during a debug
// pause, and the execution must still resolve promptly once the handle is done.
package engine
