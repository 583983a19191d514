// Package telemetry provides observability instrumentation for matbridge.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and the diagnostic event
// stream into a unified system for monitoring supervised executions.
//
// The event stream deserves a note: it is not an audit log. It is the
// human-readable side channel the supervisor uses to narrate an execution's
// state transitions (dispatched, probing, debug pause observed, reclassified,
// resolved) so an operator can tell a genuine user error apart from a
// resolving debug session while the execution is still in progress. It is
// toggled per supervisor, not process-wide.
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
package telemetry
