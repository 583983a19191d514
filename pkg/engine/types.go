package engine

import "time"

// Status is the terminal status of an execution.
type Status string

const (
	StatusOk    Status = "ok"
	StatusError Status = "error"
)

// Classification records how the terminal status was reached.
type Classification string

const (
	// ClassificationDirect means the outcome is exactly what the engine
	// reported.
	ClassificationDirect Classification = "direct"

	// ClassificationReclassifiedAfterDebug means the engine reported an
	// error but a debug pause was observed during the execution, so the
	// error was treated as a benign artifact of the debug session.
	ClassificationReclassifiedAfterDebug Classification = "reclassified_after_debug"
)

// ExecutionOutcome is the resolved result of one supervised execution.
type ExecutionOutcome struct {
	ExecutionID    string         `json:"execution_id"`
	Status         Status         `json:"status"`
	Classification Classification `json:"classification"`

	// Value is the collected result when Status is ok and the engine
	// produced one. It is nil for reclassified outcomes.
	Value any `json:"value,omitempty"`

	// ErrorDetail preserves the engine's error text. It is set for error
	// outcomes and, for auditability, also for reclassified successes.
	ErrorDetail string `json:"error_detail,omitempty"`

	SawDebugPause    bool          `json:"saw_debug_pause"`
	DesktopAutoShown bool          `json:"desktop_auto_shown"`
	ProbeFailures    int           `json:"probe_failures"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Duration         time.Duration `json:"duration"`
}

// ProbeOutcome is the result of one responsiveness probe.
type ProbeOutcome struct {
	Responsive bool
	Streak     int
	Duration   time.Duration
	Err        error
}

// DebugObservation is the result of one slow-timer debug check.
type DebugObservation struct {
	InDebugPause  bool
	ShowedDesktop bool
}

// executionState is the supervisor's per-execution mutable state. It exists
// for exactly one RunOnce call and is never shared across executions.
type executionState struct {
	id               string
	code             string
	sawDebugPause    bool
	desktopAutoShown bool
	desktopSettled   bool
	probeFailures    int
	startedAt        time.Time
}

func (s *executionState) record(status Status, classification Classification, errDetail string, finished time.Time) *ExecutionRecord {
	return &ExecutionRecord{
		ID:               s.id,
		Code:             s.code,
		Status:           status,
		Classification:   classification,
		ErrorDetail:      errDetail,
		SawDebugPause:    s.sawDebugPause,
		DesktopAutoShown: s.desktopAutoShown,
		ProbeFailures:    s.probeFailures,
		StartedAt:        s.startedAt,
		FinishedAt:       finished,
		Duration:         finished.Sub(s.startedAt),
	}
}
