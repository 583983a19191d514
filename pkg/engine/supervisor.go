package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/matbridge/matbridge/pkg/telemetry"
)

// Default supervisor timings.
const (
	DefaultFastPollInterval      = 100 * time.Millisecond
	DefaultSlowProbeInterval     = 2 * time.Second
	DefaultProbeTimeout          = 500 * time.Millisecond
	DefaultProbeFailureThreshold = 5
)

// Config configures a Supervisor.
type Config struct {
	// FastPollInterval is how often the fast timer checks whether the
	// pending handle is done. The fast check does nothing else.
	FastPollInterval time.Duration

	// SlowProbeInterval is how often the slow timer probes engine
	// responsiveness and queries debug state.
	SlowProbeInterval time.Duration

	// ProbeTimeout bounds each individual responsiveness probe.
	ProbeTimeout time.Duration

	// ProbeFailureThreshold is the number of consecutive probe failures
	// after which the engine is declared unresponsive.
	ProbeFailureThreshold int

	// AutoShowDesktop enables showing the engine desktop on the first
	// observed debug pause of an execution.
	AutoShowDesktop bool

	// Diagnostics enables the per-transition event narration on the
	// supervisor's event stream.
	Diagnostics bool
}

// DefaultSupervisorConfig returns a Config with the standard timings.
func DefaultSupervisorConfig() Config {
	return Config{
		FastPollInterval:      DefaultFastPollInterval,
		SlowProbeInterval:     DefaultSlowProbeInterval,
		ProbeTimeout:          DefaultProbeTimeout,
		ProbeFailureThreshold: DefaultProbeFailureThreshold,
		AutoShowDesktop:       true,
	}
}

func (c *Config) applyDefaults() {
	if c.FastPollInterval <= 0 {
		c.FastPollInterval = DefaultFastPollInterval
	}
	if c.SlowProbeInterval <= 0 {
		c.SlowProbeInterval = DefaultSlowProbeInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.ProbeFailureThreshold <= 0 {
		c.ProbeFailureThreshold = DefaultProbeFailureThreshold
	}
}

// Supervisor drives executions against a single engine. It enforces a
// single-flight discipline: at most one execution is supervised at a time,
// and a concurrent RunOnce is rejected with a busy error rather than queued.
type Supervisor struct {
	engine  Engine
	config  Config
	prober  *Prober
	monitor *DebugMonitor
	history HistoryRecorder
	tel     *telemetry.Telemetry
	logger  *telemetry.Logger

	inFlight    atomic.Bool
	diagnostics atomic.Bool
}

// NewSupervisor creates a Supervisor over the given engine. history may be
// nil to disable persistence; tel may be nil for a fully quiet supervisor.
func NewSupervisor(engine Engine, config Config, history HistoryRecorder, tel *telemetry.Telemetry) *Supervisor {
	config.applyDefaults()
	if tel == nil {
		tel = telemetry.Noop()
	}
	logger := tel.Logger.WithField("component", "supervisor")
	s := &Supervisor{
		engine:  engine,
		config:  config,
		prober:  NewProber(engine, config.ProbeTimeout, config.ProbeFailureThreshold),
		monitor: NewDebugMonitor(engine, config.AutoShowDesktop, logger),
		history: history,
		tel:     tel,
		logger:  logger,
	}
	s.diagnostics.Store(config.Diagnostics)
	return s
}

// SetDiagnostics toggles the diagnostic event narration at runtime. Safe to
// call while an execution is in flight; the next transition honors it.
func (s *Supervisor) SetDiagnostics(enabled bool) {
	s.diagnostics.Store(enabled)
}

// RunOnce dispatches code and supervises it to resolution. It returns the
// resolved outcome, or an error when the execution could not be resolved:
// dispatch-class when submission failed or another execution is in flight,
// unresponsive-class when the probe failure threshold was reached,
// execution-class when the engine reported an error with no debug pause
// observed, internal-class when ctx was canceled mid-flight.
func (s *Supervisor) RunOnce(ctx context.Context, code string) (*ExecutionOutcome, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, NewDispatchError("an execution is already in flight", nil).
			WithCode(ErrCodeBusy)
	}
	defer s.inFlight.Store(false)

	state := &executionState{
		id:        uuid.New().String(),
		code:      code,
		startedAt: time.Now(),
	}
	s.prober.Reset()

	ctx, span := s.tel.Tracer.StartExecutionSpan(ctx, state.id)
	defer span.End()

	logger := s.logger.WithExecutionID(state.id)
	logger.Debug("dispatching execution")

	handle, err := s.engine.Submit(ctx, code)
	if err != nil {
		derr := NewDispatchError("engine rejected submission", err).
			WithExecutionID(state.id)
		telemetry.RecordError(span, derr)
		s.tel.Metrics.RecordError(string(ErrorClassDispatch))
		logger.WithError(derr).Error("dispatch failed")
		return nil, derr
	}

	s.tel.Metrics.RecordExecutionStarted()
	if s.diagnostics.Load() {
		s.tel.Events.PublishDispatched(state.id)
	}

	outcome, runErr := s.poll(ctx, handle, state, logger)

	// An execution-class error still resolved: the engine answered, it just
	// answered with an error. Only dispatch, unresponsiveness, and
	// cancellation leave no outcome behind.
	if outcome != nil {
		s.resolve(ctx, span, state, outcome, runErr, logger)
		return outcome, runErr
	}
	s.abandon(ctx, span, state, runErr, logger)
	return nil, runErr
}

// poll runs the two-timer loop until the handle resolves or the execution
// must be abandoned. Completion detection is never gated on probing: a done
// handle resolves on the next fast tick even while probes are failing.
func (s *Supervisor) poll(ctx context.Context, handle PendingHandle, state *executionState, logger *telemetry.Logger) (*ExecutionOutcome, error) {
	fast := time.NewTicker(s.config.FastPollInterval)
	defer fast.Stop()
	slow := time.NewTicker(s.config.SlowProbeInterval)
	defer slow.Stop()

	for {
		select {
		case <-ctx.Done():
			handle.Cancel()
			return nil, NewInternalError("execution canceled", ctx.Err()).
				WithCode(ErrCodeCanceled).
				WithExecutionID(state.id)

		case <-fast.C:
			if !handle.Done() {
				continue
			}
			finished := time.Now()
			if s.diagnostics.Load() {
				s.tel.Events.PublishCompleting(state.id)
			}
			return classify(ctx, handle, state, finished)

		case <-slow.C:
			// Check done first so a finished execution never gets probed
			// into abandonment on a coinciding slow tick.
			if handle.Done() {
				continue
			}
			if abandonErr := s.slowTick(ctx, state, logger); abandonErr != nil {
				handle.Cancel()
				return nil, abandonErr
			}
		}
	}
}

// slowTick runs one responsiveness probe and one debug check. It returns a
// non-nil error only when the probe failure streak has exhausted the
// threshold and the execution must be abandoned.
func (s *Supervisor) slowTick(ctx context.Context, state *executionState, logger *telemetry.Logger) error {
	probe := s.prober.Probe(ctx)
	state.probeFailures = s.prober.Streak()
	s.tel.Metrics.RecordProbe(probe.Responsive, probe.Duration, probe.Streak)
	if s.diagnostics.Load() {
		s.tel.Events.PublishProbe(state.id, probe.Responsive, probe.Streak)
	}

	if !probe.Responsive {
		logger.WithField("streak", probe.Streak).
			WithError(probe.Err).
			Warn("engine probe failed")
		if s.prober.Exhausted() {
			return NewUnresponsiveError("engine stopped responding to probes", probe.Err).
				WithCode(ErrCodeProbeTimeout).
				WithExecutionID(state.id)
		}
		// An unresponsive engine cannot usefully answer a debug query;
		// skip the check until a probe succeeds again.
		return nil
	}

	obs := s.monitor.Check(ctx, state)
	if obs.InDebugPause {
		logger.Debug("debug pause observed")
		s.tel.Metrics.RecordDebugPauseObserved()
		if s.diagnostics.Load() {
			s.tel.Events.PublishDebugPauseObserved(state.id)
		}
	}
	if obs.ShowedDesktop {
		logger.Info("engine desktop auto-shown for debug session")
		s.tel.Metrics.RecordDesktopShown()
		if s.diagnostics.Load() {
			s.tel.Events.PublishDesktopShown(state.id)
		}
	}
	return nil
}

func (s *Supervisor) resolve(ctx context.Context, span telemetry.Span, state *executionState, outcome *ExecutionOutcome, runErr error, logger *telemetry.Logger) {
	if outcome.Classification == ClassificationReclassifiedAfterDebug {
		logger.WithField("engine_error", outcome.ErrorDetail).
			Info("engine error after debug session reclassified as success")
		s.tel.Metrics.RecordReclassification()
		if s.diagnostics.Load() {
			s.tel.Events.PublishReclassified(state.id, outcome.ErrorDetail)
		}
	}

	s.tel.Metrics.RecordExecutionCompleted(string(outcome.Status), string(outcome.Classification), outcome.Duration)
	if runErr != nil {
		telemetry.RecordError(span, runErr)
		s.tel.Metrics.RecordError(string(ErrorClassExecution))
	} else {
		telemetry.RecordExecutionResult(span, string(outcome.Status), string(outcome.Classification), outcome.SawDebugPause)
	}
	if s.diagnostics.Load() {
		s.tel.Events.PublishResolved(state.id, string(outcome.Status), string(outcome.Classification), outcome.Duration)
	}
	logger.WithField("status", string(outcome.Status)).
		WithField("classification", string(outcome.Classification)).
		WithField("duration", outcome.Duration.String()).
		Info("execution resolved")

	rec := state.record(outcome.Status, outcome.Classification, outcome.ErrorDetail, outcome.FinishedAt)
	if runErr != nil {
		rec.ErrorClass = string(ErrorClassExecution)
	}
	s.recordHistory(ctx, rec, logger)
}

func (s *Supervisor) abandon(ctx context.Context, span telemetry.Span, state *executionState, runErr error, logger *telemetry.Logger) {
	finished := time.Now()
	telemetry.RecordError(span, runErr)
	s.tel.Metrics.RecordExecutionAbandoned()

	errClass := string(ErrorClassInternal)
	var berr *BridgeError
	if e, ok := runErr.(*BridgeError); ok {
		berr = e
		errClass = string(e.Class)
	}
	s.tel.Metrics.RecordError(errClass)
	if s.diagnostics.Load() {
		s.tel.Events.PublishAbandoned(state.id, runErr.Error())
	}
	logger.WithError(runErr).Error("execution abandoned")

	rec := state.record(StatusError, ClassificationDirect, runErr.Error(), finished)
	rec.ErrorClass = errClass
	if berr != nil && berr.Err != nil {
		rec.ErrorDetail = berr.Err.Error()
	}
	s.recordHistory(ctx, rec, logger)
}

func (s *Supervisor) recordHistory(ctx context.Context, rec *ExecutionRecord, logger *telemetry.Logger) {
	if s.history == nil {
		return
	}
	// Persistence is best-effort; do not let a canceled execution context
	// also lose the history row.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.history.RecordExecution(hctx, rec); err != nil {
		logger.WithError(err).Warn("failed to record execution history")
	}
}
