package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the matbridge supervisor.
type Metrics struct {
	config MetricsConfig

	// Execution metrics
	executionsStarted   prometheus.Counter
	executionsCompleted *prometheus.CounterVec
	executionDuration   *prometheus.HistogramVec
	activeExecutions    prometheus.Gauge

	// Probe metrics
	probesTotal   *prometheus.CounterVec
	probeDuration prometheus.Histogram
	probeStreak   prometheus.Gauge

	// Debug-pause metrics
	debugPausesObserved prometheus.Counter
	desktopShows        prometheus.Counter
	reclassifications   prometheus.Counter

	// Error metrics
	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		executionsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_started_total",
				Help:      "Total number of executions dispatched to the engine",
			},
		),
		executionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_completed_total",
				Help:      "Total number of executions resolved",
			},
			[]string{"status", "classification"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Wall-clock duration of executions, dispatch to resolution",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		activeExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executions",
				Help:      "Number of executions currently in flight (0 or 1 per supervisor)",
			},
		),

		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Total number of responsiveness probes issued",
			},
			[]string{"outcome"},
		),
		probeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Duration of responsiveness probes in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
		),
		probeStreak: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "probe_failure_streak",
				Help:      "Current run of consecutive probe failures",
			},
		),

		debugPausesObserved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "debug_pauses_observed_total",
				Help:      "Total number of executions in which a debug pause was observed",
			},
		),
		desktopShows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "desktop_shows_total",
				Help:      "Total number of show-desktop commands issued",
			},
		),
		reclassifications: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reclassifications_total",
				Help:      "Total number of engine errors reclassified as success after a debug pause",
			},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of bridge errors by error class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.executionsStarted,
		m.executionsCompleted,
		m.executionDuration,
		m.activeExecutions,
		m.probesTotal,
		m.probeDuration,
		m.probeStreak,
		m.debugPausesObserved,
		m.desktopShows,
		m.reclassifications,
		m.errorsByClass,
	)

	return m, nil
}

// RecordExecutionStarted increments the counters for a newly dispatched execution.
func (m *Metrics) RecordExecutionStarted() {
	if m.executionsStarted == nil {
		return
	}
	m.executionsStarted.Inc()
	m.activeExecutions.Inc()
}

// RecordExecutionCompleted records a resolved execution with its status,
// classification, and duration.
func (m *Metrics) RecordExecutionCompleted(status, classification string, duration time.Duration) {
	if m.executionsCompleted == nil {
		return
	}
	m.executionsCompleted.WithLabelValues(status, classification).Inc()
	m.executionDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeExecutions.Dec()
}

// RecordExecutionAbandoned decrements the active gauge for an execution that
// terminated without a classified outcome (dispatch failure or unresponsive engine).
func (m *Metrics) RecordExecutionAbandoned() {
	if m.activeExecutions == nil {
		return
	}
	m.activeExecutions.Dec()
}

// RecordProbe records one responsiveness probe and its outcome.
func (m *Metrics) RecordProbe(responsive bool, duration time.Duration, streak int) {
	if m.probesTotal == nil {
		return
	}
	outcome := "responsive"
	if !responsive {
		outcome = "unresponsive"
	}
	m.probesTotal.WithLabelValues(outcome).Inc()
	m.probeDuration.Observe(duration.Seconds())
	m.probeStreak.Set(float64(streak))
}

// RecordDebugPauseObserved increments the debug-pause counter.
func (m *Metrics) RecordDebugPauseObserved() {
	if m.debugPausesObserved == nil {
		return
	}
	m.debugPausesObserved.Inc()
}

// RecordDesktopShown increments the show-desktop counter.
func (m *Metrics) RecordDesktopShown() {
	if m.desktopShows == nil {
		return
	}
	m.desktopShows.Inc()
}

// RecordReclassification increments the post-debug reclassification counter.
func (m *Metrics) RecordReclassification() {
	if m.reclassifications == nil {
		return
	}
	m.reclassifications.Inc()
}

// RecordError records a bridge error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
