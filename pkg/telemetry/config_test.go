package telemetry

import "testing"

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service name", func(c *Config) { c.ServiceName = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "noisy" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad trace exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger2"
		}},
		{"sampling rate out of range", func(c *Config) {
			c.Tracing.SamplingRate = 1.5
		}},
		{"metrics without listen address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ListenAddress = ""
		}},
		{"zero event buffer", func(c *Config) {
			c.Events.Enabled = true
			c.Events.BufferSize = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestDisabledMetricsAreNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// None of these should panic on the no-op instance.
	m.RecordExecutionStarted()
	m.RecordExecutionCompleted("ok", "direct", 0)
	m.RecordExecutionAbandoned()
	m.RecordProbe(true, 0, 0)
	m.RecordDebugPauseObserved()
	m.RecordDesktopShown()
	m.RecordReclassification()
	m.RecordError("dispatch")
}
