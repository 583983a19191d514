package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/matbridge/matbridge/pkg/telemetry"
)

var validate = validator.New()

// Default returns a Config with the standard settings: a local worker,
// standard supervisor timings, history enabled, and console logging.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Transport:      TransportLocal,
			Command:        "matbridge-worker",
			StartupTimeout: Duration(60 * time.Second),
		},
		Supervisor: SupervisorConfig{
			FastPollInterval:      Duration(100 * time.Millisecond),
			SlowProbeInterval:     Duration(2 * time.Second),
			ProbeTimeout:          Duration(500 * time.Millisecond),
			ProbeFailureThreshold: 5,
			AutoShowDesktop:       true,
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          "matbridge.db",
			RetentionDays: 90,
		},
		Export: ExportConfig{
			FigureMode: ExportModeNone,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads a YAML configuration file, layered over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration bytes, layered over Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Engine.Transport {
	case TransportLocal:
		if c.Engine.Command == "" {
			return fmt.Errorf("invalid config: engine.command is required for the local transport")
		}
	case TransportSSH:
		if c.Engine.SSH.Host == "" {
			return fmt.Errorf("invalid config: engine.ssh.host is required for the ssh transport")
		}
		if c.Engine.SSH.User == "" {
			return fmt.Errorf("invalid config: engine.ssh.user is required for the ssh transport")
		}
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("invalid config: history.path is required when history is enabled")
	}
	if c.Export.FigureMode == ExportModeFile && c.Export.Directory == "" {
		return fmt.Errorf("invalid config: export.directory is required for file export")
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}

	return nil
}
