package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matbridge/matbridge/pkg/telemetry"
)

// Duration wraps time.Duration so YAML can carry values like "100ms" or "2s".
type Duration time.Duration

// UnmarshalYAML parses a duration string or a number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs float64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("invalid duration value")
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ExportMode controls figure export behavior after each execution.
type ExportMode string

const (
	// ExportModeNone disables figure export.
	ExportModeNone ExportMode = "none"

	// ExportModeInline exports figures as inline payloads on the outcome.
	ExportModeInline ExportMode = "inline"

	// ExportModeFile writes figures to the export directory.
	ExportModeFile ExportMode = "file"
)

// TransportKind selects how the engine worker is started.
type TransportKind string

const (
	TransportLocal TransportKind = "local"
	TransportSSH   TransportKind = "ssh"
)

// Config is the root matbridge configuration.
type Config struct {
	Engine     EngineConfig     `yaml:"engine" validate:"required"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	History    HistoryConfig    `yaml:"history"`
	Export     ExportConfig     `yaml:"export"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
}

// EngineConfig describes the engine worker process.
type EngineConfig struct {
	// Transport is how the worker is started: local or ssh.
	Transport TransportKind `yaml:"transport" validate:"oneof=local ssh"`

	// Command is the worker executable for the local transport.
	Command string `yaml:"command"`

	// Args are passed to the worker verbatim.
	Args []string `yaml:"args"`

	// WorkDir is the worker's working directory. Empty means inherit.
	WorkDir string `yaml:"work_dir"`

	// StartupTimeout bounds the wait for the worker's READY message.
	StartupTimeout Duration `yaml:"startup_timeout"`

	// SSH configures the remote worker when Transport is ssh.
	SSH SSHEngineConfig `yaml:"ssh"`
}

// SSHEngineConfig configures a worker started over SSH.
type SSHEngineConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	User                  string `yaml:"user"`
	AuthMethod            string `yaml:"auth_method" validate:"omitempty,oneof=password key"`
	Password              string `yaml:"password"`
	PrivateKeyPath        string `yaml:"private_key_path"`
	PrivateKeyPassphrase  string `yaml:"private_key_passphrase"`
	KnownHostsPath        string `yaml:"known_hosts_path"`
	StrictHostKeyChecking bool   `yaml:"strict_host_key_checking"`
	WorkerPath            string `yaml:"worker_path"`
	RemotePath            string `yaml:"remote_path"`
	RemoteCommand         string `yaml:"remote_command"`
}

// SupervisorConfig carries the supervisor timings. Zero values fall back to
// the supervisor defaults.
type SupervisorConfig struct {
	// FastPollInterval is how often completion is checked.
	FastPollInterval Duration `yaml:"fast_poll_interval"`

	// SlowProbeInterval is how often responsiveness and debug state are
	// checked.
	SlowProbeInterval Duration `yaml:"slow_probe_interval"`

	// ProbeTimeout bounds each responsiveness probe.
	ProbeTimeout Duration `yaml:"probe_timeout"`

	// ProbeFailureThreshold is the consecutive probe failures after which
	// the engine is declared unresponsive.
	ProbeFailureThreshold int `yaml:"probe_failure_threshold" validate:"min=0"`

	// AutoShowDesktop shows the engine desktop on the first debug pause
	// observed in an execution.
	AutoShowDesktop bool `yaml:"auto_show_desktop"`

	// Diagnostics narrates supervisor transitions on the event stream.
	Diagnostics bool `yaml:"diagnostics"`
}

// HistoryConfig configures execution history persistence.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`

	// RetentionDays bounds how long history rows are kept; 0 keeps
	// everything.
	RetentionDays int `yaml:"retention_days" validate:"min=0"`
}

// ExportConfig configures figure export.
type ExportConfig struct {
	FigureMode ExportMode `yaml:"figure_mode" validate:"oneof=none inline file"`

	// Directory receives exported figures when FigureMode is file.
	Directory string `yaml:"directory"`
}
