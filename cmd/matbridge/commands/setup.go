package commands

import (
	"context"
	"fmt"

	"github.com/matbridge/matbridge/pkg/config"
	"github.com/matbridge/matbridge/pkg/engine"
	"github.com/matbridge/matbridge/pkg/engineproc"
	"github.com/matbridge/matbridge/pkg/engineproc/transport"
	"github.com/matbridge/matbridge/pkg/stores"
	"github.com/matbridge/matbridge/pkg/telemetry"
)

// loadConfig resolves the effective configuration from --config and the
// defaults, applying the global flag overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

func setupTelemetry(cfg *config.Config) (*telemetry.Telemetry, error) {
	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	if cfg.Telemetry.Metrics.Enabled {
		if err := tel.StartMetricsServer(); err != nil {
			return nil, fmt.Errorf("starting metrics server: %w", err)
		}
	}
	return tel, nil
}

// buildTransport constructs the worker transport selected by the config.
func buildTransport(cfg *config.Config, logger *telemetry.Logger) (transport.Transport, error) {
	switch cfg.Engine.Transport {
	case config.TransportSSH:
		s := cfg.Engine.SSH
		sshCfg := transport.DefaultSSHConfig(s.Host, s.User)
		if s.Port != 0 {
			sshCfg.Port = s.Port
		}
		if s.AuthMethod != "" {
			sshCfg.AuthMethod = transport.AuthMethod(s.AuthMethod)
		}
		sshCfg.Password = s.Password
		sshCfg.PrivateKeyPath = s.PrivateKeyPath
		sshCfg.PrivateKeyPassphrase = s.PrivateKeyPassphrase
		sshCfg.KnownHostsPath = s.KnownHostsPath
		sshCfg.StrictHostKeyChecking = s.StrictHostKeyChecking
		sshCfg.WorkerPath = s.WorkerPath
		if s.RemotePath != "" {
			sshCfg.RemotePath = s.RemotePath
		}
		sshCfg.RemoteCommand = s.RemoteCommand
		return transport.NewSSH(sshCfg, logger)

	default:
		return transport.NewLocal(transport.LocalConfig{
			Command: cfg.Engine.Command,
			Args:    cfg.Engine.Args,
			WorkDir: cfg.Engine.WorkDir,
		}, logger)
	}
}

// startEngine builds and starts the engine worker process.
func startEngine(ctx context.Context, cfg *config.Config, logger *telemetry.Logger) (*engineproc.ProcEngine, error) {
	tr, err := buildTransport(cfg, logger)
	if err != nil {
		return nil, err
	}

	procCfg := engineproc.Config{
		Transport:      tr,
		StartupTimeout: cfg.Engine.StartupTimeout.Std(),
	}
	if cfg.Export.FigureMode != config.ExportModeNone {
		procCfg.ExportFigures = string(cfg.Export.FigureMode)
		procCfg.ExportDir = cfg.Export.Directory
	}

	eng, err := engineproc.New(procCfg, logger)
	if err != nil {
		return nil, err
	}
	if err := eng.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting engine worker: %w", err)
	}
	return eng, nil
}

// openHistory opens the execution history store, or returns nil when
// history is disabled.
func openHistory(ctx context.Context, cfg *config.Config) (*stores.HistoryStore, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := stores.NewHistoryStore(stores.Config{Path: cfg.History.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func supervisorConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		FastPollInterval:      cfg.Supervisor.FastPollInterval.Std(),
		SlowProbeInterval:     cfg.Supervisor.SlowProbeInterval.Std(),
		ProbeTimeout:          cfg.Supervisor.ProbeTimeout.Std(),
		ProbeFailureThreshold: cfg.Supervisor.ProbeFailureThreshold,
		AutoShowDesktop:       cfg.Supervisor.AutoShowDesktop,
		Diagnostics:           cfg.Supervisor.Diagnostics,
	}
}
