package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newProbeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check engine worker liveness",
		Long: `Start the engine worker and send it a single responsiveness probe.

Useful for verifying transport and worker configuration before running
real executions.`,
		Example: `  # Probe with the default config
  matbridge probe

  # Probe a remote worker
  matbridge probe --config remote.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context())
		},
	}

	return cmd
}

func runProbe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tel, err := setupTelemetry(cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tel)

	eng, err := startEngine(ctx, cfg, tel.Logger)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	probeCtx, cancel := context.WithTimeout(ctx, cfg.Supervisor.ProbeTimeout.Std())
	defer cancel()

	start := time.Now()
	probeErr := eng.Probe(probeCtx)
	elapsed := time.Since(start)

	ready := eng.Ready()

	if jsonOutput {
		out := map[string]any{
			"responsive": probeErr == nil,
			"latency":    elapsed.String(),
		}
		if ready != nil {
			out["engine_name"] = ready.EngineName
			out["engine_version"] = ready.EngineVersion
			out["pid"] = ready.PID
		}
		if probeErr != nil {
			out["error"] = probeErr.Error()
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	} else if probeErr == nil {
		if ready != nil {
			fmt.Printf("Engine %s %s (pid %d) responsive in %s\n",
				ready.EngineName, ready.EngineVersion, ready.PID, elapsed.Round(time.Millisecond))
		} else {
			fmt.Printf("Engine responsive in %s\n", elapsed.Round(time.Millisecond))
		}
	}

	if probeErr != nil {
		return fmt.Errorf("engine unresponsive: %w", probeErr)
	}
	return nil
}
