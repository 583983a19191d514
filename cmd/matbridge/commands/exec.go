package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matbridge/matbridge/pkg/config"
	"github.com/matbridge/matbridge/pkg/engine"
	"github.com/matbridge/matbridge/pkg/telemetry"
)

func newExecCommand() *cobra.Command {
	var inlineCode string

	cmd := &cobra.Command{
		Use:   "exec [file]",
		Short: "Execute code on the engine and wait for it to resolve",
		Long: `Dispatch code to the engine worker and supervise the execution.

The code is read from the given file, or passed inline with --code. The
command blocks until the execution resolves, the engine is declared
unresponsive, or the command is interrupted.

An execution that errors out after a debugger pause resolves as a success:
the error is taken to mean the debug session ended, not that the code
failed. The preserved engine error text is still printed and recorded.`,
		Example: `  # Run a script file
  matbridge exec analysis.m

  # Run inline code
  matbridge exec --code "result = heavy_simulation(42);"

  # JSON outcome for tooling
  matbridge exec --json analysis.m`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := resolveCode(args, inlineCode)
			if err != nil {
				return err
			}
			return runExec(cmd.Context(), code)
		},
	}

	cmd.Flags().StringVarP(&inlineCode, "code", "e", "", "inline code to execute")

	return cmd
}

func resolveCode(args []string, inline string) (string, error) {
	if inline != "" && len(args) > 0 {
		return "", fmt.Errorf("pass a file or --code, not both")
	}
	if inline != "" {
		return inline, nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("nothing to execute: pass a file or --code")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), nil
}

func runExec(ctx context.Context, code string) error {
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

	store, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	var history engine.HistoryRecorder
	if store != nil {
		history = store
		defer store.Close()
	}

	sup := engine.NewSupervisor(eng, supervisorConfig(cfg), history, tel)

	// A debug pause can hold an execution open for a long time; watching
	// the config file lets the operator flip diagnostics narration on for
	// an execution that is already in flight.
	if configPath != "" {
		watcher := config.NewWatcher(configPath, func(updated *config.Config) {
			sup.SetDiagnostics(updated.Supervisor.Diagnostics)
		}, tel.Logger)
		if err := watcher.Start(ctx); err != nil {
			tel.Logger.WithError(err).Warn("config watcher unavailable")
		} else {
			defer watcher.Stop()
		}
	}

	outcome, runErr := sup.RunOnce(ctx, code)

	if outcome != nil {
		printOutcome(outcome)
	}
	return runErr
}

func printOutcome(outcome *engine.ExecutionOutcome) {
	if jsonOutput {
		data, err := json.MarshalIndent(outcome, "", "  ")
		if err == nil {
			fmt.Println(string(data))
		}
		return
	}

	fmt.Printf("Execution %s: %s", outcome.ExecutionID, outcome.Status)
	if outcome.Classification == engine.ClassificationReclassifiedAfterDebug {
		fmt.Printf(" (reclassified after debug session)")
	}
	fmt.Println()
	fmt.Printf("  duration:      %s\n", outcome.Duration.Round(time.Millisecond))
	if outcome.SawDebugPause {
		fmt.Printf("  debug pause:   observed (desktop shown: %v)\n", outcome.DesktopAutoShown)
	}
	if outcome.ErrorDetail != "" {
		fmt.Printf("  engine error:  %s\n", outcome.ErrorDetail)
	}
	if outcome.Value != nil {
		fmt.Printf("  value:         %v\n", outcome.Value)
	}
}

func shutdownTelemetry(tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = tel.Shutdown(ctx)
}
