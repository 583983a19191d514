package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "matbridge",
		Short: "matbridge - asynchronous computational engine supervisor",
		Long: `matbridge dispatches code to a long-lived computational engine worker
and supervises the execution until it resolves.

While an execution is pending, matbridge keeps checking for completion on a
fast timer and, on a slower timer, probes the engine for responsiveness and
watches for debugger pauses. When the engine stops at a breakpoint the
desktop is brought up automatically so the session can be inspected, and an
execution that errors out after such a pause is treated as a benign end of
the debug session rather than a failure.

Every resolved execution is recorded in a local history database.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newExecCommand())
	rootCmd.AddCommand(newProbeCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
