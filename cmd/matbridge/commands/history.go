package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/matbridge/matbridge/pkg/config"
	"github.com/matbridge/matbridge/pkg/engine"
	"github.com/matbridge/matbridge/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded executions",
		Long: `Query the local execution history database.

Every resolved or abandoned execution is recorded with its status,
classification, debug activity and timings.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryStatsCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

// withHistory loads config, opens the history store and runs fn with it.
func withHistory(ctx context.Context, fn func(context.Context, *stores.HistoryStore, *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in the configuration")
	}

	store, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, store, cfg)
}

func newHistoryListCommand() *cobra.Command {
	var (
		status         string
		classification string
		limit          int
		offset         int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded executions, newest first",
		Example: `  # Last 20 executions
  matbridge history list --limit 20

  # Only failures
  matbridge history list --status error

  # Only executions reclassified after a debug session
  matbridge history list --classification reclassified_after_debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd.Context(), func(ctx context.Context, store *stores.HistoryStore, _ *config.Config) error {
				records, err := store.ListExecutions(ctx, stores.ListOptions{
					Status:         engine.Status(status),
					Classification: engine.Classification(classification),
					Limit:          limit,
					Offset:         offset,
				})
				if err != nil {
					return err
				}

				if jsonOutput {
					data, err := json.MarshalIndent(records, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(data))
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tCLASSIFICATION\tDEBUG\tDURATION\tSTARTED")
				for _, rec := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
						rec.ID, rec.Status, rec.Classification, rec.SawDebugPause,
						rec.Duration.Round(time.Millisecond),
						rec.StartedAt.Local().Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (ok, error)")
	cmd.Flags().StringVar(&classification, "classification", "", "filter by classification (direct, reclassified_after_debug)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <execution-id>",
		Short: "Show a single recorded execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd.Context(), func(ctx context.Context, store *stores.HistoryStore, _ *config.Config) error {
				rec, err := store.GetExecution(ctx, args[0])
				if err != nil {
					return err
				}

				if jsonOutput {
					data, err := json.MarshalIndent(rec, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(data))
					return nil
				}

				fmt.Printf("Execution %s\n", rec.ID)
				fmt.Printf("  status:          %s\n", rec.Status)
				fmt.Printf("  classification:  %s\n", rec.Classification)
				if rec.ErrorClass != "" {
					fmt.Printf("  error class:     %s\n", rec.ErrorClass)
				}
				if rec.ErrorDetail != "" {
					fmt.Printf("  engine error:    %s\n", rec.ErrorDetail)
				}
				fmt.Printf("  debug pause:     %v\n", rec.SawDebugPause)
				fmt.Printf("  desktop shown:   %v\n", rec.DesktopAutoShown)
				fmt.Printf("  probe failures:  %d\n", rec.ProbeFailures)
				fmt.Printf("  started:         %s\n", rec.StartedAt.Local().Format(time.RFC3339))
				fmt.Printf("  duration:        %s\n", rec.Duration.Round(time.Millisecond))
				if code := strings.TrimSpace(rec.Code); code != "" {
					fmt.Printf("  code:\n")
					for _, line := range strings.Split(code, "\n") {
						fmt.Printf("    %s\n", line)
					}
				}
				return nil
			})
		},
	}

	return cmd
}

func newHistoryStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize recorded executions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd.Context(), func(ctx context.Context, store *stores.HistoryStore, _ *config.Config) error {
				stats, err := store.GetStats(ctx)
				if err != nil {
					return err
				}

				if jsonOutput {
					data, err := json.MarshalIndent(stats, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(data))
					return nil
				}

				fmt.Printf("Executions:        %d\n", stats.Total)
				fmt.Printf("  succeeded:       %d\n", stats.Succeeded)
				fmt.Printf("  failed:          %d\n", stats.Failed)
				fmt.Printf("  reclassified:    %d\n", stats.Reclassified)
				fmt.Printf("Debug pauses seen: %d\n", stats.DebugPausesSeen)
				fmt.Printf("Desktop auto-show: %d\n", stats.DesktopAutoShown)
				return nil
			})
		},
	}

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old execution records",
		Long: `Delete execution records older than the retention window.

The window defaults to history.retention_days from the configuration.`,
		Example: `  # Prune with the configured retention
  matbridge history prune

  # Keep only the last week
  matbridge history prune --older-than 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd.Context(), func(ctx context.Context, store *stores.HistoryStore, cfg *config.Config) error {
				days := olderThanDays
				if days <= 0 {
					days = cfg.History.RetentionDays
				}
				if days <= 0 {
					return fmt.Errorf("no retention window: set --older-than or history.retention_days")
				}

				before := time.Now().AddDate(0, 0, -days)
				deleted, err := store.Prune(ctx, before)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d execution(s) older than %d day(s)\n", deleted, days)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "delete records older than this many days")

	return cmd
}
