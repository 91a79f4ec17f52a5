package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"strategy-engine/pkg/utils"
)

func newRunsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and cancel strategy runs",
	}
	cmd.AddCommand(newRunsShowCmd(app), newRunsLogCmd(app), newRunsCancelCmd(app))
	return cmd
}

func newRunsShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run's status and decisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			run, err := app.Store.GetStrategyRun(ctx, args[0])
			if err != nil {
				return err
			}

			color.Cyan("Run %s (strategy %s)", run.ID, run.StrategyID)
			fmt.Printf("Status:   %s (%.0f%%)\n", run.Status, run.Progress)
			fmt.Printf("Counters: screened=%d scored=%d theses=%d trades=%d\n",
				run.StocksScreened, run.StocksScored, run.ThesesGenerated, run.TradesExecuted)
			if run.Error != "" {
				color.Red("Error:    %s", run.Error)
			}

			decisions, err := app.Store.GetRunDecisions(ctx, run.ID)
			if err != nil {
				return err
			}
			if len(decisions) > 0 {
				fmt.Println("\nDecisions:")
				for _, d := range decisions {
					fmt.Printf("  %-8s %-6s score %5.1f  %-8s %s\n",
						d.Symbol, d.Verdict, d.CombinedScore, d.Action, utils.Truncate(d.Reasoning, 60))
				}
			}
			return nil
		},
	}
}

func newRunsLogCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "log <run-id>",
		Short: "Show a run's event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := app.Store.GetRunLog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, e := range events {
				line := fmt.Sprintf("%s [%s] %-18s %s",
					e.Timestamp.Format("15:04:05"), e.Level, e.Phase, e.Message)
				switch e.Level {
				case "warn":
					color.Yellow("%s", line)
				case "error":
					color.Red("%s", line)
				default:
					fmt.Println(line)
				}
			}
			return nil
		},
	}
}

func newRunsCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Request cancellation of a run",
		Long: `Flags a run for cancellation. The executor checks the flag between
phases; in-flight trades complete before the run stops.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Store.CancelRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			color.Yellow("Cancellation requested for run %s.", args[0])
			return nil
		},
	}
}
