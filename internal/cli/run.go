package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	enginerrors "strategy-engine/internal/errors"
	"strategy-engine/internal/models"
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <strategy-id>",
		Short: "Execute one strategy run synchronously",
		Long: `Runs a strategy immediately in the foreground, bypassing the job queue,
and prints the resulting briefing. Useful for trying a strategy out before
enabling its schedule.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			strategyID := args[0]
			strategy, err := app.Store.GetStrategy(ctx, strategyID)
			if err != nil {
				return fmt.Errorf("loading strategy %s: %w", strategyID, err)
			}

			run, err := app.Store.CreateStrategyRun(ctx, strategy.ID)
			if err != nil {
				return fmt.Errorf("creating run: %w", err)
			}

			color.Cyan("Running strategy %q (run %s)...", strategy.Name, run.ID)

			executor := app.buildExecutor()
			progress := func(phase models.RunStatus, pct float64, message string, processed, total int) {
				fmt.Printf("  [%3.0f%%] %s (%d/%d phases done)\n", pct, phase, processed, total)
			}

			brief, err := executor.ExecuteRun(ctx, strategy, run, progress)
			if err != nil {
				if enginerrors.Is(err, enginerrors.ErrRunCancelled) {
					color.Yellow("Run cancelled.")
					return nil
				}
				return err
			}

			fmt.Println()
			fmt.Print(brief.Render())
			return nil
		},
	}
	return cmd
}
