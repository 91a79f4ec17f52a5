package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"strategy-engine/internal/engine"
	"strategy-engine/internal/jobs"
)

func newWorkerCmd(app *App) *cobra.Command {
	var (
		workers       int
		withScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the job-claim worker loop",
		Long: `Starts one or more workers that claim pending strategy jobs and execute
them. With --scheduler, also runs the cron scheduler that enqueues jobs for
enabled strategies on their schedules.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers <= 0 {
				workers = 1
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			executor := app.buildExecutor()

			if withScheduler {
				sched := engine.NewScheduler(app.Store, app.Config.Worker.Tier, app.Logger)
				if err := sched.Start(ctx); err != nil {
					return err
				}
				defer sched.Stop()
			}

			cfg := jobs.Config{
				PollInterval:      app.Config.Worker.PollInterval,
				LeaseDuration:     app.Config.Worker.LeaseDuration,
				HeartbeatInterval: app.Config.Worker.HeartbeatInterval,
				Tier:              app.Config.Worker.Tier,
			}

			color.Green("Starting %d worker(s), tier %q. Ctrl-C to stop.", workers, cfg.Tier)

			done := make(chan struct{}, workers)
			for i := 0; i < workers; i++ {
				w := jobs.NewWorker(app.Store, executor, cfg, app.Logger)
				go func() {
					_ = w.Run(ctx)
					done <- struct{}{}
				}()
			}

			for i := 0; i < workers; i++ {
				<-done
			}
			color.Yellow("All workers stopped.")
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "n", 1, "number of concurrent workers")
	cmd.Flags().BoolVar(&withScheduler, "scheduler", true, "run the cron scheduler alongside the workers")

	return cmd
}
