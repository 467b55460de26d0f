package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"portfolio-tracker/internal/refresh"
)

func addWatchCommand(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newWatchCmd(app))
}

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh the watchlist on the configured schedule",
		Long: `Keep the series store warm by re-fetching every watchlist instrument on
the cron schedule from [refresh] in config.toml. Runs until interrupted.
A failed instrument is logged and retried on the next run.`,
		Example: `  tracker watch --now
  tracker watch --once -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.services(ctx); err != nil {
				return err
			}

			sched, err := refresh.NewFromConfig(app.Config, app.Resolver, app.Sync, app.Logger)
			if err != nil {
				return err
			}

			if once, _ := cmd.Flags().GetBool("once"); once {
				return printRun(output, sched.RunNow(ctx))
			}

			schedule := mustString(cmd, "schedule")
			if schedule == "" {
				schedule = app.Config.Refresh.Schedule
			}
			if err := sched.Register(ctx, schedule); err != nil {
				return err
			}
			if now, _ := cmd.Flags().GetBool("now"); now {
				if err := printRun(output, sched.RunNow(ctx)); err != nil {
					return err
				}
			}

			sched.Start()
			if !output.IsStructured() {
				output.Info("Watching %d instruments, next refresh %s", len(app.Config.Refresh.Watchlist), sched.Next().Local().Format(time.RFC1123))
			}
			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}
	cmd.Flags().String("schedule", "", "cron schedule, five fields (default from config)")
	cmd.Flags().Bool("now", false, "refresh once immediately before waiting")
	cmd.Flags().Bool("once", false, "refresh once and exit")
	return cmd
}

func printRun(output *Output, run refresh.Run) error {
	if output.IsStructured() {
		return output.Render(run)
	}
	output.Printf("Refreshed %d instruments in %s, %d stale, %d failed\n", run.Total, FormatDuration(run.Duration), run.Stale, len(run.Failed))
	for _, f := range run.Failed {
		output.Warning("  %s: %s", f.Instrument, TruncateString(f.Error, 80))
	}
	if run.Total > 0 && len(run.Failed) == run.Total {
		return fmt.Errorf("every watchlist instrument failed")
	}
	return nil
}
