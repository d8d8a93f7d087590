package commands

import (
	"context"
	"log/slog"

	"platewatch/internal/components/chrono"
	"platewatch/internal/components/lifecycle"
	"platewatch/internal/scheduler"
	libtelemetry "platewatch/lib/telemetry"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the scrape and notify schedules until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := lifecycle.SignalContext(cmd.Context())
		defer cancel()

		d := loadDeps()
		hooks := lifecycle.NewHooks(d.tel)

		otel, err := libtelemetry.SetupFromEnv(ctx, "platewatch")
		if err != nil {
			lifecycle.Fatal("failed to setup telemetry", err)
		}

		manager := d.browser()
		n := d.notifier()
		runner := d.runner(manager, n)

		scrapeWindow, err := d.cfg.ScrapeWindow()
		if err != nil {
			lifecycle.Fatal("invalid scrape window", err)
		}
		notifyWindow, err := d.cfg.NotifyWindow()
		if err != nil {
			lifecycle.Fatal("invalid notify window", err)
		}

		scrape, err := scheduler.New(
			"scrape",
			scrapeWindow,
			runner.Run,
			scheduler.WithClock(d.clock),
			scheduler.WithTelemetry(d.tel),
		)
		if err != nil {
			lifecycle.Fatal("failed to create scrape schedule", err)
		}
		notify, err := scheduler.New(
			"notify",
			notifyWindow,
			func(ctx context.Context) error {
				_, err := n.NotifyLatest(ctx)
				return err
			},
			scheduler.WithClock(d.clock),
			scheduler.WithTelemetry(d.tel),
		)
		if err != nil {
			lifecycle.Fatal("failed to create notify schedule", err)
		}

		cron := chrono.NewStandardCron(d.clock.Location(), d.tel)
		perf, err := libtelemetry.NewPerfStats()
		if err != nil {
			slog.Warn("perf stats disabled", "err", err)
		} else {
			err = cron.Cron(libtelemetry.PerfStatsSchedule, func() {
				sample, err := perf.Record(ctx)
				if err != nil {
					slog.Warn("failed to sample perf stats", "err", err)
					return
				}
				slog.Debug(
					"perf stats",
					"rss_mb", sample.RssMB,
					"heap_mb", sample.HeapAllocMB,
					"goroutines", sample.Goroutines,
					"children", sample.Children,
					"children_rss_mb", sample.ChildrenRssMB,
				)
			})
			if err != nil {
				lifecycle.Fatal("failed to schedule perf stats", err)
			}
		}

		hooks.Register("cron", func(ctx context.Context) error {
			cron.Stop(ctx)
			return nil
		})
		hooks.Register("runner", func(ctx context.Context) error {
			runner.Wait()
			return nil
		})
		hooks.Register("browser", func(ctx context.Context) error {
			return manager.Shutdown()
		})
		hooks.Register("artifacts", func(ctx context.Context) error {
			return d.artifacts.Cleanup()
		})
		if d.db != nil {
			hooks.Register("store", func(ctx context.Context) error {
				return d.db.Close()
			})
		}
		hooks.Register("telemetry", otel.Shutdown)

		slog.Info(
			"platewatch started",
			"scrape", scrapeWindow.String(),
			"notify", notifyWindow.String(),
			"target", n.Target(),
		)

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error { return scrape.Run(groupCtx) })
		group.Go(func() error { return notify.Run(groupCtx) })
		err = group.Wait()
		if err != nil {
			slog.Error("schedule stopped", "err", err)
		}

		slog.Info("shutting down")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		err = hooks.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("shutdown was not clean", "err", err)
		}
	},
}
