package commands

import (
	"fmt"
	"log/slog"

	"platewatch/internal/components/chrono"
	"platewatch/internal/components/lifecycle"
	"platewatch/internal/workflow"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(onceCmd)
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Scrapes the newest plate a single time and records it.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := lifecycle.SignalContext(cmd.Context())
		defer cancel()

		d := loadDeps()
		manager := d.browser()
		runner := d.runner(manager, d.notifier())

		result, outcome, err := runner.Once(ctx)
		d.close(manager)
		if err != nil {
			slog.Error("scrape failed", "step", workflow.FailedStep(err).String())
			lifecycle.Fatal("scrape failed", err)
		}
		if !result.Found {
			fmt.Println("no plate is listed yet")
			return
		}

		fmt.Printf("latest: %s (%s)\n", result.Value, chrono.FormatTimestamp(result.At))
		switch {
		case outcome.Sent:
			fmt.Println("notification sent")
		case outcome.Suppressed:
			fmt.Println("notification suppressed, already sent")
		case outcome.DispatchErr != nil:
			fmt.Println("notification failed:", outcome.DispatchErr)
		case !outcome.Appended:
			fmt.Println("unchanged since the last run")
		}
	},
}
