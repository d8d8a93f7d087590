package commands

import (
	"fmt"

	"platewatch/internal/components/lifecycle"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(notifyCmd)
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Sends the newest recorded plate unless it was already sent.",
	Run: func(cmd *cobra.Command, args []string) {
		d := loadDeps()
		defer d.close(nil)

		outcome, err := d.notifier().NotifyLatest(cmd.Context())
		if err != nil {
			lifecycle.Fatal("failed to notify", err)
		}
		switch {
		case outcome.Message == "":
			fmt.Println("nothing recorded yet")
		case outcome.Suppressed:
			fmt.Println("already sent:")
			fmt.Println(outcome.Message)
		case outcome.Sent:
			fmt.Println(outcome.Message)
		default:
			lifecycle.Fatal("failed to send notification", outcome.DispatchErr)
		}
	},
}
