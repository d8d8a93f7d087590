package commands

import (
	"strings"

	"platewatch/internal/components/lifecycle"
	"platewatch/internal/transport"

	"github.com/spf13/cobra"
)

const defaultTestMessage = "測試訊息通知"

func init() {
	rootCmd.AddCommand(testNotifyCmd)
}

var testNotifyCmd = &cobra.Command{
	Use:   "test-notify [message]",
	Short: "Sends a message through every configured transport.",
	Run: func(cmd *cobra.Command, args []string) {
		d := loadDeps()

		text := defaultTestMessage
		if len(args) > 0 {
			text = strings.Join(args, " ")
		}
		err := d.transport().Send(cmd.Context(), transport.Text(text))
		if err != nil {
			lifecycle.Fatal("failed to send test message", err)
		}
	},
}
