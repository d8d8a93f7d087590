package commands

import (
	"fmt"
	"os"

	"platewatch/internal/components/lifecycle"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Lists the recorded plates with their distance to the target.",
	Run: func(cmd *cobra.Command, args []string) {
		d := loadDeps()
		defer d.close(nil)

		n := d.notifier()
		records, err := n.History(cmd.Context())
		if err != nil {
			lifecycle.Fatal("failed to read history", err)
		}
		if len(records) == 0 {
			fmt.Println("nothing recorded yet")
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"#", "Plate", "Seen", "Rank", "Left to " + n.Target()})
		for i, r := range records {
			distance := n.Distance(r.Value)
			rank, gap := "-", "-"
			if distance.Known {
				rank = fmt.Sprint(distance.Rank + 1)
				gap = fmt.Sprint(distance.Gap)
			}
			t.AppendRow(table.Row{i + 1, r.Value, r.Timestamp, rank, gap})
		}
		t.Render()
	},
}
