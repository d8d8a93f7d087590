package commands

import (
	"os"
	"strings"

	"platewatch/internal/components/lifecycle"
	"platewatch/internal/plates"
	"platewatch/internal/workflow"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var bidFile string

func init() {
	bidCmd.Flags().StringVarP(&bidFile, "file", "f", "", "A file to read plates from, any text mentioning them works.")
	rootCmd.AddCommand(bidCmd)
}

var bidCmd = &cobra.Command{
	Use:   "bid [plate...] [--file path]",
	Short: "Looks up the auction record of plates.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := lifecycle.SignalContext(cmd.Context())
		defer cancel()

		d := loadDeps()
		list := args
		if bidFile != "" {
			raw, err := os.ReadFile(bidFile)
			if err != nil {
				lifecycle.Fatal("failed to read plates", err)
			}
			list = append(list, plates.Normalize(raw, d.cfg.Plates.Prefix)...)
		}
		if len(list) == 0 {
			cmd.PrintErrln("no plates given")
			os.Exit(1)
		}

		manager := d.browser()
		defer d.close(manager)

		page, err := manager.OpenPage(ctx)
		if err != nil {
			lifecycle.Fatal("failed to open page", err)
		}
		defer manager.Release()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Plate", "Status", "Result"})

		err = workflow.QueryBids(ctx, page, d.clock, list, func(r workflow.BidResult) {
			cmd.Printf("%s: %s %s\n", r.Plate, r.Status, r.Message)
			t.AppendRow(table.Row{strings.ToUpper(r.Plate), string(r.Status), r.Message})
		})
		if err != nil {
			cmd.PrintErrln("interrupted:", err)
		}
		t.Render()
	},
}
