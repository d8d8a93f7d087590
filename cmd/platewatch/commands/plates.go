package commands

import (
	"fmt"
	"os"

	"platewatch/internal/components/lifecycle"
	"platewatch/internal/plates"

	"github.com/spf13/cobra"
)

var (
	platesPrefix string
	platesFrom   int
	platesTo     int
	platesOut    string
)

func init() {
	platesCmd.PersistentFlags().StringVar(&platesPrefix, "prefix", plates.DefaultPrefix, "The plate prefix.")
	platesCmd.PersistentFlags().StringVarP(&platesOut, "out", "o", "notfound/notfound-all.json", "The reference list to write.")
	generateCmd.Flags().IntVar(&platesFrom, "from", plates.DefaultFrom, "The first plate number.")
	generateCmd.Flags().IntVar(&platesTo, "to", plates.DefaultTo, "The last plate number.")

	platesCmd.AddCommand(generateCmd)
	platesCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(platesCmd)
}

var platesCmd = &cobra.Command{
	Use:   "plates",
	Short: "Maintains the reference list of plates still to be issued.",
}

var generateCmd = &cobra.Command{
	Use:   "generate [--prefix CAT] [--from 896] [--to 9999] [--out path]",
	Short: "Writes every plate number in a range the site may hand out.",
	Run: func(cmd *cobra.Command, args []string) {
		if platesFrom > platesTo {
			lifecycle.Fatal("invalid range", fmt.Errorf("--from %d is after --to %d", platesFrom, platesTo))
		}
		list := plates.Generate(platesPrefix, platesFrom, platesTo)
		err := plates.WriteFile(platesOut, list)
		if err != nil {
			lifecycle.Fatal("failed to write reference list", err)
		}
		fmt.Printf("wrote %d plates to %s\n", len(list), platesOut)
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <input> [--prefix CAT] [--out path]",
	Short: "Extracts, sorts and de-duplicates the plates mentioned in a file.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			lifecycle.Fatal("failed to read input", err)
		}
		list := plates.Normalize(raw, platesPrefix)
		err = plates.WriteFile(platesOut, list)
		if err != nil {
			lifecycle.Fatal("failed to write reference list", err)
		}
		fmt.Printf("wrote %d plates to %s\n", len(list), platesOut)
	},
}
