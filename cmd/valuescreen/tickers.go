package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/valuescreen/internal/common"
)

var tickersCmd = &cobra.Command{
	Use:   "tickers",
	Short: "Manage ticker lists",
}

var tickersMergeCmd = &cobra.Command{
	Use:   "merge --out FILE INPUT...",
	Short: "Merge exchange ticker lists into one deduplicated list",
	Long:  `Combines JSON or YAML ticker lists (e.g. amex, nasdaq and nyse exports) into a single JSON array, keeping the first occurrence of each symbol.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTickersMerge,
}

var mergeOut string

func init() {
	tickersMergeCmd.Flags().StringVar(&mergeOut, "out", "", "Output JSON file")
	_ = tickersMergeCmd.MarkFlagRequired("out")
	tickersCmd.AddCommand(tickersMergeCmd)
}

func runTickersMerge(cmd *cobra.Command, args []string) error {
	n, err := common.MergeTickerFiles(mergeOut, args...)
	if err != nil {
		return err
	}
	logger.Info().Strs("inputs", args).Str("out", mergeOut).Int("symbols", n).Msg("Ticker lists merged")
	fmt.Printf("%d symbols written to %s\n", n, mergeOut)
	return nil
}
