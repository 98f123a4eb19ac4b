package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/output"
	"github.com/ternarybob/valuescreen/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint progress",
	Long:  `Prints how many tickers are committed, by outcome, and how many of the configured tickers are still pending.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	manager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return err
	}
	defer manager.Close()

	state, err := manager.CheckpointStorage().Load(context.Background())
	if err != nil {
		return err
	}

	// Pending is only known when the configured lists can be read
	requested := 0
	if tickers, err := common.LoadTickers(config.Tickers.Files, config.Tickers.Symbols); err == nil {
		requested = len(tickers)
	} else {
		logger.Warn().Err(err).Msg("Could not load configured tickers")
	}

	counts := output.CountRows(state.Rows)
	fmt.Println(output.StatusTable(counts, requested))
	if counts.LastRunID != "" {
		fmt.Printf("Last run: %s\n", counts.LastRunID)
	}
	fmt.Printf("Output:   %s\n", config.Output.Path)
	return nil
}
