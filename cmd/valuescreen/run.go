package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/valuescreen/internal/app"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/models"
)

var runCmd = &cobra.Command{
	Use:   "run [symbols...]",
	Short: "Screen tickers and write the results",
	Long: `Screens the configured ticker lists plus any symbols given as arguments.
Progress is checkpointed per ticker, so an interrupted run resumes where it stopped.`,
	RunE: runScreen,
}

var (
	runTickerFiles []string
	runFresh       bool
	runConcurrency int
	runOutput      string
	runSchedule    string
	runDryRun      bool
	runClearCache  bool
)

func init() {
	runCmd.Flags().StringArrayVar(&runTickerFiles, "tickers", nil, "Ticker list file, JSON or YAML (can be specified multiple times)")
	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "Discard the checkpoint and screen every ticker again")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Worker pool width (overrides config)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "CSV output path (overrides config)")
	runCmd.Flags().StringVar(&runSchedule, "schedule", "", "Cron expression for recurring runs (overrides config)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "List the tickers that would be screened without calling any API")
	runCmd.Flags().BoolVar(&runClearCache, "clear-cache", false, "Drop cached EODHD and LLM responses before screening")
}

func runScreen(cmd *cobra.Command, args []string) error {
	// Command-line flag overrides (highest priority)
	common.ApplyFlagOverrides(config, runConcurrency, runOutput, runSchedule)
	if err := config.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return err
	}

	common.PrintBanner(config, logger)

	files := append(append([]string{}, config.Tickers.Files...), runTickerFiles...)
	symbols := append(append([]string{}, config.Tickers.Symbols...), args...)
	tickers, err := common.LoadTickers(files, symbols)
	if err != nil {
		return err
	}
	if len(tickers) == 0 {
		return errors.New("no tickers to screen: pass symbols, --tickers or [tickers] in config")
	}

	// SIGINT/SIGTERM stop dispatch; committed rows are kept
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return err
	}
	defer application.Close()

	opts := app.RunOptions{
		DryRun:          runDryRun,
		Fresh:           runFresh,
		ClearCache:      runClearCache,
		ResetOnComplete: config.Run.ClearOnComplete,
	}

	if err := application.Prepare(ctx, opts); err != nil {
		return err
	}

	if config.Run.Schedule != "" && !runDryRun {
		return application.RunScheduled(ctx, tickers, opts)
	}

	summary, err := application.RunOnce(ctx, tickers, opts)
	switch {
	case errors.Is(err, context.Canceled):
		if summary != nil {
			logger.Warn().
				Int("pending", summary.Pending()).
				Msg("Run interrupted, rerun to resume")
		}
		return nil
	case err != nil:
		var cpErr *models.CheckpointWriteError
		if errors.As(err, &cpErr) {
			logger.Error().Err(err).Msg("Checkpoint no longer writable, run stopped")
		}
		return err
	}

	if runDryRun {
		fmt.Printf("%d tickers would be screened (%d already processed)\n", summary.Pending(), summary.SkippedResumed)
	}
	return nil
}
