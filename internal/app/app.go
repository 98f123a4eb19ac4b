package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/eodhd"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/ternarybob/valuescreen/internal/output"
	"github.com/ternarybob/valuescreen/internal/pipeline"
	"github.com/ternarybob/valuescreen/internal/services/llm"
	"github.com/ternarybob/valuescreen/internal/storage"
	"github.com/ternarybob/valuescreen/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	Gateway        interfaces.FinancialsGateway
	LLMService     interfaces.LLMService
	InsightService interfaces.InsightGenerator
	Output         *output.CSVWriter

	// Only one screen runs at a time, scheduled ticks that overlap are skipped
	runMu sync.Mutex
}

// RunOptions tunes a single screen
type RunOptions struct {
	DryRun bool

	// Fresh discards the checkpoint before screening
	Fresh bool

	// ClearCache drops cached upstream responses before screening
	ClearCache bool

	// ResetOnComplete discards the checkpoint after a fully completed run
	ResetOnComplete bool
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Debug().
		Str("output", cfg.Output.Path).
		Str("badger", cfg.Storage.Badger.Path).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices wires the gateway, the insight generator and the output sink
func (a *App) initServices() error {
	cfg := a.Config

	opts := []eodhd.ClientOption{
		eodhd.WithBaseURL(cfg.EODHD.BaseURL),
		eodhd.WithLogger(a.Logger),
		eodhd.WithRateLimit(cfg.EODHD.RateLimit),
		eodhd.WithHTTPClient(&http.Client{
			Timeout: common.ParseDuration(cfg.EODHD.Timeout, eodhd.DefaultTimeout),
		}),
	}
	if ttl := common.ParseDuration(cfg.EODHD.CacheTTL, 24*time.Hour); cfg.EODHD.CacheTTL != "0" && ttl > 0 {
		opts = append(opts, eodhd.WithCache(a.StorageManager.ResponseCache(badger.CacheNamespaceEODHD), ttl))
	}
	client := eodhd.NewClient(cfg.EODHD.APIKey, opts...)
	a.Gateway = eodhd.NewGateway(client, cfg.EODHD.NewsLimit, a.Logger)

	llmService, err := llm.NewLLMService(cfg, a.StorageManager.ResponseCache(badger.CacheNamespaceLLM), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	a.LLMService = llmService
	a.InsightService = llm.NewInsightService(llmService, a.Logger)

	a.Output = output.NewCSVWriter(cfg.Output.Path, a.Logger)

	return nil
}

// Criteria returns the configured screen thresholds
func (a *App) Criteria() models.Criteria {
	return models.Criteria{
		PEMax:  a.Config.Criteria.PEMax,
		PBMax:  a.Config.Criteria.PBMax,
		DEMax:  a.Config.Criteria.DEMax,
		ROEMin: a.Config.Criteria.ROEMin,
	}
}

// Reset discards all checkpoint state so the next run starts over
func (a *App) Reset(ctx context.Context) error {
	return a.StorageManager.CheckpointStorage().Reset(ctx)
}

// Prepare readies the checkpoint and caches for a run. A fresh run resets the
// checkpoint; otherwise an empty checkpoint is seeded from existing output.
// A dry run only reads, so it skips all of this.
func (a *App) Prepare(ctx context.Context, opts RunOptions) error {
	if opts.DryRun {
		if opts.Fresh || opts.ClearCache {
			a.Logger.Warn().Msg("Dry run leaves checkpoint and caches untouched")
		}
		return nil
	}

	if opts.Fresh {
		if err := a.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset checkpoint: %w", err)
		}
	} else if err := a.SeedFromOutput(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Could not seed checkpoint from existing output")
	}

	if opts.ClearCache {
		return a.ClearCaches(ctx)
	}
	return nil
}

// ClearCaches drops cached upstream responses so the next run fetches and
// prompts afresh. The checkpoint is untouched.
func (a *App) ClearCaches(ctx context.Context) error {
	if err := a.StorageManager.ClearCaches(ctx); err != nil {
		return fmt.Errorf("failed to clear response caches: %w", err)
	}
	a.Logger.Info().Msg("Response caches cleared")
	return nil
}

// SeedFromOutput imports the rows of an existing output file when the
// checkpoint is empty, so a run started before the checkpoint store existed
// resumes instead of starting over. An empty checkpoint left behind by a
// completed run is not seeded: that run's output is finished work.
func (a *App) SeedFromOutput(ctx context.Context) error {
	checkpoint := a.StorageManager.CheckpointStorage()

	n, err := checkpoint.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	marker, err := checkpoint.LastCompletion(ctx)
	if err != nil {
		return err
	}
	if marker != nil {
		a.Logger.Debug().
			Str("run_id", marker.RunID).
			Str("completed_at", marker.CompletedAt.Format(time.RFC3339)).
			Msg("Last run completed, starting fresh")
		return nil
	}

	rows, err := output.ReadCSV(a.Config.Output.Path)
	if err != nil {
		return fmt.Errorf("failed to read existing output: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	added, err := checkpoint.Import(ctx, rows)
	if err != nil {
		return fmt.Errorf("failed to seed checkpoint: %w", err)
	}

	a.Logger.Info().
		Str("path", a.Config.Output.Path).
		Int("rows", added).
		Msg("Checkpoint seeded from existing output")
	return nil
}

// RunOnce screens tickers, writes the report and applies the completion policy
func (a *App) RunOnce(ctx context.Context, tickers []common.Ticker, opts RunOptions) (*models.RunSummary, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	return a.runLocked(ctx, tickers, opts)
}

func (a *App) runLocked(ctx context.Context, tickers []common.Ticker, opts RunOptions) (*models.RunSummary, error) {
	checkpoint := a.StorageManager.CheckpointStorage()

	options := pipeline.OptionsFromConfig(a.Config)
	options.DryRun = opts.DryRun

	orchestrator := pipeline.NewOrchestrator(a.Gateway, a.InsightService, checkpoint, a.Output, a.Criteria(), options, a.Logger)
	summary, runErr := orchestrator.Run(ctx, tickers)
	if summary == nil || opts.DryRun {
		return summary, runErr
	}

	// Reporting and cleanup happen even when the run was interrupted
	bg := context.WithoutCancel(ctx)

	if a.Config.Output.ReportPath != "" {
		if err := a.writeReport(bg, summary); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to write run report")
		}
	}

	if runErr == nil && summary.Completed && opts.ResetOnComplete {
		marker := models.CompletionMarker{RunID: summary.RunID, Rows: summary.Total}
		if err := checkpoint.CompleteRun(bg, marker); err != nil {
			return summary, fmt.Errorf("failed to clear checkpoint: %w", err)
		}
		a.Logger.Info().Msg("Run complete, checkpoint cleared")
	}

	return summary, runErr
}

func (a *App) writeReport(ctx context.Context, summary *models.RunSummary) error {
	state, err := a.StorageManager.CheckpointStorage().Load(ctx)
	if err != nil {
		return err
	}
	report := &output.Report{
		Summary:  summary,
		Criteria: a.Criteria(),
		Rows:     state.Rows,
	}
	return output.WriteReport(a.Config.Output.ReportPath, a.Config.Output.ReportPDF, report, a.Logger)
}

// RunScheduled screens tickers on the configured cron schedule until ctx is
// cancelled. Every completed run clears the checkpoint so the next tick
// screens the full list again.
func (a *App) RunScheduled(ctx context.Context, tickers []common.Ticker, opts RunOptions) error {
	schedule := a.Config.Run.Schedule
	if err := common.ValidateSchedule(schedule); err != nil {
		return err
	}

	opts.ResetOnComplete = true

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if !a.runMu.TryLock() {
			a.Logger.Warn().Str("schedule", schedule).Msg("Previous screen still running, skipping tick")
			return
		}
		defer a.runMu.Unlock()

		if _, err := a.runLocked(ctx, tickers, opts); err != nil && ctx.Err() == nil {
			a.Logger.Error().Err(err).Msg("Scheduled screen failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule screen: %w", err)
	}

	c.Start()
	a.Logger.Info().
		Str("schedule", schedule).
		Int("tickers", len(tickers)).
		Msg("Scheduled screen started - Press Ctrl+C to stop")

	<-ctx.Done()

	// Wait for a running tick to drain
	<-c.Stop().Done()
	a.Logger.Info().Msg("Scheduler stopped")
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Debug().Msg("Storage closed")
	}

	return nil
}
