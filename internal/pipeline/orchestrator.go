// Package pipeline runs the checkpointed screen over a ticker list: a bounded
// worker pool fetches, evaluates and enriches tickers while a single committer
// makes each row durable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/ternarybob/valuescreen/internal/screen"
)

// RunSummary counts the outcomes of one run
type RunSummary = models.RunSummary

// Options tunes a run
type Options struct {
	Concurrency        int
	Retry              RetryPolicy
	CheckpointInterval int  // Consolidate output every N commits (0 = only at the end)
	DryRun             bool // Plan only: load the checkpoint and report what would run
}

// OptionsFromConfig derives run options from configuration
func OptionsFromConfig(config *common.Config) Options {
	return Options{
		Concurrency: config.Run.Concurrency,
		Retry: RetryPolicy{
			MaxAttempts: config.Run.RetryMax,
			BaseDelay:   common.ParseDuration(config.Run.RetryBackoffBase, 2*time.Second),
			MaxDelay:    common.ParseDuration(config.Run.RetryBackoffMax, 30*time.Second),
			CallTimeout: common.ParseDuration(config.Run.CallTimeout, 30*time.Second),
		},
		CheckpointInterval: config.Run.CheckpointInterval,
	}
}

// Orchestrator drives tickers through fetch, evaluate, enrich and commit
type Orchestrator struct {
	gateway   interfaces.FinancialsGateway
	generator interfaces.InsightGenerator
	store     interfaces.CheckpointStore
	sink      interfaces.OutputSink
	criteria  models.Criteria
	options   Options
	logger    arbor.ILogger

	now func() time.Time
}

// NewOrchestrator creates an orchestrator. sink may be nil to skip consolidation.
func NewOrchestrator(
	gateway interfaces.FinancialsGateway,
	generator interfaces.InsightGenerator,
	store interfaces.CheckpointStore,
	sink interfaces.OutputSink,
	criteria models.Criteria,
	options Options,
	logger arbor.ILogger,
) *Orchestrator {
	if options.Concurrency < 1 {
		options.Concurrency = 1
	}
	return &Orchestrator{
		gateway:   gateway,
		generator: generator,
		store:     store,
		sink:      sink,
		criteria:  criteria,
		options:   options,
		logger:    logger,
		now:       time.Now,
	}
}

// workItem is a recorded row on its way to the committer
type workItem struct {
	row     *models.ResultRow
	tracker *tickerTracker
}

// run holds the state shared by one Run's goroutines
type run struct {
	id      string
	state   *models.CheckpointState
	summary *RunSummary
	retries atomic.Int64
}

// Run processes tickers and returns the run summary. Tickers already in the
// checkpoint are skipped without any external call. Cancelling ctx stops
// dispatch; rows committed before then are kept and ctx's error is returned.
// A checkpoint write failure is fatal and returned as *models.CheckpointWriteError.
func (o *Orchestrator) Run(ctx context.Context, tickers []common.Ticker) (*RunSummary, error) {
	r := &run{
		id: uuid.New().String(),
		summary: &RunSummary{
			StartedAt: o.now(),
		},
	}
	r.summary.RunID = r.id

	state, err := o.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	r.state = state

	pending := o.plan(r, tickers)

	o.logger.Info().
		Str("run_id", r.id).
		Int("total", r.summary.Total).
		Int("resumed", r.summary.SkippedResumed).
		Int("pending", len(pending)).
		Int("concurrency", o.options.Concurrency).
		Bool("dry_run", o.options.DryRun).
		Msg("Starting screen run")

	if o.options.DryRun {
		for _, t := range pending {
			o.logger.Info().Str("ticker", t.String()).Msg("Would process")
		}
		o.finish(r, len(pending) == 0)
		return r.summary, nil
	}

	runErr := o.execute(ctx, r, pending)

	// The final consolidation runs even after cancellation so the file
	// reflects everything committed
	if o.sink != nil {
		if err := o.sink.Write(r.state.Rows); err != nil {
			o.logger.Error().Err(err).Msg("Final output consolidation failed")
			if runErr == nil {
				runErr = fmt.Errorf("failed to write output: %w", err)
			}
		}
	}

	o.finish(r, runErr == nil && r.summary.Pending() == 0)

	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	return r.summary, runErr
}

// plan de-duplicates tickers and splits off those already committed
func (o *Orchestrator) plan(r *run, tickers []common.Ticker) []common.Ticker {
	seen := make(map[string]struct{}, len(tickers))
	var pending []common.Ticker
	for _, t := range tickers {
		key := t.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		r.summary.Total++

		if r.state.IsProcessed(key) {
			newTickerTracker(key, o.logger).to(StateCommitted)
			r.summary.SkippedResumed++
			continue
		}
		pending = append(pending, t)
	}
	return pending
}

// execute runs the dispatcher, the worker pool and the committer
func (o *Orchestrator) execute(ctx context.Context, r *run, pending []common.Ticker) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	jobs := make(chan common.Ticker)
	results := make(chan workItem, o.options.Concurrency)

	g := new(errgroup.Group)

	g.Go(func() error {
		defer close(jobs)
		for _, t := range pending {
			if runCtx.Err() != nil {
				return nil
			}
			select {
			case <-runCtx.Done():
				return nil
			case jobs <- t:
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for i := 0; i < o.options.Concurrency; i++ {
		workers.Add(1)
		name := fmt.Sprintf("worker-%d", i)
		g.Go(func() (err error) {
			defer workers.Done()
			defer func() {
				if err != nil {
					stop()
				}
			}()
			defer common.RecoverAsError(o.logger, name, &err)

			for t := range jobs {
				// A job handed over as the run stopped is left pending
				if runCtx.Err() != nil {
					continue
				}
				if item, ok := o.process(runCtx, r, t); ok {
					results <- item
				}
			}
			return nil
		})
	}

	go func() {
		workers.Wait()
		close(results)
	}()

	var commitErr error
	g.Go(func() error {
		commitErr = o.commit(ctx, r, results, stop)
		return nil
	})

	err := g.Wait()
	r.summary.Retries = int(r.retries.Load())

	if commitErr != nil {
		return commitErr
	}
	return err
}

// commit is the single writer. After a checkpoint failure it keeps draining
// results so workers can exit, but appends nothing further.
func (o *Orchestrator) commit(ctx context.Context, r *run, results <-chan workItem, stop context.CancelFunc) error {
	// Appends outlive cancellation so a finished ticker is never lost
	storeCtx := context.WithoutCancel(ctx)

	var fatal error
	commits := 0
	for item := range results {
		if fatal != nil {
			continue
		}

		item.row.CommittedAt = o.now().UTC()
		if err := o.store.Append(storeCtx, item.row); err != nil {
			var cpErr *models.CheckpointWriteError
			if !errors.As(err, &cpErr) {
				err = &models.CheckpointWriteError{Ticker: item.row.Key, Err: err}
			}
			o.logger.Error().Str("ticker", item.row.Key).Err(err).Msg("Checkpoint write failed, stopping run")
			fatal = err
			stop()
			continue
		}

		item.tracker.to(StateCommitted)
		r.state.Add(item.row)
		r.summary.Record(item.row)
		commits++

		o.logger.Info().
			Str("ticker", item.row.Key).
			Str("status", string(item.row.Status)).
			Bool("passed", item.row.Passed()).
			Int("committed", r.summary.Processed).
			Msg("Ticker committed")

		if o.sink != nil && o.options.CheckpointInterval > 0 && commits%o.options.CheckpointInterval == 0 {
			if err := o.sink.Write(r.state.Rows); err != nil {
				o.logger.Warn().Err(err).Msg("Periodic output consolidation failed")
			}
		}
	}
	return fatal
}

// process takes one ticker from Pending to Recorded. ok is false when the
// run was cancelled before the ticker could finish; it then stays pending.
func (o *Orchestrator) process(runCtx context.Context, r *run, t common.Ticker) (workItem, bool) {
	key := t.String()
	tracker := newTickerTracker(key, o.logger)
	row := &models.ResultRow{
		Key:    key,
		Symbol: t.EODHDSymbol(),
		RunID:  r.id,
		Status: models.StatusOK,
	}

	tracker.to(StateFetching)
	var raw *models.RawFinancials
	retries, err := o.options.Retry.Do(runCtx, o.logger, key, "fetch", func(ctx context.Context) error {
		fetched, err := o.gateway.Fetch(ctx, t)
		raw = fetched
		return err
	})
	r.retries.Add(int64(retries))

	if errors.Is(err, ErrAbandoned) {
		o.logger.Info().Str("ticker", key).Msg("Run cancelled during fetch retries, ticker left pending")
		return workItem{}, false
	}
	if err == nil && raw == nil {
		err = models.NewCallError(models.KindMalformed, "fetch", key, errors.New("gateway returned no data"))
	}
	if err != nil {
		o.logger.Warn().
			Str("ticker", key).
			Str("kind", string(models.KindOf(err))).
			Err(err).
			Msg("Fetch failed")
		row.Status = models.StatusFetchFailed
		row.Note = err.Error()
		row.FetchedAt = o.now().UTC()
		tracker.to(StateRecorded)
		return workItem{row: row, tracker: tracker}, true
	}

	row.Company = raw.Name
	row.Price = raw.Price
	row.FetchedAt = raw.FetchedAt
	fundamentals := raw.Fundamentals
	row.Fundamentals = &fundamentals

	tracker.to(StateEvaluating)
	eval := screen.Evaluate(*raw, o.criteria)
	row.Evaluation = &eval
	row.Note = unavailableNote(&eval)

	if !eval.Overall {
		tracker.to(StateSkipped)
		tracker.to(StateRecorded)
		return workItem{row: row, tracker: tracker}, true
	}

	tracker.to(StateEnriching)
	var insight *models.Insight
	retries, err = o.options.Retry.Do(runCtx, o.logger, key, "generate", func(ctx context.Context) error {
		generated, err := o.generator.Generate(ctx, t, raw, &eval)
		insight = generated
		return err
	})
	r.retries.Add(int64(retries))

	switch {
	case errors.Is(err, ErrAbandoned):
		o.logger.Info().Str("ticker", key).Msg("Run cancelled during insight retries, ticker left pending")
		return workItem{}, false
	case err != nil || insight == nil:
		if err == nil {
			err = errors.New("generator returned no insight")
		}
		o.logger.Warn().
			Str("ticker", key).
			Str("kind", string(models.KindOf(err))).
			Err(err).
			Msg("Insight unavailable")
		row.Status = models.StatusInsightUnavailable
		row.Note = joinNotes(row.Note, err.Error())
	default:
		row.Insight = insight
	}

	tracker.to(StateRecorded)
	return workItem{row: row, tracker: tracker}, true
}

// finish stamps timing and logs the final summary
func (o *Orchestrator) finish(r *run, completed bool) {
	s := r.summary
	s.FinishedAt = o.now()
	s.Elapsed = s.FinishedAt.Sub(s.StartedAt)
	s.Completed = completed

	o.logger.Info().
		Str("run_id", s.RunID).
		Int("total", s.Total).
		Int("resumed", s.SkippedResumed).
		Int("processed", s.Processed).
		Int("passed", s.Passed).
		Int("failed_screen", s.FailedScreen).
		Int("fetch_failed", s.FetchFailed).
		Int("insight_unavailable", s.InsightUnavailable).
		Int("pending", s.Pending()).
		Int("retries", s.Retries).
		Float64("success_rate", s.SuccessRate()).
		Dur("elapsed", s.Elapsed).
		Bool("completed", s.Completed).
		Msg("Screen run finished")
}

// unavailableNote lists metrics that could not be computed
func unavailableNote(eval *models.EvaluationResult) string {
	var notes []string
	for _, r := range eval.Results() {
		if !r.Available && r.Reason != "" {
			notes = append(notes, r.Reason)
		}
	}
	return strings.Join(notes, "; ")
}

func joinNotes(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
