package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/models"
)

// FinancialsGateway fetches the raw inputs for one ticker.
type FinancialsGateway interface {
	// Fetch returns price, fundamentals and recent news for ticker.
	//
	// Errors are *models.CallError with Kind RateLimited, NotFound,
	// Transient or Malformed. Context deadline errors count as Transient.
	Fetch(ctx context.Context, ticker common.Ticker) (*models.RawFinancials, error)
}

// InsightGenerator produces the narrative fields for a ticker that passed the screen.
type InsightGenerator interface {
	// Generate returns sentiment, earnings-call summary and commentary.
	//
	// Errors are *models.CallError with Kind RateLimited, Transient or Malformed.
	Generate(ctx context.Context, ticker common.Ticker, raw *models.RawFinancials, eval *models.EvaluationResult) (*models.Insight, error)
}

// CheckpointStore is the durable record of processed tickers and their rows.
type CheckpointStore interface {
	// Load reconstructs state from everything durably appended so far.
	// No prior state yields an empty CheckpointState.
	Load(ctx context.Context) (*models.CheckpointState, error)

	// Append persists row and marks its ticker processed. The row is durable
	// when Append returns. Safe for concurrent use.
	Append(ctx context.Context, row *models.ResultRow) error

	// ProcessedSet returns the keys of every committed ticker
	ProcessedSet(ctx context.Context) (map[string]struct{}, error)

	// Reset discards all checkpoint state
	Reset(ctx context.Context) error
}

// OutputSink writes the consolidated tabular output.
type OutputSink interface {
	// Write replaces the output with rows. Readers never observe a partial file.
	Write(rows []*models.ResultRow) error
}

// ResponseCache is a TTL key/value cache for upstream responses.
type ResponseCache interface {
	// Get returns the cached value and true, or false when absent or expired
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl (0 = no expiry)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
