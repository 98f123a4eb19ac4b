package interfaces

import (
	"context"

	"github.com/ternarybob/valuescreen/internal/models"
)

// CheckpointStorage is the checkpoint store plus the maintenance operations
// the CLI needs around a run.
type CheckpointStorage interface {
	CheckpointStore

	// Import seeds the store with rows from an earlier output file. Tickers
	// already present are left alone. Returns the number of rows added.
	Import(ctx context.Context, rows []*models.ResultRow) (int, error)

	// Count returns the number of committed rows
	Count(ctx context.Context) (int, error)

	// CompleteRun marks a fully completed run and resets the checkpoint
	CompleteRun(ctx context.Context, marker models.CompletionMarker) error

	// LastCompletion returns the marker left by CompleteRun, nil if none
	LastCompletion(ctx context.Context) (*models.CompletionMarker, error)
}

// StorageManager owns the database and hands out the stores built on it
type StorageManager interface {
	CheckpointStorage() CheckpointStorage

	// ResponseCache returns the cache for one upstream ("eodhd", "llm")
	ResponseCache(namespace string) ResponseCache

	// ClearCaches drops every cached upstream response
	ClearCaches(ctx context.Context) error

	Close() error
}
