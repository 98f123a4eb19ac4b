package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CheckpointRecord is the persisted form of a committed ResultRow.
// Seq preserves commit order across restarts.
type CheckpointRecord struct {
	Key         string
	Seq         uint64
	Row         models.ResultRow
	CommittedAt time.Time
}

// CompletionRecord is the single marker written when a completed run clears
// its checkpoint
type CompletionRecord struct {
	ID     string
	Marker models.CompletionMarker
}

const completionKey = "last-completed"

// CheckpointStorage implements interfaces.CheckpointStorage on Badger
type CheckpointStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
	seq    uint64
	loaded bool
}

// NewCheckpointStorage creates a new CheckpointStorage instance
func NewCheckpointStorage(db *BadgerDB, logger arbor.ILogger) *CheckpointStorage {
	return &CheckpointStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.CheckpointStorage = (*CheckpointStorage)(nil)

// Load reconstructs the checkpoint state from committed records, in commit order
func (s *CheckpointStorage) Load(ctx context.Context) (*models.CheckpointState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.findAll()
	if err != nil {
		return nil, err
	}

	state := models.NewCheckpointState()
	for i := range records {
		row := records[i].Row
		state.Add(&row)
		if records[i].Seq > s.seq {
			s.seq = records[i].Seq
		}
	}
	s.loaded = true

	s.logger.Debug().
		Int("processed", len(state.Processed)).
		Msg("Checkpoint loaded")

	return state, nil
}

// Append durably records row. A second append for the same key is a no-op,
// so a ticker never has more than one row.
func (s *CheckpointStorage) Append(ctx context.Context, row *models.ResultRow) error {
	if row == nil || row.Key == "" {
		return &models.CheckpointWriteError{Err: errors.New("row has no key")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.restoreSeq(); err != nil {
			return &models.CheckpointWriteError{Ticker: row.Key, Err: err}
		}
	}

	now := time.Now()
	if row.CommittedAt.IsZero() {
		row.CommittedAt = now
	}

	record := CheckpointRecord{
		Key:         row.Key,
		Seq:         s.seq + 1,
		Row:         *row,
		CommittedAt: now,
	}

	err := s.db.Store().Insert(row.Key, &record)
	if errors.Is(err, badgerhold.ErrKeyExists) {
		s.logger.Debug().Str("ticker", row.Key).Msg("Checkpoint already holds ticker, append ignored")
		return nil
	}
	if err != nil {
		return &models.CheckpointWriteError{Ticker: row.Key, Err: err}
	}

	s.seq++
	return nil
}

// ProcessedSet returns the keys of every committed ticker
func (s *CheckpointStorage) ProcessedSet(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.findAll()
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(records))
	for i := range records {
		set[records[i].Key] = struct{}{}
	}
	return set, nil
}

// Reset discards every checkpoint record
func (s *CheckpointStorage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().DeleteMatching(&CheckpointRecord{}, nil); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	s.seq = 0
	s.loaded = true

	s.logger.Info().Msg("Checkpoint reset")
	return nil
}

// CompleteRun records marker and then discards every checkpoint record. The
// marker is written first so a crash in between leaves the checkpoint intact
// rather than an empty checkpoint without a marker.
func (s *CheckpointStorage) CompleteRun(ctx context.Context, marker models.CompletionMarker) error {
	if marker.CompletedAt.IsZero() {
		marker.CompletedAt = time.Now()
	}

	record := CompletionRecord{ID: completionKey, Marker: marker}
	if err := s.db.Store().Upsert(completionKey, &record); err != nil {
		return fmt.Errorf("failed to record run completion: %w", err)
	}

	return s.Reset(ctx)
}

// LastCompletion returns the marker of the last completed run, or nil when
// no run has completed and cleared the checkpoint
func (s *CheckpointStorage) LastCompletion(ctx context.Context) (*models.CompletionMarker, error) {
	var record CompletionRecord
	err := s.db.Store().Get(completionKey, &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read completion marker: %w", err)
	}
	return &record.Marker, nil
}

// Import appends rows that are not yet committed, returning how many were added.
// Used to seed the store from an existing CSV output.
func (s *CheckpointStorage) Import(ctx context.Context, rows []*models.ResultRow) (int, error) {
	existing, err := s.ProcessedSet(ctx)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, row := range rows {
		if _, ok := existing[row.Key]; ok {
			continue
		}
		if err := s.Append(ctx, row); err != nil {
			return added, err
		}
		existing[row.Key] = struct{}{}
		added++
	}
	return added, nil
}

// Count returns the number of committed tickers
func (s *CheckpointStorage) Count(ctx context.Context) (int, error) {
	n, err := s.db.Store().Count(&CheckpointRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count checkpoint records: %w", err)
	}
	return int(n), nil
}

func (s *CheckpointStorage) findAll() ([]CheckpointRecord, error) {
	var records []CheckpointRecord
	query := badgerhold.Where("Key").Ne("").SortBy("Seq")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return records, nil
}

// restoreSeq continues numbering after the highest committed sequence
func (s *CheckpointStorage) restoreSeq() error {
	records, err := s.findAll()
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].Seq > s.seq {
			s.seq = records[i].Seq
		}
	}
	s.loaded = true
	return nil
}
