package models

import "time"

// RowStatus is the outcome annotation written with every row
type RowStatus string

const (
	StatusOK                 RowStatus = "ok"
	StatusInsightUnavailable RowStatus = "insight-unavailable"
	StatusFetchFailed        RowStatus = "fetch-failed"
)

// ResultRow is the unit persisted per ticker
type ResultRow struct {
	Key          string            `json:"key"` // Exchange-qualified ticker, e.g. "US:KO"
	Symbol       string            `json:"symbol"`
	Company      string            `json:"company"`
	Price        float64           `json:"price"`
	Evaluation   *EvaluationResult `json:"evaluation,omitempty"`   // nil when the fetch failed
	Insight      *Insight          `json:"insight,omitempty"`      // nil unless the screen passed and generation succeeded
	Fundamentals *Fundamentals     `json:"fundamentals,omitempty"` // nil when the fetch failed
	Status       RowStatus         `json:"status"`
	Note         string            `json:"note,omitempty"`
	RunID        string            `json:"run_id"`
	FetchedAt    time.Time         `json:"fetched_at"`
	CommittedAt  time.Time         `json:"committed_at"`
}

// Passed reports whether the row passed the screen
func (r *ResultRow) Passed() bool {
	return r.Evaluation != nil && r.Evaluation.Overall
}

// CheckpointState is the set of processed tickers and the rows accumulated so far
type CheckpointState struct {
	Processed map[string]struct{}
	Rows      []*ResultRow
}

// NewCheckpointState returns an empty state
func NewCheckpointState() *CheckpointState {
	return &CheckpointState{Processed: make(map[string]struct{})}
}

// IsProcessed reports whether key has a committed row
func (s *CheckpointState) IsProcessed(key string) bool {
	_, ok := s.Processed[key]
	return ok
}

// Add records a committed row
func (s *CheckpointState) Add(row *ResultRow) {
	if _, ok := s.Processed[row.Key]; ok {
		return
	}
	s.Processed[row.Key] = struct{}{}
	s.Rows = append(s.Rows, row)
}
