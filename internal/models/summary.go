package models

import "time"

// RunSummary counts the outcomes of one pipeline run
type RunSummary struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`

	Total              int `json:"total"`               // Tickers requested, after de-duplication
	SkippedResumed     int `json:"skipped_resumed"`     // Already committed by an earlier run
	Processed          int `json:"processed"`           // Committed by this run
	Passed             int `json:"passed"`              // Passed the screen
	FailedScreen       int `json:"failed_screen"`       // Fetched but failed the screen
	FetchFailed        int `json:"fetch_failed"`        // Fetch exhausted retries or was not retryable
	InsightUnavailable int `json:"insight_unavailable"` // Passed but insight generation failed
	Retries            int `json:"retries"`             // Extra attempts across all calls

	// Completed is false when the run stopped before every ticker was committed
	Completed bool `json:"completed"`
}

// Pending returns tickers neither resumed nor committed by this run
func (s *RunSummary) Pending() int {
	return s.Total - s.SkippedResumed - s.Processed
}

// SuccessRate is the share of processed tickers that produced a usable row
func (s *RunSummary) SuccessRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Processed-s.FetchFailed) / float64(s.Processed)
}

// Record counts a committed row
func (s *RunSummary) Record(row *ResultRow) {
	s.Processed++
	switch {
	case row.Status == StatusFetchFailed:
		s.FetchFailed++
	case row.Passed():
		s.Passed++
		if row.Status == StatusInsightUnavailable {
			s.InsightUnavailable++
		}
	default:
		s.FailedScreen++
	}
}

// CompletionMarker records the last run that committed every ticker and then
// cleared its checkpoint. While it is present the output file of that run is
// not used to seed a new checkpoint.
type CompletionMarker struct {
	RunID       string    `json:"run_id"`
	Rows        int       `json:"rows"`
	CompletedAt time.Time `json:"completed_at"`
}
