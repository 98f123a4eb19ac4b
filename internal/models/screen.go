package models

// Metric names a screened ratio
type Metric string

const (
	MetricPE  Metric = "pe"
	MetricPB  Metric = "pb"
	MetricDE  Metric = "de"
	MetricROE Metric = "roe"
)

// Metrics lists the screened ratios in output column order
var Metrics = []Metric{MetricPE, MetricPB, MetricDE, MetricROE}

// Criteria holds the thresholds a ticker must satisfy. Read-only during a run.
type Criteria struct {
	PEMax  float64 `json:"pe_max"`
	PBMax  float64 `json:"pb_max"`
	DEMax  float64 `json:"de_max"`
	ROEMin float64 `json:"roe_min"`
}

// DefaultCriteria returns the classic value screen
func DefaultCriteria() Criteria {
	return Criteria{PEMax: 10, PBMax: 1.5, DEMax: 1, ROEMin: 0.12}
}

// MetricResult is one computed ratio and its pass flag.
// Available is false when the ratio is undefined for the inputs; Pass is then false.
type MetricResult struct {
	Metric    Metric  `json:"metric"`
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
	Pass      bool    `json:"pass"`
	Reason    string  `json:"reason,omitempty"`
}

// EvaluationResult is the outcome of screening one ticker. Never mutated after creation.
type EvaluationResult struct {
	PE      MetricResult `json:"pe"`
	PB      MetricResult `json:"pb"`
	DE      MetricResult `json:"de"`
	ROE     MetricResult `json:"roe"`
	Overall bool         `json:"overall"`
}

// Results returns the per-metric results in column order
func (e *EvaluationResult) Results() []MetricResult {
	return []MetricResult{e.PE, e.PB, e.DE, e.ROE}
}

// PassFlags returns the per-metric pass flags in column order
func (e *EvaluationResult) PassFlags() []bool {
	return []bool{e.PE.Pass, e.PB.Pass, e.DE.Pass, e.ROE.Pass}
}

// Unavailable lists metrics that could not be computed
func (e *EvaluationResult) Unavailable() []Metric {
	var out []Metric
	for _, r := range e.Results() {
		if !r.Available {
			out = append(out, r.Metric)
		}
	}
	return out
}

// SentimentLabel is the coarse sentiment direction
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
)

// Insight is the narrative generated for a ticker that passed the screen
type Insight struct {
	Sentiment        SentimentLabel `json:"sentiment"`
	SentimentScore   float64        `json:"sentiment_score"`
	SentimentSummary string         `json:"sentiment_summary"`
	EarningsSummary  string         `json:"earnings_summary"`
	Commentary       string         `json:"commentary"`
	ValueView        string         `json:"value_view"`
}
