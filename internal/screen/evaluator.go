// Package screen applies the value-investing thresholds to raw financials.
// Everything here is pure: identical inputs always give identical results.
package screen

import (
	"math"

	"github.com/ternarybob/valuescreen/internal/models"
)

// Evaluate computes P/E, P/B, D/E and ROE for raw and applies criteria.
// A ratio whose denominator is not positive is unavailable and fails.
func Evaluate(raw models.RawFinancials, criteria models.Criteria) models.EvaluationResult {
	result := models.EvaluationResult{
		PE:  below(ratio(models.MetricPE, raw.Price, raw.EPS, "earnings per share"), criteria.PEMax),
		PB:  below(ratio(models.MetricPB, raw.Price, raw.BookValuePerShare, "book value per share"), criteria.PBMax),
		DE:  below(ratio(models.MetricDE, raw.TotalDebt, raw.TotalEquity, "total equity"), criteria.DEMax),
		ROE: above(ratio(models.MetricROE, raw.NetIncome, raw.TotalEquity, "shareholder equity"), criteria.ROEMin),
	}

	result.Overall = result.PE.Pass && result.PB.Pass && result.DE.Pass && result.ROE.Pass

	return result
}

// Ratio computes numerator/denominator for metric, returning a DataQualityError
// when the denominator is not positive or the quotient is not finite.
func Ratio(metric models.Metric, numerator, denominator float64, denominatorName string) (float64, error) {
	if denominator <= 0 || math.IsNaN(denominator) {
		return 0, &models.DataQualityError{Metric: metric, Reason: denominatorName + " is not positive"}
	}
	if math.IsNaN(numerator) || math.IsInf(numerator, 0) {
		return 0, &models.DataQualityError{Metric: metric, Reason: "numerator is not finite"}
	}
	value := numerator / denominator
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, &models.DataQualityError{Metric: metric, Reason: "ratio is not finite"}
	}
	return value, nil
}

func ratio(metric models.Metric, numerator, denominator float64, denominatorName string) models.MetricResult {
	value, err := Ratio(metric, numerator, denominator, denominatorName)
	if err != nil {
		return models.MetricResult{Metric: metric, Reason: err.Error()}
	}
	return models.MetricResult{Metric: metric, Value: value, Available: true}
}

// below passes an available metric strictly under max
func below(r models.MetricResult, max float64) models.MetricResult {
	r.Pass = r.Available && r.Value < max
	return r
}

// above passes an available metric strictly over min
func above(r models.MetricResult, min float64) models.MetricResult {
	r.Pass = r.Available && r.Value > min
	return r
}
