package screen

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/valuescreen/internal/models"
)

// value returns financials giving P/E=8, P/B=1.2, D/E=0.5, ROE=0.15
func value() models.RawFinancials {
	return models.RawFinancials{
		Symbol:            "KO.US",
		Price:             12,
		EPS:               1.5,
		BookValuePerShare: 10,
		TotalDebt:         50,
		TotalEquity:       100,
		NetIncome:         15,
	}
}

func TestEvaluate_AllPass(t *testing.T) {
	result := Evaluate(value(), models.DefaultCriteria())

	assert.InDelta(t, 8.0, result.PE.Value, 1e-9)
	assert.InDelta(t, 1.2, result.PB.Value, 1e-9)
	assert.InDelta(t, 0.5, result.DE.Value, 1e-9)
	assert.InDelta(t, 0.15, result.ROE.Value, 1e-9)
	assert.Equal(t, []bool{true, true, true, true}, result.PassFlags())
	assert.True(t, result.Overall)
	assert.Empty(t, result.Unavailable())
}

func TestEvaluate_PEAboveThreshold(t *testing.T) {
	raw := value()
	raw.Price = 15
	raw.EPS = 1
	raw.BookValuePerShare = 12.5

	result := Evaluate(raw, models.DefaultCriteria())

	assert.InDelta(t, 15.0, result.PE.Value, 1e-9)
	assert.Equal(t, []bool{false, true, true, true}, result.PassFlags())
	assert.False(t, result.Overall)
}

func TestEvaluate_NonPositiveEPSNeverPasses(t *testing.T) {
	// Every other metric is comfortably inside its threshold
	for _, eps := range []float64{0, -0.01, -3, math.Inf(-1)} {
		raw := value()
		raw.EPS = eps

		result := Evaluate(raw, models.DefaultCriteria())

		assert.False(t, result.PE.Available, "eps=%v", eps)
		assert.False(t, result.PE.Pass, "eps=%v", eps)
		assert.NotEmpty(t, result.PE.Reason)
		assert.False(t, result.Overall, "eps=%v", eps)
		assert.Equal(t, []models.Metric{models.MetricPE}, result.Unavailable())
	}
}

func TestEvaluate_NonPositiveEquity(t *testing.T) {
	raw := value()
	raw.TotalEquity = -20

	result := Evaluate(raw, models.DefaultCriteria())

	assert.False(t, result.DE.Available)
	assert.False(t, result.ROE.Available)
	assert.False(t, result.Overall)
	assert.ElementsMatch(t, []models.Metric{models.MetricDE, models.MetricROE}, result.Unavailable())
}

func TestEvaluate_BoundariesAreStrict(t *testing.T) {
	criteria := models.Criteria{PEMax: 8, PBMax: 1.5, DEMax: 1, ROEMin: 0.15}

	result := Evaluate(value(), criteria)

	assert.False(t, result.PE.Pass, "P/E equal to max must fail")
	assert.False(t, result.ROE.Pass, "ROE equal to min must fail")
	assert.False(t, result.Overall)
}

func TestEvaluate_Deterministic(t *testing.T) {
	raw := value()
	criteria := models.DefaultCriteria()

	assert.Equal(t, Evaluate(raw, criteria), Evaluate(raw, criteria))
}

func TestRatio(t *testing.T) {
	tests := []struct {
		name        string
		numerator   float64
		denominator float64
		want        float64
		wantErr     bool
	}{
		{"normal", 10, 4, 2.5, false},
		{"negative numerator", -10, 4, -2.5, false},
		{"zero denominator", 10, 0, 0, true},
		{"negative denominator", 10, -1, 0, true},
		{"nan denominator", 10, math.NaN(), 0, true},
		{"infinite numerator", math.Inf(1), 2, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Ratio(models.MetricPB, tt.numerator, tt.denominator, "book value")
			if tt.wantErr {
				var dq *models.DataQualityError
				require.True(t, errors.As(err, &dq))
				assert.Equal(t, models.MetricPB, dq.Metric)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
