package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/valuescreen/internal/models"
)

func TestCountRows(t *testing.T) {
	rows := sampleRows()
	rows = append(rows, &models.ResultRow{
		Key:        "US:PEP",
		Evaluation: &models.EvaluationResult{Overall: true},
		Status:     models.StatusInsightUnavailable,
		RunID:      "run-2",
	})

	c := CountRows(rows)

	assert.Equal(t, 4, c.Committed)
	assert.Equal(t, 2, c.Passed)
	assert.Equal(t, 1, c.InsightUnavailable)
	assert.Equal(t, 1, c.FailedScreen)
	assert.Equal(t, 1, c.FetchFailed)
	assert.Equal(t, "run-2", c.LastRunID)
}

func TestStatusTable(t *testing.T) {
	out := StatusTable(CountRows(sampleRows()), 10)

	assert.Contains(t, out, "Committed")
	assert.Contains(t, out, "Fetch failed")
	assert.Contains(t, out, "7", "pending = requested - committed")
	assert.Contains(t, strings.ToUpper(out), "PENDING")
}
