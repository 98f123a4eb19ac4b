package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name      string
		err       error
		kind      ErrorKind
		retryable bool
	}{
		{"rate limited", NewCallError(KindRateLimited, "fetch", "US:KO", base), KindRateLimited, true},
		{"transient wrapped", fmt.Errorf("attempt 2: %w", NewCallError(KindTransient, "fetch", "US:KO", base)), KindTransient, true},
		{"not found", NewCallError(KindNotFound, "fetch", "US:KO", nil), KindNotFound, false},
		{"malformed", NewCallError(KindMalformed, "generate", "US:KO", base), KindMalformed, false},
		{"data quality", &DataQualityError{Metric: MetricPE, Reason: "eps <= 0"}, KindDataQuality, false},
		{"checkpoint", &CheckpointWriteError{Ticker: "US:KO", Err: base}, KindCheckpointWrite, false},
		{"unclassified", base, KindTransient, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestCallError_Unwrap(t *testing.T) {
	base := errors.New("connection reset")
	err := NewCallError(KindTransient, "fetch", "US:KO", base)

	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "US:KO")
	assert.Contains(t, err.Error(), "transient")
}

func TestCheckpointState_AddIgnoresDuplicates(t *testing.T) {
	state := NewCheckpointState()
	state.Add(&ResultRow{Key: "US:KO"})
	state.Add(&ResultRow{Key: "US:KO"})
	state.Add(&ResultRow{Key: "US:PFE"})

	assert.Len(t, state.Rows, 2)
	assert.True(t, state.IsProcessed("US:KO"))
	assert.False(t, state.IsProcessed("US:MSFT"))
}
