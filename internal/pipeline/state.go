package pipeline

import (
	"github.com/ternarybob/arbor"
)

// TickerState is a ticker's position in the pipeline
type TickerState int

const (
	StatePending TickerState = iota
	StateFetching
	StateEvaluating
	StateEnriching
	StateSkipped
	StateRecorded
	StateCommitted
)

func (s TickerState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateEvaluating:
		return "evaluating"
	case StateEnriching:
		return "enriching"
	case StateSkipped:
		return "skipped"
	case StateRecorded:
		return "recorded"
	case StateCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// validTransitions lists the edges of the ticker state machine
var validTransitions = map[TickerState][]TickerState{
	StatePending:    {StateFetching, StateCommitted},
	StateFetching:   {StateEvaluating, StateRecorded},
	StateEvaluating: {StateEnriching, StateSkipped},
	StateEnriching:  {StateRecorded},
	StateSkipped:    {StateRecorded},
	StateRecorded:   {StateCommitted},
}

// CanTransition reports whether from -> to is an edge of the state machine
func CanTransition(from, to TickerState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// tickerTracker follows one ticker through the state machine
type tickerTracker struct {
	key    string
	state  TickerState
	logger arbor.ILogger
}

func newTickerTracker(key string, logger arbor.ILogger) *tickerTracker {
	return &tickerTracker{key: key, state: StatePending, logger: logger}
}

// to moves the ticker to next, logging the transition. Invalid edges are
// logged and still applied so a bug never stalls a run.
func (t *tickerTracker) to(next TickerState) {
	if !CanTransition(t.state, next) {
		t.logger.Error().
			Str("ticker", t.key).
			Str("from", t.state.String()).
			Str("to", next.String()).
			Msg("Invalid ticker state transition")
	} else {
		t.logger.Debug().
			Str("ticker", t.key).
			Str("from", t.state.String()).
			Str("to", next.String()).
			Msg("Ticker state")
	}
	t.state = next
}
