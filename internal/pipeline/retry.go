package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/models"
)

// ErrAbandoned is returned when the run was cancelled before a retryable
// call could be attempted again. The ticker stays pending for the next run.
var ErrAbandoned = errors.New("retry abandoned: run cancelled")

// RetryPolicy is bounded exponential backoff for external calls
type RetryPolicy struct {
	MaxAttempts int           // Attempts including the first
	BaseDelay   time.Duration // Backoff before the second attempt, doubled each time
	MaxDelay    time.Duration // Upper bound on a single backoff
	CallTimeout time.Duration // Deadline for each attempt
}

// Backoff returns the wait before attempt n+1 (n counts from 1). An upstream
// hint wins when it is longer; the result never exceeds MaxDelay. A zero
// MaxDelay means no cap.
func (p RetryPolicy) Backoff(n int, hint time.Duration) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		if delay <= 0 || delay > math.MaxInt64/2 || (p.MaxDelay > 0 && delay >= p.MaxDelay) {
			break
		}
		delay *= 2
	}
	if hint > delay {
		delay = hint
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds, fails with a non-retryable error or runs
// out of attempts. Each attempt gets its own deadline on a context detached
// from runCtx, so cancelling the run lets an in-flight call finish; it only
// prevents further attempts. Returns the number of retries made.
func (p RetryPolicy) Do(runCtx context.Context, logger arbor.ILogger, ticker, op string, fn func(ctx context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for n := 1; n <= attempts; n++ {
		err = p.attempt(runCtx, ticker, op, fn)
		if err == nil {
			return n - 1, nil
		}
		if !models.IsRetryable(err) || n == attempts {
			return n - 1, err
		}

		delay := p.Backoff(n, models.RetryAfterOf(err))
		logger.Warn().
			Str("ticker", ticker).
			Str("op", op).
			Int("attempt", n).
			Str("kind", string(models.KindOf(err))).
			Dur("backoff", delay).
			Err(err).
			Msg("Retrying external call")

		if runCtx.Err() != nil {
			return n - 1, fmt.Errorf("%w: %v", ErrAbandoned, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-runCtx.Done():
			timer.Stop()
			return n - 1, fmt.Errorf("%w: %v", ErrAbandoned, err)
		case <-timer.C:
		}
	}
	return attempts - 1, err
}

func (p RetryPolicy) attempt(runCtx context.Context, ticker, op string, fn func(ctx context.Context) error) error {
	ctx := context.WithoutCancel(runCtx)
	if p.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.CallTimeout)
		defer cancel()
	}

	err := fn(ctx)
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	// A deadline is always worth another attempt. Callers that already
	// classified the error keep their kind.
	var callErr *models.CallError
	if errors.As(err, &callErr) {
		return err
	}
	return models.NewCallError(models.KindTransient, op, ticker, err)
}
