package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures from external collaborators
type ErrorKind string

const (
	KindRateLimited     ErrorKind = "rate-limited"
	KindTransient       ErrorKind = "transient"
	KindNotFound        ErrorKind = "not-found"
	KindMalformed       ErrorKind = "malformed"
	KindDataQuality     ErrorKind = "data-quality"
	KindCheckpointWrite ErrorKind = "checkpoint-write"
)

// CallError is a classified failure from the gateway or the generator
type CallError struct {
	Kind   ErrorKind
	Op     string // "fetch" or "generate"
	Ticker string
	Err    error

	// RetryAfter is the upstream's suggested wait, zero when none was given
	RetryAfter time.Duration
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Ticker, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Ticker, e.Kind)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed
func (e *CallError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// NewCallError builds a CallError
func NewCallError(kind ErrorKind, op, ticker string, err error) *CallError {
	return &CallError{Kind: kind, Op: op, Ticker: ticker, Err: err}
}

// WithRetryAfter records the upstream's suggested wait
func (e *CallError) WithRetryAfter(d time.Duration) *CallError {
	e.RetryAfter = d
	return e
}

// RetryAfterOf returns the suggested wait carried by err, if any
func RetryAfterOf(err error) time.Duration {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.RetryAfter
	}
	return 0
}

// KindOf returns the kind of a classified error, or KindTransient for anything
// unclassified so unknown failures get the bounded retry rather than none.
func KindOf(err error) ErrorKind {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	var dqErr *DataQualityError
	if errors.As(err, &dqErr) {
		return KindDataQuality
	}
	var cpErr *CheckpointWriteError
	if errors.As(err, &cpErr) {
		return KindCheckpointWrite
	}
	return KindTransient
}

// IsRetryable reports whether err belongs to a retryable class
func IsRetryable(err error) bool {
	kind := KindOf(err)
	return kind == KindRateLimited || kind == KindTransient
}

// DataQualityError marks a metric as undefined for the supplied inputs
type DataQualityError struct {
	Metric Metric
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("%s unavailable: %s", e.Metric, e.Reason)
}

// CheckpointWriteError is fatal: progress can no longer be made durable
type CheckpointWriteError struct {
	Ticker string
	Err    error
}

func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("checkpoint write failed for %s: %v", e.Ticker, e.Err)
}

func (e *CheckpointWriteError) Unwrap() error {
	return e.Err
}
