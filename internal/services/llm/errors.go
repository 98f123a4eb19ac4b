package llm

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ternarybob/valuescreen/internal/models"
	"google.golang.org/genai"
)

var (
	// ErrMissingAPIKey is returned when the selected provider has no key configured
	ErrMissingAPIKey = errors.New("llm: API key not configured")

	// ErrEmptyResponse is returned when the provider answered without text
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrInvalidRequest wraps request-shape problems caught before the call
	ErrInvalidRequest = errors.New("llm: invalid request")
)

// IsRateLimitError checks if an error is a provider rate limit error.
// Matches 429 status codes and RESOURCE_EXHAUSTED errors.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if status, ok := statusCode(err); ok {
		return status == http.StatusTooManyRequests || status == 529
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s"]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested retry delay from a provider error.
// Returns 0 if no delay is found in the error message.
//
// Example error message:
// "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) && claudeErr.Response != nil {
		if secs, convErr := strconv.Atoi(claudeErr.Response.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// statusCode extracts the HTTP status from Gemini and Claude SDK errors
func statusCode(err error) (int, bool) {
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code, true
	}
	var geminiPtrErr *genai.APIError
	if errors.As(err, &geminiPtrErr) {
		return geminiPtrErr.Code, true
	}
	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) {
		return claudeErr.StatusCode, true
	}
	return 0, false
}

// classifyProviderError maps SDK errors onto the pipeline's error kinds.
// The ticker is filled in by the caller.
func classifyProviderError(err error) *models.CallError {
	var callErr *models.CallError
	if errors.As(err, &callErr) {
		return callErr
	}

	switch {
	case IsRateLimitError(err):
		return models.NewCallError(models.KindRateLimited, "generate", "", err).WithRetryAfter(ExtractRetryDelay(err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.NewCallError(models.KindTransient, "generate", "", err)
	case errors.Is(err, ErrMissingAPIKey), errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrEmptyResponse):
		return models.NewCallError(models.KindMalformed, "generate", "", err)
	}

	if status, ok := statusCode(err); ok {
		switch {
		case status == http.StatusRequestTimeout || status >= 500:
			return models.NewCallError(models.KindTransient, "generate", "", err)
		case status >= 400:
			// Bad request, auth and permission failures will not improve on retry
			return models.NewCallError(models.KindMalformed, "generate", "", err)
		}
	}

	// Connection resets and anything unrecognised
	return models.NewCallError(models.KindTransient, "generate", "", err)
}
