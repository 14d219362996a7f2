package fal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Error classes. Every error returned by Client wraps exactly one of these
// (or a context error), so callers can branch with errors.Is.
var (
	ErrRateLimited  = errors.New("fal: rate limited")
	ErrTransient    = errors.New("fal: transient failure")
	ErrUnauthorized = errors.New("fal: unauthorized")
	ErrBadRequest   = errors.New("fal: bad request")
	ErrJobFailed    = errors.New("fal: job failed")
	ErrNoImages     = errors.New("fal: response contained no images")
)

// APIError is an HTTP-level failure from the queue API.
type APIError struct {
	StatusCode int
	Message    string
	Retryable  bool
	class      error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("fal: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("fal: HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap exposes the error class (ErrRateLimited, ErrTransient, ...).
func (e *APIError) Unwrap() error {
	return e.class
}

// RetryError is returned when every attempt failed with a retryable error.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("fal: giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// newAPIError classifies an HTTP status and response body.
// 429 or a body mentioning "rate limit" is rate limiting; 408 and 5xx are
// transient; 401/403 are credential problems; other 4xx are bad requests.
func newAPIError(status int, body string) *APIError {
	msg := strings.TrimSpace(body)
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	e := &APIError{StatusCode: status, Message: msg}

	switch {
	case status == http.StatusTooManyRequests || mentionsRateLimit(msg):
		e.class, e.Retryable = ErrRateLimited, true
	case status == http.StatusRequestTimeout || status >= 500:
		e.class, e.Retryable = ErrTransient, true
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.class = ErrUnauthorized
	default:
		e.class = ErrBadRequest
	}
	return e
}

func mentionsRateLimit(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate-limit") ||
		strings.Contains(lower, "too many requests")
}

// IsRetryable reports whether err should consume another attempt.
// Network errors and per-attempt timeouts are transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// retryReason labels a retryable error for logs and metrics.
func retryReason(err error) string {
	if errors.Is(err, ErrRateLimited) {
		return "rate_limited"
	}
	return "transient"
}

// outcomeLabel labels any attempt result for metrics.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case IsRetryable(err):
		return "transient"
	default:
		return "permanent"
	}
}
