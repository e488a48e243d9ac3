// Package search defines the cross-provider search surface: the result
// shape, the upstream error taxonomy, the response normalizer, and the
// routing-mode resolver that picks which provider serves a tool call.
package search

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors classifying upstream failures. Callers dispatch on these
// with errors.Is; raw provider messages are wrapped, never matched on.
var (
	// ErrInvalidKey means the upstream rejected the API key (401/403).
	ErrInvalidKey = errors.New("search: upstream rejected key")

	// ErrQuotaExceeded means the upstream reported the key is out of credits.
	ErrQuotaExceeded = errors.New("search: upstream quota exhausted")

	// ErrTransient covers network failures and 5xx responses, retryable
	// with the same key.
	ErrTransient = errors.New("search: transient upstream failure")

	// ErrUpstreamUnavailable means every key and provider option was
	// exhausted for this request.
	ErrUpstreamUnavailable = errors.New("search: no upstream available")

	// ErrNotConfigured means the provider has no keys configured.
	ErrNotConfigured = errors.New("search: provider not configured")
)

// RateLimitedError is an upstream 429 with an optional retry-after hint.
type RateLimitedError struct {
	RetryAfter time.Duration // zero when the provider gave no hint
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("search: upstream rate limited, retry after %s", e.RetryAfter)
	}
	return "search: upstream rate limited"
}

// UpstreamError is a non-2xx response outside the classified categories.
type UpstreamError struct {
	Message string
	Status  int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("search: upstream status %d: %s", e.Status, e.Message)
}

// IsRateLimited reports whether err is an upstream 429 and returns the
// retry-after hint when present.
func IsRateLimited(err error) (time.Duration, bool) {
	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return rle.RetryAfter, true
	}
	return 0, false
}
