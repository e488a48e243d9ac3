package keypool

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the pool.
var (
	ErrKeyNotFound    = errors.New("keypool: key not found")
	ErrNoEligibleKeys = errors.New("keypool: no eligible keys")
	ErrRefreshLocked  = errors.New("keypool: credits refresh locked elsewhere")
)

// PreflightError reports why a preflight credit check failed, carrying the
// HTTP status and retry hint the MCP handler surfaces to the client.
type PreflightError struct {
	Message    string
	Status     int
	RetryAfter time.Duration // zero = no hint
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("keypool: preflight %d: %s", e.Status, e.Message)
}
