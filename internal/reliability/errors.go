// Package reliability wraps outbound provider calls with timeouts,
// retry-with-backoff, and per-provider circuit breakers.
package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors surfaced by the reliability layer.
var (
	// ErrCircuitOpen is returned without attempting the call when the
	// provider's circuit breaker is open. Callers may retry after the
	// reset timeout elapses.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTimeout is returned when a call exceeds its configured timeout.
	ErrTimeout = errors.New("provider call timed out")

	// ErrQuotaExceeded is returned for rate-limit and billing failures.
	// Not retried automatically; callers should back off.
	ErrQuotaExceeded = errors.New("provider quota exceeded")
)

// Class categorizes a provider failure for retry decisions.
type Class int

const (
	// ClassPermanent errors must not be retried (4xx other than 429,
	// malformed requests, auth failures).
	ClassPermanent Class = iota

	// ClassTemporary errors are retried automatically (5xx, network
	// errors, timeouts).
	ClassTemporary

	// ClassQuota errors signal rate limiting or billing problems.
	// Not retried here; surfaced so callers can apply their own backoff.
	ClassQuota
)

// String returns the class name for logging and metrics labels.
func (c Class) String() string {
	switch c {
	case ClassTemporary:
		return "temporary"
	case ClassQuota:
		return "quota"
	default:
		return "permanent"
	}
}

// classifiedError tags an error with an explicit failure class.
type classifiedError struct {
	class Class
	err   error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Temporary wraps err as a retryable temporary failure.
func Temporary(err error) error {
	return &classifiedError{class: ClassTemporary, err: err}
}

// Quota wraps err as a quota/rate-limit failure.
func Quota(err error) error {
	return &classifiedError{class: ClassQuota, err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) error {
	return &classifiedError{class: ClassPermanent, err: err}
}

// Classify determines the failure class of an error.
//
// Explicit tags (from Temporary/Quota/Permanent) win. Otherwise context
// deadline and network errors classify as temporary, quota sentinels as
// quota, and everything else as permanent.
func Classify(err error) Class {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return ClassQuota
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTemporary
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTemporary
	}
	return ClassPermanent
}

// attemptError wraps the final error of an exhausted retry loop with
// the attempt count.
func attemptError(attempts int, err error) error {
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
