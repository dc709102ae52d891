package resilience

import "errors"

// Terminal pipeline failures. Returned errors wrap one of these together with the
// last underlying cause, so callers can use errors.Is for both.
var (
	// ErrRetryExhausted is returned when every scheduled retry ended in a retryable failure.
	ErrRetryExhausted = errors.New("resilience: retries exhausted")

	// ErrTimedOut is returned when the overall deadline elapsed before a terminal outcome.
	ErrTimedOut = errors.New("resilience: overall timeout elapsed")

	// ErrFatal is returned when an attempt failed in a way retrying cannot fix.
	ErrFatal = errors.New("resilience: fatal upstream failure")
)
