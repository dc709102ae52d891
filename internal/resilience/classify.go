package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Outcome classifies the result of a single attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classifier decides whether a failed attempt may be retried.
type Classifier func(err error) Outcome

// DefaultTransientStatusCodes are the HTTP statuses retried when no set is configured.
var DefaultTransientStatusCodes = []int{
	http.StatusRequestTimeout,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// statusCoder is implemented by upstream errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// transient is implemented by upstream errors that know their own retryability
// independent of an HTTP status (e.g. an open circuit).
type transient interface {
	Transient() bool
}

// StatusClassifier returns a Classifier that retries transport errors, attempt-level
// timeouts and HTTP statuses in transientCodes. Everything else is fatal.
// A nil transientCodes uses DefaultTransientStatusCodes; an empty non-nil set retries no
// HTTP status at all.
func StatusClassifier(transientCodes []int) Classifier {
	if transientCodes == nil {
		transientCodes = DefaultTransientStatusCodes
	}
	set := make(map[int]struct{}, len(transientCodes))
	for _, c := range transientCodes {
		set[c] = struct{}{}
	}
	return func(err error) Outcome {
		if err == nil {
			return OutcomeSuccess
		}
		var sc statusCoder
		if errors.As(err, &sc) && sc.StatusCode() > 0 {
			if _, ok := set[sc.StatusCode()]; ok {
				return OutcomeRetryable
			}
			return OutcomeFatal
		}
		var tr transient
		if errors.As(err, &tr) {
			if tr.Transient() {
				return OutcomeRetryable
			}
			return OutcomeFatal
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return OutcomeRetryable
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return OutcomeRetryable
		}
		return OutcomeFatal
	}
}
