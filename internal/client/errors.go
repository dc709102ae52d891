package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrMalformedPayload = errors.New("malformed upstream payload")
)

// ErrorKind distinguishes how a single upstream call failed.
type ErrorKind string

const (
	KindTransport   ErrorKind = "transport"
	KindTimeout     ErrorKind = "timeout"
	KindStatus      ErrorKind = "status"
	KindDecode      ErrorKind = "decode"
	KindCircuitOpen ErrorKind = "circuit_open"
)

// FetchError is returned by GetCurrent for every failed call. Status is set for KindStatus.
type FetchError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("upstream %s: HTTP %d: %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for KindStatus errors and 0 otherwise.
func (e *FetchError) StatusCode() int {
	if e.Kind != KindStatus {
		return 0
	}
	return e.Status
}

// Transient reports whether a non-status failure may clear up on retry.
// Status failures are classified by code against the configured transient set.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case KindTransport, KindTimeout, KindCircuitOpen:
		return true
	default:
		return false
	}
}

func statusError(code int) *FetchError {
	var cause error
	switch code {
	case http.StatusUnauthorized:
		cause = ErrInvalidAPIKey
	case http.StatusNotFound:
		cause = ErrLocationNotFound
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	default:
		cause = ErrUpstreamFailure
	}
	return &FetchError{Kind: KindStatus, Status: code, Err: cause}
}
