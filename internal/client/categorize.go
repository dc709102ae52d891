package client

import (
	"context"
	"errors"
	"net"
)

// ErrorCategory is a stable label for error classification in metrics and logs.
type ErrorCategory string

const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryUpstreamOther    ErrorCategory = "upstream_other"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory. It looks through wrapping,
// so pipeline errors categorize by their last attempt's cause.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case KindTimeout:
			return ErrorCategoryTimeout
		case KindTransport:
			return ErrorCategoryNetwork
		case KindDecode:
			return ErrorCategoryParsing
		case KindCircuitOpen:
			return ErrorCategoryCircuitOpen
		case KindStatus:
			return statusCategory(fe)
		}
	}

	switch {
	case errors.Is(err, ErrMalformedPayload):
		return ErrorCategoryParsing
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}
	return ErrorCategoryUnknown
}

func statusCategory(fe *FetchError) ErrorCategory {
	switch {
	case errors.Is(fe, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(fe, ErrLocationNotFound):
		return ErrorCategoryLocationNotFound
	case errors.Is(fe, ErrRateLimited):
		return ErrorCategoryRateLimited
	case fe.Status >= 500:
		return ErrorCategoryUpstream5xx
	default:
		return ErrorCategoryUpstreamOther
	}
}
