package api

import (
	"errors"
	"fmt"
)

// Kind classifies API call failures. RateLimited and Timeout are retried by
// the client and only surface as their Exhausted variants.
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindRateLimited        Kind = "RateLimited"
	KindRateLimitExhausted Kind = "RateLimitExhausted"
	KindTimeout            Kind = "Timeout"
	KindTimeoutExhausted   Kind = "TimeoutExhausted"
	KindBadRequest         Kind = "BadRequest"
	KindInvalidResponse    Kind = "InvalidResponseShape"
	KindNetwork            Kind = "NetworkError"
	KindHTTPStatus         Kind = "HTTPStatus"
)

// Error is a tagged API call failure
type Error struct {
	Kind    Kind
	URL     string
	Status  int
	Message string
}

func (e *Error) Error() string {
	s := fmt.Sprintf("api: %s", e.Kind)
	if e.Status != 0 {
		s += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.URL != "" {
		s += " [" + e.URL + "]"
	}
	return s
}

// KindOf returns the failure kind of err, or "" for non-API errors
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsNotFound reports whether err is an expected 404
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
