package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind is the shared error taxonomy all adapters normalize into.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimit   ErrorKind = "rate_limit"
	KindUnavailable ErrorKind = "unavailable"
	KindMalformed   ErrorKind = "malformed"
	KindAuth        ErrorKind = "auth"
)

// Error wraps a provider failure with its normalized kind. Transient kinds
// are retryable by moving to the next provider; fatal kinds mean the provider
// is skipped for the remainder of the run.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying on another provider
// within the same run.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimit, KindUnavailable:
		return true
	}
	return false
}

// Classify extracts the normalized kind from any error, defaulting to
// unavailable for errors no adapter produced.
func Classify(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnavailable
}

func newError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// classifyTransport maps transport-level failures.
func classifyTransport(provider string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(provider, KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(provider, KindTimeout, err)
	}
	return newError(provider, KindUnavailable, err)
}

// classifyStatus maps HTTP status codes outside 2xx.
func classifyStatus(provider string, status int, body string) *Error {
	err := fmt.Errorf("status %d: %s", status, body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newError(provider, KindAuth, err)
	case status == http.StatusTooManyRequests:
		return newError(provider, KindRateLimit, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return newError(provider, KindTimeout, err)
	case status >= 500:
		return newError(provider, KindUnavailable, err)
	default:
		return newError(provider, KindMalformed, err)
	}
}
