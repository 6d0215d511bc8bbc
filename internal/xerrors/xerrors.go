// Package xerrors implements the typed error taxonomy: services
// return a *Error carrying a Kind; route adapters map the Kind to an HTTP
// status and a sanitized body exactly once, at the edge.
package xerrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not_found"
	KindRateLimited         Kind = "rate_limited"
	KindInsufficientCredits Kind = "insufficient_credits"
	KindAPIKeyLimitExceeded Kind = "api_key_limit_exceeded"
	KindValidation          Kind = "validation"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUpstreamError       Kind = "upstream_error"
	KindTimeout             Kind = "timeout"
	KindConflict            Kind = "conflict"
	KindInternal            Kind = "internal"
)

// statusByKind is the single place the Kind → HTTP status mapping lives.
var statusByKind = map[Kind]int{
	KindUnauthorized:        http.StatusUnauthorized,
	KindForbidden:           http.StatusForbidden,
	KindNotFound:            http.StatusNotFound,
	KindRateLimited:         http.StatusTooManyRequests,
	KindInsufficientCredits: http.StatusTooManyRequests,
	KindAPIKeyLimitExceeded: http.StatusTooManyRequests,
	KindValidation:          http.StatusBadRequest,
	KindUpstreamUnavailable: http.StatusServiceUnavailable,
	KindUpstreamError:       http.StatusBadGateway,
	KindTimeout:             http.StatusGatewayTimeout,
	KindConflict:            http.StatusConflict,
	KindInternal:            http.StatusInternalServerError,
}

// retryableByKind records whether the kind is safe for the client to retry.
var retryableByKind = map[Kind]bool{
	KindRateLimited:         true,
	KindUpstreamUnavailable: true,
	KindUpstreamError:       true,
	KindTimeout:             true,
}

// Error is the typed error every service layer in this gateway returns.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int // seconds, only meaningful for KindRateLimited
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) HTTPStatus() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}

	return http.StatusInternalServerError
}

func (e *Error) Retryable() bool { return retryableByKind[e.Kind] }

// New builds a typed Error of the given kind with a client-safe message.
// Callers must never pass user-supplied content (prompts, image bytes) as
// message — see Sanitize.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an internal cause to a typed Error without leaking it to
// the client; only Message crosses the trust boundary.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// As extracts a *Error from err, following the Kind chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}

	return nil, false
}

// KindOf returns the Kind of err, defaulting to KindInternal for
// untyped errors so route adapters always have a status to map.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}

	return KindInternal
}
