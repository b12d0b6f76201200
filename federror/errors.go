// Package federror defines the error taxonomy used across the federation
// core: a small set of kinds, each with a fixed HTTP status, wrapping the
// underlying cause the way the rest of this codebase already wraps errors
// with fmt.Errorf("...: %w", err).
package federror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a federation error for status-code mapping and callers
// that want to branch on failure category (e.g. the delivery worker
// deciding whether to retry).
type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindUnauthorized          Kind = "unauthorized"
	KindBadRequest            Kind = "bad_request"
	KindSignatureVerification Kind = "signature_verification"
	KindDelivery              Kind = "delivery"
	KindFederation            Kind = "federation"
)

var statusByKind = map[Kind]int{
	KindNotFound:              http.StatusNotFound,
	KindUnauthorized:          http.StatusUnauthorized,
	KindBadRequest:            http.StatusBadRequest,
	KindSignatureVerification: http.StatusUnauthorized,
	KindDelivery:              http.StatusBadGateway,
	KindFederation:            http.StatusInternalServerError,
}

// Error is a federation-domain error carrying a Kind and wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status a route handler should respond with.
func (e *Error) StatusCode() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func NotFound(msg string, err error) *Error     { return &Error{Kind: KindNotFound, Msg: msg, Err: err} }
func Unauthorized(msg string, err error) *Error { return &Error{Kind: KindUnauthorized, Msg: msg, Err: err} }
func BadRequest(msg string, err error) *Error   { return &Error{Kind: KindBadRequest, Msg: msg, Err: err} }
func SignatureVerification(msg string, err error) *Error {
	return &Error{Kind: KindSignatureVerification, Msg: msg, Err: err}
}
func Delivery(msg string, err error) *Error   { return &Error{Kind: KindDelivery, Msg: msg, Err: err} }
func Federation(msg string, err error) *Error { return &Error{Kind: KindFederation, Msg: msg, Err: err} }

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// StatusCode extracts the HTTP status for any error, defaulting to 500
// when err is not a *Error.
func StatusCode(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.StatusCode()
	}
	return http.StatusInternalServerError
}
