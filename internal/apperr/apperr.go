// Package apperr defines the error taxonomy surfaced to API callers.
//
// Every error that crosses the service boundary is either an *Error or is
// treated as Internal. Handlers use StatusCode and Code to build responses and
// never inspect error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of a failure.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindExpired       Kind = "expired"
	KindConfiguration Kind = "configuration"
	KindUpstream      Kind = "upstream"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Machine-readable codes returned in the JSON error envelope.
const (
	CodeValidation         = "validation_error"
	CodeAlreadyRegistered  = "already_registered"
	CodeSoldOut            = "sold_out"
	CodePriceTierChanged   = "price_tier_changed"
	CodeExpired            = "registration_expired"
	CodePaymentUnavailable = "payment_system_unavailable"
	CodeUpstreamPayment    = "upstream_payment_error"
	CodeNotFound           = "not_found"
	CodeInternal           = "internal_error"
)

// Error is a categorised failure with a caller-safe message.
type Error struct {
	Kind    Kind
	Code    string
	Message string // safe to show to the client
	Op      string // operation that failed, e.g. "submit_registration"
	Err     error  // underlying cause, never shown to the client
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind and code, so callers can write
// errors.Is(err, apperr.ErrExpired).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation        = &Error{Kind: KindValidation, Code: CodeValidation}
	ErrAlreadyRegistered = &Error{Kind: KindConflict, Code: CodeAlreadyRegistered}
	ErrSoldOut           = &Error{Kind: KindConflict, Code: CodeSoldOut}
	ErrExpired           = &Error{Kind: KindExpired, Code: CodeExpired}
	ErrConfiguration     = &Error{Kind: KindConfiguration, Code: CodePaymentUnavailable}
	ErrUpstream          = &Error{Kind: KindUpstream, Code: CodeUpstreamPayment}
	ErrNotFound          = &Error{Kind: KindNotFound, Code: CodeNotFound}
)

// Validation builds a 400 error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// AlreadyRegistered builds the 409 returned when a member already holds a
// complete registration for the pass type.
func AlreadyRegistered(fullName, passType string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    CodeAlreadyRegistered,
		Message: fmt.Sprintf("%s is already registered for the %s pass", fullName, passType),
	}
}

// Conflict builds a 409 with a specific code.
func Conflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Expired builds the 410 returned when payment arrives after the window closed.
func Expired(orderID string) *Error {
	return &Error{
		Kind:    KindExpired,
		Code:    CodeExpired,
		Message: fmt.Sprintf("registration %s expired before payment completed, please start over", orderID),
	}
}

// NotFound builds a 404.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Configuration builds the 500 returned when required credentials are absent.
func Configuration(op string, err error) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Code:    CodePaymentUnavailable,
		Message: "payment system is not available",
		Op:      op,
		Err:     err,
	}
}

// Upstream builds the 500 returned when the checkout provider rejects a request.
func Upstream(op string, err error) *Error {
	return &Error{
		Kind:    KindUpstream,
		Code:    CodeUpstreamPayment,
		Message: "payment provider rejected the checkout request",
		Op:      op,
		Err:     err,
	}
}

// Internal wraps an unexpected failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Op: op, Err: err}
}

// As extracts the *Error from err, wrapping unknown errors as Internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("", err)
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	e := As(err)
	if e == nil {
		return http.StatusOK
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
