// Package apperr defines the application error taxonomy. Every error surfaced to a
// caller carries a machine-readable kind and a human-readable message; validation
// errors additionally name the offending fields.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	// KindNotFound signals an absent entity.
	KindNotFound Kind = "not_found"
	// KindConflict signals duplicate registration or an already-done transition.
	KindConflict Kind = "conflict"
	// KindValidation signals malformed or out-of-enum input.
	KindValidation Kind = "validation_error"
	// KindUnauthorized signals failed authentication: bad credentials, an
	// inactive account, or a wrong current password.
	KindUnauthorized Kind = "unauthorized"
	// KindInvalidState signals an operation on a record in the wrong state,
	// e.g. closing an already-closed attendance record.
	KindInvalidState Kind = "invalid_state"
	// KindConsistency signals an invariant breach, e.g. a member flagged present
	// with no open attendance record. Logged distinctly from ordinary not-found.
	KindConsistency Kind = "internal_consistency_error"
)

// Error is the application-layer error mapped to an HTTP response at the API boundary.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// NotFound builds a not-found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a validation error with per-field details.
func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// Unauthorized builds an authentication-failure error.
func Unauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// InvalidState builds an invalid-state error.
func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Consistency builds an invariant-breach error.
func Consistency(format string, args ...any) *Error {
	return &Error{Kind: KindConsistency, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is an application error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// HTTPStatus maps an error to the status code the API surface should return.
func HTTPStatus(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusBadRequest
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInvalidState:
		return http.StatusBadRequest
	case KindConsistency:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
