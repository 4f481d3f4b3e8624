// Package dErrors provides structured domain errors with stable codes.
//
// Services return *Error values so transports can translate failures into
// wire responses without string matching. Wrap preserves the cause chain for
// errors.Is/errors.As while the code carries the classification.
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Codes are stable API: transports map them
// to status codes and clients branch on them.
type Code string

const (
	// CodeBadRequest marks a structurally broken request (unparseable body,
	// missing required envelope fields).
	CodeBadRequest Code = "bad_request"

	// CodeInvalidInput marks a field that failed domain parsing at a trust
	// boundary (malformed ID, unknown enum value).
	CodeInvalidInput Code = "invalid_input"

	// CodeValidation marks a well-formed request whose content violates
	// business rules. Permanent: retrying the identical request cannot succeed.
	CodeValidation Code = "validation_error"

	// CodeUnauthorized marks missing or unverifiable credentials.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden marks authenticated callers lacking permission.
	CodeForbidden Code = "forbidden"

	// CodeNotFound marks a lookup that matched nothing.
	CodeNotFound Code = "not_found"

	// CodeConflict marks a write that lost to an existing record
	// (duplicate serial, concurrent create).
	CodeConflict Code = "conflict"

	// CodeRateLimited marks a caller rejected for attempting too often.
	// Retryable after backing off.
	CodeRateLimited Code = "rate_limited"

	// CodeInvariantViolation marks an internal consistency failure. These
	// indicate bugs, not bad input.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeTimeout marks an operation cancelled by deadline or context.
	CodeTimeout Code = "timeout"

	// CodeUnavailable marks a transient dependency failure. Retryable.
	CodeUnavailable Code = "unavailable"

	// CodeInternal marks an unexpected failure. Details are logged
	// server-side and never surfaced to clients.
	CodeInternal Code = "internal_error"
)

// Error is a domain error with a stable code and human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates an underlying error with a domain code and message.
// The cause remains reachable via errors.Is/errors.As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// HasCode reports whether err or any error in its chain carries the code.
func HasCode(err error, code Code) bool {
	var dErr *Error
	for ; err != nil; err = errors.Unwrap(err) {
		if errors.As(err, &dErr) && dErr.Code == code {
			return true
		}
	}
	return false
}

// Is is an alias for HasCode, reading naturally at call sites:
// dErrors.Is(err, dErrors.CodeNotFound).
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// GetCode returns the outermost domain code in err's chain, or CodeInternal
// when err carries no domain error.
func GetCode(err error) Code {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return CodeInternal
}
