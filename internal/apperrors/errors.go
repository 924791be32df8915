package apperrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping.
type Code string

const (
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeConflict     Code = "CONFLICT"
	ErrCodeForbidden    Code = "FORBIDDEN"
	ErrCodeStaleState   Code = "STALE_STATE"
	ErrCodeInternal     Code = "INTERNAL"
)

// Business reasons carried alongside a Code.
const (
	ReasonAlreadyApproved      = "ALREADY_APPROVED"
	ReasonAlreadyRejected      = "ALREADY_REJECTED"
	ReasonCannotRejectApproved = "CANNOT_REJECT_APPROVED"
	ReasonInvalidTransition    = "INVALID_STATUS_TRANSITION"
	ReasonNotPending           = "NOT_PENDING_APPROVAL"
	ReasonAlreadySubmitted     = "ALREADY_SUBMITTED"
	ReasonPermissionDenied     = "PERMISSION_DENIED"
	ReasonLevelMismatch        = "LEVEL_MISMATCH"
	ReasonReasonRequired       = "REASON_REQUIRED"
	ReasonValidationFailed     = "VALIDATION_FAILED"
	ReasonConcurrentUpdate     = "CONCURRENT_UPDATE"
)

// Error is the application error type surfaced to callers.
type Error struct {
	Code    Code
	Reason  string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// InvalidInput reports a bad request field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Field: field, Message: message}
}

// Conflict reports an illegal state transition.
func Conflict(reason, message string) *Error {
	return &Error{Code: ErrCodeConflict, Reason: reason, Message: message}
}

// Forbidden reports a missing capability.
func Forbidden(reason, message string) *Error {
	return &Error{Code: ErrCodeForbidden, Reason: reason, Message: message}
}

// Stale reports a lost optimistic-concurrency race.
func Stale(resource, id string) *Error {
	return &Error{
		Code:    ErrCodeStaleState,
		Reason:  ReasonConcurrentUpdate,
		Message: fmt.Sprintf("%s %s was modified concurrently", resource, id),
	}
}

// WithReason sets the business reason and returns the same error.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// CodeOf returns the code of err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// ReasonOf returns the business reason of err, if any.
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
