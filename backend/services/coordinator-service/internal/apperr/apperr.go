// Package apperr holds the error taxonomy surfaced by the coordination services.
// Every failure carries a Kind for coarse handling and a stable Code for clients.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

// Kinds.
const (
	KindValidation   Kind = "validation_error"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInvalidState Kind = "invalid_state"
	KindInternal     Kind = "internal_error"
)

// Stable codes.
const (
	CodeInvalidInput        = "invalid_input"
	CodeInvalidInterval     = "invalid_interval"
	CodeUserNotFound        = "user_not_found"
	CodeStationNotFound     = "station_not_found"
	CodePointNotFound       = "point_not_found"
	CodeReservationNotFound = "reservation_not_found"
	CodeSessionNotFound     = "session_not_found"
	CodeWaitlistNotFound    = "waitlist_entry_not_found"
	CodeSlotUnavailable     = "slot_unavailable"
	CodeAlreadyWaitlisted   = "already_waitlisted"
	CodeInvalidTransition   = "invalid_transition"
	CodeReservationExpired  = "reservation_expired"
	CodeSessionFinished     = "session_finished"
	CodeInternal            = "internal_error"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a caller-input failure.
func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a missing-entity failure.
func NotFound(code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds an overlap or concurrent-state failure.
func Conflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidState builds a failure for an operation not valid in the current status.
func InvalidState(code, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a persistence or transport failure.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of err.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err is classified with kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
