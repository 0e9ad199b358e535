package domain

import "errors"

// Kind classifies a domain failure so transports can map it without string matching.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindOutOfRange      Kind = "out_of_range"
	KindAlreadyActive   Kind = "already_active"
	KindNoActiveSession Kind = "no_active_session"
	KindConflict        Kind = "conflict"
)

// Error is a domain failure with a machine-readable kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works for every
// not-found failure regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError builds an Error of the given kind around cause.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

var (
	// ErrInvalidInput reports a malformed request detected before any state is touched.
	ErrInvalidInput = NewError(KindInvalidInput, "invalid input")
	// ErrNotFound is returned when a referenced checkpoint does not exist.
	ErrNotFound = NewError(KindNotFound, "not found")
	// ErrOutOfRange is returned when the location is outside the checkpoint or the checkpoint is inactive.
	ErrOutOfRange = NewError(KindOutOfRange, "location outside checkpoint")
	// ErrAlreadyActive is returned when clocking in with an open session.
	ErrAlreadyActive = NewError(KindAlreadyActive, "already clocked in")
	// ErrNoActiveSession is returned when clocking out without an open session.
	ErrNoActiveSession = NewError(KindNoActiveSession, "no active clock-in found")
	// ErrConflict reports a concurrent transition detected by the store or lock.
	ErrConflict = NewError(KindConflict, "concurrent attendance update")
)

// KindOf returns the kind of the first domain error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
