package gateway

import (
	"errors"
	"fmt"

	"github.com/roach88/notesync/internal/model"
)

// ErrorCode categorizes gateway failures.
type ErrorCode string

const (
	// ErrCodeTransport indicates the remote could not be reached or failed.
	ErrCodeTransport ErrorCode = "TRANSPORT"

	// ErrCodeNotFound indicates the addressed row does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalid indicates the request was rejected as malformed.
	ErrCodeInvalid ErrorCode = "INVALID"
)

// Error is the error type returned by every Gateway method.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the gateway operation, e.g. "update note".
	Op string

	// ID is the addressed row, when there is one.
	ID string

	// Message is a human-readable description when Err is nil.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.ID != "" {
		return fmt.Sprintf("%s: %s (%s): %s", e.Code, e.Op, e.ID, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a missing row.
func NotFound(op string, table model.Table, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Op:      op,
		ID:      id,
		Message: fmt.Sprintf("no %s row with id %q", table, id),
	}
}

// Transport wraps a failure to reach or use the remote.
func Transport(op string, err error) *Error {
	return &Error{Code: ErrCodeTransport, Op: op, Err: err}
}

// Invalid reports a rejected request.
func Invalid(op, message string) *Error {
	return &Error{Code: ErrCodeInvalid, Op: op, Message: message}
}

// CodeOf returns the code of a gateway error, or "" for other errors.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// IsNotFound returns true if err reports a missing row.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsTransport returns true if err reports a transport failure.
func IsTransport(err error) bool {
	return CodeOf(err) == ErrCodeTransport
}

// IsInvalid returns true if err reports a rejected request.
func IsInvalid(err error) bool {
	return CodeOf(err) == ErrCodeInvalid
}
