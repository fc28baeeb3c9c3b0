package errors

import (
	"errors"
	"fmt"
)

// Standard error codes shared across packages. Package-specific codes
// (e.g. messaging, coordination) are defined alongside their callers and
// should not collide with these.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeAlreadyExists   = "ALREADY_EXISTS"
	CodeUnavailable     = "UNAVAILABLE"
	CodeInternal        = "INTERNAL"
	CodeCanceled        = "CANCELED"
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
)

// AppError is a structured application error: a stable code a caller can
// switch on, a human-readable message, and an optional wrapped cause.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with the given code, message, and optional cause.
func New(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Wrap attaches a message to err, preserving its code if it is already an
// AppError, otherwise tagging it CodeInternal.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return &AppError{Code: ae.Code, Message: message, Err: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// CodeOf returns the code of err if it is (or wraps) an AppError, otherwise
// CodeInternal.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err is an AppError with the given code.
func Is(err error, code string) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
