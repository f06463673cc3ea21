package apperrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL_ERROR"
)

// Error is the application error carried between service, repo and handlers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewInvalidInput(message string) *Error {
	return &Error{Code: CodeInvalidInput, Message: message}
}

func NewUnauthenticated(message string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: message}
}

func NewForbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

func NewNotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

func NewInternal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: cause}
}

func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

func IsForbidden(err error) bool {
	return hasCode(err, CodeForbidden)
}

func IsInvalidInput(err error) bool {
	return hasCode(err, CodeInvalidInput)
}

func IsUnauthenticated(err error) bool {
	return hasCode(err, CodeUnauthenticated)
}

func hasCode(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
