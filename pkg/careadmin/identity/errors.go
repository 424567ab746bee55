package identity

import (
	"errors"
	"fmt"
)

// ErrorCode classifies provider failures. Callers branch on codes, never on messages.
type ErrorCode string

const (
	CodeInvalidCredentials  ErrorCode = "invalid_credentials"
	CodeUserAlreadyExists   ErrorCode = "user_already_exists"
	CodeEmailNotConfirmed   ErrorCode = "email_not_confirmed"
	CodeInvalidEmail        ErrorCode = "invalid_email"
	CodeWeakPassword        ErrorCode = "weak_password"
	CodeInvalidToken        ErrorCode = "invalid_token"
	CodeInvalidRefreshToken ErrorCode = "invalid_refresh_token"
	CodeSessionNotFound     ErrorCode = "session_not_found"
	CodeUserNotFound        ErrorCode = "user_not_found"
)

// Error is returned by every provider operation that fails for a known reason.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity: %s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// CodeOf returns the code of err if it wraps an *Error, or "" otherwise.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err wraps an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
