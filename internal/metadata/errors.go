package metadata

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes metadata errors.
type ErrorCode string

const (
	// ErrCodeConfigurationUnavailable indicates no usable configuration
	// snapshot could be obtained.
	ErrCodeConfigurationUnavailable ErrorCode = "CONFIGURATION_UNAVAILABLE"

	// ErrCodeInvalidRule indicates a malformed dependency rule table.
	ErrCodeInvalidRule ErrorCode = "INVALID_RULE"
)

// Error reports a metadata failure.
type Error struct {
	Code       ErrorCode
	Repository string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Repository != "" {
		msg += fmt.Sprintf(" (repository=%s)", e.Repository)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsConfigurationUnavailable reports whether err means configuration could
// not be obtained. Uses errors.As to handle wrapped errors.
func IsConfigurationUnavailable(err error) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == ErrCodeConfigurationUnavailable
	}
	return false
}

// Unavailable creates a ConfigurationUnavailable error.
func Unavailable(repository, message string, cause error) *Error {
	return &Error{
		Code:       ErrCodeConfigurationUnavailable,
		Repository: repository,
		Message:    message,
		Err:        cause,
	}
}

func invalidRule(format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidRule, Message: fmt.Sprintf(format, args...)}
}
