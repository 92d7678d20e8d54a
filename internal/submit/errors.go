package submit

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes pipeline errors.
type ErrorCode string

// ErrCodeLocalValidation indicates a required-field check failed before
// anything was sent.
const ErrCodeLocalValidation ErrorCode = "LOCAL_VALIDATION"

// LocalValidationError names the first field that failed the pre-submit
// checks.
type LocalValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *LocalValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrCodeLocalValidation, e.Field, e.Reason)
}

// IsLocalValidation reports whether err is a LocalValidationError.
func IsLocalValidation(err error) bool {
	var le *LocalValidationError
	return errors.As(err, &le)
}

var (
	// ErrSubmissionInProgress is returned when Submit is called while
	// another submission of the same task is in flight.
	ErrSubmissionInProgress = errors.New("submission already in progress")

	// ErrCanceled is returned when the caller cancels a submission while
	// it is waiting for the connector.
	ErrCanceled = errors.New("submission canceled")
)
