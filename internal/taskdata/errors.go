package taskdata

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes attribute errors.
type ErrorCode string

const (
	// ErrCodeInvalidOption indicates a value outside the attribute's option set.
	ErrCodeInvalidOption ErrorCode = "INVALID_OPTION"

	// ErrCodeUnknownAttribute indicates the attribute id does not exist.
	ErrCodeUnknownAttribute ErrorCode = "UNKNOWN_ATTRIBUTE"

	// ErrCodeDuplicateAttribute indicates Add was called with an existing id.
	ErrCodeDuplicateAttribute ErrorCode = "DUPLICATE_ATTRIBUTE"

	// ErrCodeMultipleValues indicates several values for a single-valued kind.
	ErrCodeMultipleValues ErrorCode = "MULTIPLE_VALUES"

	// ErrCodeFrozen indicates a mutation while a submission is in flight.
	ErrCodeFrozen ErrorCode = "FROZEN"
)

// AttributeError reports a rejected tree operation. The tree is unchanged
// whenever an AttributeError is returned.
type AttributeError struct {
	Code        ErrorCode
	AttributeID string
	Value       string
	Message     string
}

// Error implements the error interface.
func (e *AttributeError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (attribute=%s, value=%q)", e.Code, e.Message, e.AttributeID, e.Value)
	}
	return fmt.Sprintf("%s: %s (attribute=%s)", e.Code, e.Message, e.AttributeID)
}

// IsInvalidOption reports whether err is an invalid option error.
func IsInvalidOption(err error) bool {
	return hasCode(err, ErrCodeInvalidOption)
}

// IsUnknownAttribute reports whether err is an unknown attribute error.
func IsUnknownAttribute(err error) bool {
	return hasCode(err, ErrCodeUnknownAttribute)
}

// IsFrozen reports whether err was caused by a frozen tree.
func IsFrozen(err error) bool {
	return hasCode(err, ErrCodeFrozen)
}

func hasCode(err error, code ErrorCode) bool {
	var ae *AttributeError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

func unknownAttribute(id string) *AttributeError {
	return &AttributeError{
		Code:        ErrCodeUnknownAttribute,
		AttributeID: id,
		Message:     "no such attribute",
	}
}
