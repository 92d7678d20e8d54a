package config

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// ErrorCode categorizes configuration errors.
type ErrorCode string

const (
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeLoadFailed  ErrorCode = "LOAD_FAILED"
	ErrCodeBuildFailed ErrorCode = "BUILD_FAILED"
	ErrCodeSchema      ErrorCode = "SCHEMA"
	ErrCodeToolConfig  ErrorCode = "TOOL_CONFIG"
)

// Error is a configuration error, with a CUE position when one is known.
type Error struct {
	Code    ErrorCode
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// IsSchemaError reports whether err is a definition that failed schema
// validation.
func IsSchemaError(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == ErrCodeSchema
}
