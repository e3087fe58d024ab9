// internal/model/errors.go
package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid command status transition")
	ErrUnknownDevice     = errors.New("unknown device")
	ErrQueueFull         = errors.New("command queue is full")
)

// ValidationError reports a command that must not be serialized or sent
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// SerializationError reports a command that could not be turned into a wire
// frame. It is never retryable: the same input always fails the same way.
type SerializationError struct {
	CommandType CommandType
	Format      SerializationFormat
	Reason      string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cannot encode %s as %s: %s", e.CommandType, e.Format, e.Reason)
}

// Retryable always returns false
func (e *SerializationError) Retryable() bool {
	return false
}

// IsValidationError reports whether err wraps a ValidationError
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsSerializationError reports whether err wraps a SerializationError
func IsSerializationError(err error) bool {
	var target *SerializationError
	return errors.As(err, &target)
}
