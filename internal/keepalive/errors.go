package keepalive

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request with a missing or malformed field.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized marks a request that carried no user token.
	ErrUnauthorized = errors.New("user token required")
	// ErrForbidden marks a request whose token does not match the user's.
	ErrForbidden = errors.New("invalid user token")
	// ErrNotFound marks an unknown config id.
	ErrNotFound = errors.New("config not found")

	errMissingIdentity = errors.New("record has no config or user id")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func missingField(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

// DecodeError is returned when a stored value is not a valid record.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode record %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
