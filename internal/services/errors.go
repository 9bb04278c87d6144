package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCredentials is returned when a username/password pair does not
// match a stored user.
var ErrInvalidCredentials = errors.New("invalid username or password")

// FieldError describes one rejected input field.
type FieldError struct {
	FieldName string `json:"field_name"`
	Error     string `json:"error"`
}

// ValidationError is returned before any write when the input is malformed.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.FieldName + ": " + fe.Error
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NotFoundError names the entity kind and every id that does not exist.
type NotFoundError struct {
	Entity string
	IDs    []int
}

func (e *NotFoundError) Error() string {
	if len(e.IDs) == 1 {
		return fmt.Sprintf("%s with id %d not found", e.Entity, e.IDs[0])
	}
	return fmt.Sprintf("%s ids not found: %s", e.Entity, joinIDs(e.IDs))
}

// ConflictError is returned when a request contradicts the current state,
// including a concurrent write that reached the same row first.
type ConflictError struct {
	Message string
	IDs     []int
}

func (e *ConflictError) Error() string {
	if len(e.IDs) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, joinIDs(e.IDs))
}

// UniquenessError is returned when a unique field value is already taken.
type UniquenessError struct {
	Field string
	Value string
}

func (e *UniquenessError) Error() string {
	return fmt.Sprintf("%s %q is already taken", e.Field, e.Value)
}

// InternalConsistencyError means a committed write could not be read back.
type InternalConsistencyError struct {
	Op  string
	Err error
}

func (e *InternalConsistencyError) Error() string {
	return fmt.Sprintf("%s: written record could not be reloaded: %v", e.Op, e.Err)
}

func (e *InternalConsistencyError) Unwrap() error {
	return e.Err
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

// fieldErrors accumulates validation failures in input order.
type fieldErrors []FieldError

func (f *fieldErrors) add(field, message string) {
	*f = append(*f, FieldError{FieldName: field, Error: message})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Errors: f}
}

// isClientError reports whether err belongs to the caller rather than the
// system, which decides the log level it is reported at.
func isClientError(err error) bool {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConflictError
		unique     *UniquenessError
	)
	return errors.As(err, &validation) ||
		errors.As(err, &notFound) ||
		errors.As(err, &conflict) ||
		errors.As(err, &unique) ||
		errors.Is(err, ErrInvalidCredentials)
}
