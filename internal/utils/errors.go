package utils

import (
	"errors"
	"fmt"
)

// Custom error types
var (
	// ErrValidation is returned when input validation fails
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("not found")

	// ErrDatabase is returned when there's a database operation error
	ErrDatabase = errors.New("database error")
)

// ValidationError represents an error that occurs during input validation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// DatabaseError represents an error that occurs during database operations
type DatabaseError struct {
	Operation string
	Cause     error
}

func (e *DatabaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("database error during %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("database error during %s", e.Operation)
}

func (e *DatabaseError) Unwrap() error {
	return ErrDatabase
}

// Error wrapping functions

// WrapValidationError wraps an error as a validation error
func WrapValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// WrapNotFoundError wraps an error as a not found error
func WrapNotFoundError(resource, id string) error {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// WrapDatabaseError wraps an error as a database error
func WrapDatabaseError(operation string, cause error) error {
	return &DatabaseError{
		Operation: operation,
		Cause:     cause,
	}
}

// Error checking functions

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDatabaseError checks if an error is a database error
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// RequiredFieldError creates a validation error for a missing required field
func RequiredFieldError(field string) error {
	return WrapValidationError(field, "field is required")
}
