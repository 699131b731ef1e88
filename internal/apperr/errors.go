// Package apperr defines the error kinds returned by the point-of-sale core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and transports.
type Kind string

const (
	// KindValidation marks malformed input or a business-rule violation. Caller-correctable.
	KindValidation Kind = "VALIDATION_ERROR"
	// KindNotFound marks an unknown order, bill, table or ticket.
	KindNotFound Kind = "RESOURCE_NOT_FOUND"
	// KindDatabase marks a persistence failure reported by the gateway.
	KindDatabase Kind = "DATABASE_ERROR"
)

// Error is the domain error type.
type Error struct {
	Kind     Kind
	Field    string            // Offending input field, if any
	Message  string            // Human readable message
	Metadata map[string]string // Additional context (ids, sums)
	Cause    error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Cause != nil && e.Kind == KindDatabase {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind so errors.Is(err, &Error{Kind: KindNotFound}) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Validation creates a validation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// FieldValidation creates a validation error bound to an input field.
func FieldValidation(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not-found error for the given resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Kind:     KindNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Metadata: map[string]string{"resource": resource, "id": id},
	}
}

// Database wraps a persistence failure.
func Database(op string, cause error) *Error {
	return &Error{Kind: KindDatabase, Message: op, Cause: cause}
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *Error) WithMetadata(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// KindOf reports the kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

func IsDatabase(err error) bool { return KindOf(err) == KindDatabase }
