package model

import (
	"errors"
	"fmt"
)

// ErrInvoiceNotFound is returned by the vault when a delete or lookup
// references an id that does not exist.
var ErrInvoiceNotFound = errors.New("invoice not found")

// ParseError represents a document normalization failure with field context
type ParseError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new parse error
func NewParseError(field, message string, cause error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}
