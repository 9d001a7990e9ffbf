package store

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInvariant reports a state the database schema should make impossible,
	// such as two rows sharing a primary key.
	ErrInvariant = errors.New("invariant violated")
)

// NonFieldKey holds validation messages that belong to no single field.
const NonFieldKey = "__all__"

const (
	msgPresence   = "presence: a value is required"
	msgUnique     = "unique: value already exists"
	msgForeignKey = "references a missing row"
	msgCheck      = "check constraint violated"
)

// ValidationError carries per-field messages meant for the client.
type ValidationError struct {
	Errors map[string]string
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: map[string]string{field: message}}
}

// Add records message for field, appending to any earlier message.
func (e *ValidationError) Add(field, message string) {
	if e.Errors == nil {
		e.Errors = make(map[string]string)
	}
	if prev, ok := e.Errors[field]; ok {
		message = prev + "; " + message
	}
	e.Errors[field] = message
}

// Err returns e when it holds messages and nil otherwise.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, field := range slices.Sorted(maps.Keys(e.Errors)) {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Errors[field]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
