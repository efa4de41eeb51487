package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalid       = errors.New("invalid")
	ErrConflict      = errors.New("conflict")
	ErrPoolExhausted = errors.New("connection pool exhausted")
	ErrEncryption    = errors.New("encryption key missing or invalid")
	ErrMigration     = errors.New("migration failed")
	ErrInternal      = errors.New("internal")
)

// ValidationError carries the rejected field names so admin callers can
// report exactly what was wrong. It matches ErrInvalid under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func NewValidation() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) Add(field, reason string) {
	e.Fields[field] = reason
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

// DimensionMismatchError is a configuration defect: an embedding whose
// length disagrees with the deployed dimension is never truncated or padded.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error {
	return ErrInvalid
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
