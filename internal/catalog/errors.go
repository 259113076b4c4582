package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingIdentifier indicates a raw document carries no usable primary key.
	ErrMissingIdentifier = errors.New("catalog: missing identifier")
	// ErrSchemaValidation indicates a document could not be shaped into a listing after defaulting.
	ErrSchemaValidation = errors.New("catalog: schema validation failed")
	// ErrListingNotFound is returned by the assembler whenever a single document cannot be emitted.
	ErrListingNotFound = errors.New("catalog: listing not found")
)

// DocumentError reports which field stopped a document from normalizing.
type DocumentError struct {
	Field  string
	Reason string
	Err    error
}

func (e *DocumentError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Reason == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Field)
	}
	return fmt.Sprintf("%v: %s: %s", e.Err, e.Field, e.Reason)
}

func (e *DocumentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func schemaError(field, reason string) error {
	return &DocumentError{Field: field, Reason: reason, Err: ErrSchemaValidation}
}
