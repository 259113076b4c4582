package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
)

// ErrNotFound marks lookups that matched no document.
var ErrNotFound = errors.New("mongodb: document not found")

// Error implements repositories.RepositoryError for MongoDB backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports whether the error represents a missing document or file.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports whether the error represents a duplicate key.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable reports whether the error represents a timeout or network failure.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// WrapError annotates driver errors with repository semantics. Context cancellations pass through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	e := &Error{op: op, err: err}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments), errors.Is(err, gridfs.ErrFileNotFound), errors.Is(err, ErrNotFound):
		e.notFound = true
	case mongo.IsDuplicateKeyError(err):
		e.conflict = true
	case mongo.IsTimeout(err), mongo.IsNetworkError(err), errors.Is(err, mongo.ErrClientDisconnected):
		e.unavailable = true
	}
	return e
}

// NotFound builds a not-found repository error for op.
func NotFound(op string) error {
	return &Error{op: op, err: ErrNotFound, notFound: true}
}
