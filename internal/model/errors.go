package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can apply the right propagation rule.
type ErrorKind string

const (
	// KindConfiguration rejects a session before any work is done.
	KindConfiguration ErrorKind = "configuration"
	// KindRetrieval is an embedding or similarity-search failure. Retryable.
	KindRetrieval ErrorKind = "retrieval"
	// KindClassification is scoped to one chunk and never fails the batch.
	KindClassification ErrorKind = "classification"
	// KindPersistence stops the remaining writes of the current session.
	KindPersistence ErrorKind = "persistence"
	// KindInvariant means registry state is corrupt. Always halts the batch.
	KindInvariant ErrorKind = "invariant"
)

// Error is a classified error. Raw holds the generator response, if any,
// for diagnostics.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
	Raw  string
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigurationErrorf builds a configuration error.
func ConfigurationErrorf(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Op: "build session", Err: fmt.Errorf(format, args...)}
}

// RetrievalError wraps an embedding or search failure.
func RetrievalError(op string, err error) error {
	return &Error{Kind: KindRetrieval, Op: op, Err: err}
}

// ClassificationError wraps a generator failure or schema violation with
// the raw response that caused it.
func ClassificationError(op string, err error, raw string) error {
	return &Error{Kind: KindClassification, Op: op, Err: err, Raw: raw}
}

// PersistenceError wraps a store write failure.
func PersistenceError(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

// InvariantViolationf reports corrupted registry state.
func InvariantViolationf(format string, args ...any) error {
	return &Error{Kind: KindInvariant, Op: "compact", Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain,
// or "" if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's chain carries a classified error of kind k.
func IsKind(err error, k ErrorKind) bool {
	return err != nil && KindOf(err) == k
}
