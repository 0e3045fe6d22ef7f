package directory

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("directory: not found")

	// ErrBackendUnavailable indicates the directory could not answer the lookup.
	ErrBackendUnavailable = errors.New("directory: backend unavailable")

	// ErrConflict indicates a write would break a directory invariant.
	ErrConflict = errors.New("directory: conflict")

	// ErrInvalidInput indicates a malformed record or lookup key.
	ErrInvalidInput = errors.New("directory: invalid input")
)

// LookupError wraps a backend failure with the operation that triggered it.
type LookupError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	return fmt.Sprintf("directory %s: %v", e.Op, e.Err)
}

// Is makes every LookupError match ErrBackendUnavailable.
func (e *LookupError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

// Unwrap returns the driver error.
func (e *LookupError) Unwrap() error {
	return e.Err
}

// Unavailable classifies err as a backend failure of op. ErrNotFound and nil pass
// through unchanged.
func Unavailable(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		return err
	}
	return &LookupError{Op: op, Err: err}
}

// Outcome is the classified result of a single directory lookup.
type Outcome int

const (
	OutcomeFound Outcome = iota
	OutcomeNotFound
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome by name in JSON diagnostics.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Classify maps a lookup error onto an Outcome. Anything that is not a miss counts
// as an outage so callers never mistake a broken backend for an absent record.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeFound
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeUnavailable
	}
}
