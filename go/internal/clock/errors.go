package clock

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a tournament, its schedule or its clock does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when a command targets a tournament that is not active.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation is returned for malformed identifiers or out-of-range values.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned by a conditional save when the stored version moved.
	ErrConflict = errors.New("clock record changed concurrently")
	// ErrNoSchedule is returned when a tournament's blind structure cannot be loaded.
	ErrNoSchedule = errors.New("blind structure unavailable")
)

// TransientError wraps a store or collaborator failure that may succeed on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNoSchedule) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
