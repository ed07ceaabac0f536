package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound    = errors.New("resource not found")
	ErrRunNotFound = fmt.Errorf("%w: run", ErrNotFound)

	// ErrPrecondition covers missing or misaligned analysis inputs. It is
	// raised before any fitting starts, never partway through a run.
	ErrPrecondition = errors.New("analysis precondition violated")

	// ErrUnresolvedAxis is raised when neither axis of a per-event block
	// matches the frequency axis length.
	ErrUnresolvedAxis = errors.New("frequency axis could not be resolved")

	// ErrWorkerFailure wraps an unexpected error or panic inside the worker
	// pool. The whole run aborts; inputs are read-only so a rerun is safe.
	ErrWorkerFailure = errors.New("analysis worker failed")
)

// Error constructors with context
func NewPreconditionError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrPrecondition, field, reason)
}

func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewUnresolvedAxisError(nfreqs, d1, d2 int) error {
	return fmt.Errorf("%w: %d frequencies vs block dims (%d, %d)", ErrUnresolvedAxis, nfreqs, d1, d2)
}

func NewWorkerError(unit int, cause error) error {
	return fmt.Errorf("%w: unit %d: %v", ErrWorkerFailure, unit, cause)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsPreconditionError(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

func IsUnresolvedAxisError(err error) bool {
	return errors.Is(err, ErrUnresolvedAxis)
}

func IsWorkerFailure(err error) bool {
	return errors.Is(err, ErrWorkerFailure)
}
