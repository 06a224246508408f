package domain

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Domain Errors
// Every error the engine hands to a caller wraps exactly one of the category
// errors below, so transports can dispatch with errors.Is.
// -----------------------------------------------------------------------------

// Categories
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidAnswerShape = errors.New("invalid answer shape")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrTransient          = errors.New("transient failure")
)

// Catalog errors
var (
	ErrTrailNotFound     = fmt.Errorf("trail %w", ErrNotFound)
	ErrBlockNotFound     = fmt.Errorf("block %w", ErrNotFound)
	ErrPhaseNotFound     = fmt.Errorf("phase %w", ErrNotFound)
	ErrChallengeNotFound = fmt.Errorf("challenge %w", ErrNotFound)
	ErrInvalidCatalog    = errors.New("invalid catalog")
)

// Progression errors
var (
	ErrLocked      = fmt.Errorf("content locked: %w", ErrUnauthorized)
	ErrAccountBusy = fmt.Errorf("account busy: %w", ErrConflict)
	ErrInvalidID   = errors.New("invalid id")
)

// IsRetryable reports whether err is safe to retry unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Transient marks err as a retryable storage or network failure.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
