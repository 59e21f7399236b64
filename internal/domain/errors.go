package domain

import "errors"

// Error kinds surfaced by the domain services. All of them are recoverable
// at the request boundary; none is process-fatal.
var (
	// ErrInvalidInput indicates a malformed or missing required field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates the referenced record is absent for the given
	// user. True absence and an ownership mismatch are indistinguishable,
	// since every lookup is keyed by user id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAllocation indicates a requested percentage outside 0-100.
	ErrInvalidAllocation = errors.New("invalid allocation")

	// ErrInsufficientAllocation indicates an allocation that would push an
	// institution's total past 100%.
	ErrInsufficientAllocation = errors.New("insufficient allocation")

	// ErrConflict indicates a concurrent update kept winning the
	// conditional write race past the retry budget.
	ErrConflict = errors.New("allocation conflict")

	// ErrStorage wraps a collaborator I/O failure. Retryable by the
	// caller; never retried internally.
	ErrStorage = errors.New("storage fault")
)
