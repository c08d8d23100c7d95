package models

import "errors"

// Engine error taxonomy. Services wrap these with fmt.Errorf("...: %w", err)
// so callers classify with errors.Is while keeping the operation context.
var (
	// ErrNotFound: a referenced order/shipment/batch/warehouse does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition: the operation is not permitted from the entity's
	// current state. No partial effect.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInsufficientCapacity: a reservation would push reserved_quantity
	// past quantity. The allocator never asks for more than is available,
	// so the ledger raising this means a caller bypassed it.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrInsufficientReplacement: a damaged-batch replacement could not cover
	// the full original quantity. Replacement is all-or-nothing.
	ErrInsufficientReplacement = errors.New("insufficient replacement stock")

	// ErrConsistencyViolation: an inventory invariant failed inside a locked
	// transaction. Indicates a bug or a missed lock, never retried.
	ErrConsistencyViolation = errors.New("inventory consistency violation")

	// ErrConflictRetryable: the database aborted the transaction with a
	// serialization or deadlock failure. Retry the whole operation.
	ErrConflictRetryable = errors.New("transaction conflict")
)

// ErrorCode returns the stable machine-readable code for an engine error,
// or "INTERNAL" for anything outside the taxonomy.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrInsufficientCapacity):
		return "INSUFFICIENT_CAPACITY"
	case errors.Is(err, ErrInsufficientReplacement):
		return "INSUFFICIENT_REPLACEMENT"
	case errors.Is(err, ErrConsistencyViolation):
		return "CONSISTENCY_VIOLATION"
	case errors.Is(err, ErrConflictRetryable):
		return "CONFLICT_RETRY"
	default:
		return "INTERNAL"
	}
}

// IsRetryable reports whether the caller should retry the whole operation
// from scratch. Only transaction-level conflicts qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflictRetryable)
}
