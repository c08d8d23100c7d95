package ledger

import (
	"fmt"

	"fulfillment-service/internal/models"

	"github.com/shopspring/decimal"
)

// Pure invariant guards. Each takes the locked row's committed values plus
// the requested delta and decides before any write happens.

func checkReserve(quantity, reserved, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("reserve quantity %s must be positive: %w", qty, models.ErrConsistencyViolation)
	}
	if reserved.Add(qty).GreaterThan(quantity) {
		return fmt.Errorf("reserve %s would exceed on-hand %s (reserved %s): %w",
			qty, quantity, reserved, models.ErrInsufficientCapacity)
	}
	return nil
}

func checkRelease(reserved, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("release quantity %s must be positive: %w", qty, models.ErrConsistencyViolation)
	}
	if qty.GreaterThan(reserved) {
		return fmt.Errorf("release %s exceeds reserved %s: %w", qty, reserved, models.ErrConsistencyViolation)
	}
	return nil
}

func checkDispatch(quantity, reserved, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("dispatch quantity %s must be positive: %w", qty, models.ErrConsistencyViolation)
	}
	// Dispatch consumes an existing reservation; an uncovered dispatch means
	// the orchestration skipped Reserve.
	if qty.GreaterThan(reserved) {
		return fmt.Errorf("dispatch %s exceeds reserved %s: %w", qty, reserved, models.ErrConsistencyViolation)
	}
	if qty.GreaterThan(quantity) {
		return fmt.Errorf("dispatch %s exceeds on-hand %s: %w", qty, quantity, models.ErrConsistencyViolation)
	}
	return nil
}

// checkCommittedState validates the row the transaction is about to commit.
func checkCommittedState(quantity, reserved decimal.Decimal) error {
	if quantity.IsNegative() {
		return fmt.Errorf("quantity %s would go negative: %w", quantity, models.ErrConsistencyViolation)
	}
	if reserved.GreaterThan(quantity) {
		return fmt.Errorf("reserved %s would exceed quantity %s: %w", reserved, quantity, models.ErrConsistencyViolation)
	}
	return nil
}

// movementChange maps a receive-side transaction type to its signed delta.
func movementChange(txType string, qty decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("movement quantity %s must be positive: %w", qty, models.ErrConsistencyViolation)
	}
	switch txType {
	case models.TxTypeImport:
		return qty, nil
	case models.TxTypeWaste, models.TxTypeAdjustment:
		return qty.Neg(), nil
	default:
		return decimal.Zero, fmt.Errorf("transaction type %q not valid for stock movement: %w", txType, models.ErrConsistencyViolation)
	}
}
