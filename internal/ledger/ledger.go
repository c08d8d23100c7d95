package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger owns every mutation of inventory_records. All four operations run
// inside the caller's transaction with the record row locked, so concurrent
// reservations and dispatches against the same (warehouse, batch) serialize
// at the database. Nothing else in the codebase writes these rows.
type Ledger struct {
	logger *zap.Logger
}

// New creates a ledger
func New() *Ledger {
	return &Ledger{logger: util.NamedLogger("ledger")}
}

// Reserve places a soft hold of qty on (warehouseID, batchID). The allocator
// never asks for more than is available, but the ledger re-validates against
// the locked row anyway.
func (l *Ledger) Reserve(ctx context.Context, tx *sqlx.Tx, warehouseID, batchID int64, qty decimal.Decimal) error {
	defer observe("reserve", time.Now())

	rec, err := l.lockRecord(ctx, tx, warehouseID, batchID)
	if err != nil {
		return err
	}

	if err := checkReserve(rec.Quantity, rec.ReservedQuantity, qty); err != nil {
		return err
	}

	return l.updateRecord(ctx, tx, rec.ID, rec.Quantity, rec.ReservedQuantity.Add(qty))
}

// Release gives back qty of a reservation without moving physical stock.
func (l *Ledger) Release(ctx context.Context, tx *sqlx.Tx, warehouseID, batchID int64, qty decimal.Decimal) error {
	defer observe("release", time.Now())

	rec, err := l.lockRecord(ctx, tx, warehouseID, batchID)
	if err != nil {
		return err
	}

	if err := checkRelease(rec.ReservedQuantity, qty); err != nil {
		return err
	}

	return l.updateRecord(ctx, tx, rec.ID, rec.Quantity, rec.ReservedQuantity.Sub(qty))
}

// Dispatch converts a reservation into a physical deduction: quantity and
// reserved_quantity both drop by qty, and an export entry is appended.
func (l *Ledger) Dispatch(ctx context.Context, tx *sqlx.Tx, warehouseID, batchID int64, qty decimal.Decimal, referenceID string) error {
	defer observe("dispatch", time.Now())

	rec, err := l.lockRecord(ctx, tx, warehouseID, batchID)
	if err != nil {
		return err
	}

	if err := checkDispatch(rec.Quantity, rec.ReservedQuantity, qty); err != nil {
		l.logger.Error("dispatch rejected by invariant check",
			zap.Int64("warehouse_id", warehouseID),
			zap.Int64("batch_id", batchID),
			zap.String("quantity", rec.Quantity.String()),
			zap.String("reserved", rec.ReservedQuantity.String()),
			zap.String("requested", qty.String()),
			zap.Error(err))
		return err
	}

	if err := l.updateRecord(ctx, tx, rec.ID, rec.Quantity.Sub(qty), rec.ReservedQuantity.Sub(qty)); err != nil {
		return err
	}

	return l.appendTransaction(ctx, tx, warehouseID, batchID, models.TxTypeExport, qty.Neg(), referenceID, "")
}

// Receive applies a physical stock movement that does not touch
// reservations: import adds qty, waste and adjustment subtract it. The
// record row is created on first movement into the (warehouse, batch) pair.
func (l *Ledger) Receive(ctx context.Context, tx *sqlx.Tx, warehouseID, batchID int64, qty decimal.Decimal, txType, referenceID, reason string) error {
	defer observe("receive", time.Now())

	change, err := movementChange(txType, qty)
	if err != nil {
		return err
	}

	rec, err := l.lockOrCreateRecord(ctx, tx, warehouseID, batchID)
	if err != nil {
		return err
	}

	newQty := rec.Quantity.Add(change)
	if err := checkCommittedState(newQty, rec.ReservedQuantity); err != nil {
		l.logger.Error("stock movement rejected by invariant check",
			zap.Int64("warehouse_id", warehouseID),
			zap.Int64("batch_id", batchID),
			zap.String("type", txType),
			zap.String("change", change.String()),
			zap.Error(err))
		return err
	}

	if err := l.updateRecord(ctx, tx, rec.ID, newQty, rec.ReservedQuantity); err != nil {
		return err
	}

	return l.appendTransaction(ctx, tx, warehouseID, batchID, txType, change, referenceID, reason)
}

// lockRecord reads the record with FOR UPDATE inside the transaction.
func (l *Ledger) lockRecord(ctx context.Context, tx *sqlx.Tx, warehouseID, batchID int64) (*models.InventoryRecord, error) {
	var rec models.InventoryRecord
	err := tx.GetContext(ctx, &rec,
		"SELECT * FROM inventory_records WHERE warehouse_id = $1 AND batch_id = $2 FOR UPDATE",
		warehouseID, batchID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("inventory record (%d, %d): %w", warehouseID, batchID, models.ErrNotFound)
	}
	if err != nil {
		return nil, store.TranslateError(err)
	}
	return &rec, nil
}

// lockOrCreateRecord upserts a zero row for first movements, then locks it.
func (l *Ledger) lockOrCreateRecord(ctx context.Context, tx *sqlx.Tx, warehouseID, batchID int64) (*models.InventoryRecord, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_records (warehouse_id, batch_id, quantity, reserved_quantity)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (warehouse_id, batch_id) DO NOTHING`,
		warehouseID, batchID)
	if err != nil {
		return nil, store.TranslateError(err)
	}
	return l.lockRecord(ctx, tx, warehouseID, batchID)
}

func (l *Ledger) updateRecord(ctx context.Context, tx *sqlx.Tx, recordID int64, quantity, reserved decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE inventory_records SET quantity = $1, reserved_quantity = $2, updated_at = NOW() WHERE id = $3",
		quantity, reserved, recordID)
	return store.TranslateError(err)
}

func (l *Ledger) appendTransaction(ctx context.Context, tx *sqlx.Tx, warehouseID, batchID int64, txType string, change decimal.Decimal, referenceID, reason string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_transactions (warehouse_id, batch_id, type, quantity_change, reference_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		warehouseID, batchID, txType, change, referenceID, reason)
	return store.TranslateError(err)
}

func observe(op string, start time.Time) {
	util.LedgerOpLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
