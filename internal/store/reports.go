package store

import (
	"context"
	"time"

	"fulfillment-service/internal/models"

	"github.com/shopspring/decimal"
)

// FulfillmentRate aggregates requested vs approved quantities across orders
// approved in the period. Derived view only; no part of the write path.
type FulfillmentRate struct {
	TotalRequested decimal.Decimal `db:"total_requested" json:"total_requested"`
	TotalApproved  decimal.Decimal `db:"total_approved" json:"total_approved"`
	Rate           decimal.Decimal `json:"rate"`
}

// GetFulfillmentRate computes the fulfillment rate for orders created in
// [from, to).
func (s *Store) GetFulfillmentRate(ctx context.Context, from, to time.Time) (*FulfillmentRate, error) {
	var r FulfillmentRate
	err := s.db.GetContext(ctx, &r, `
		SELECT
			COALESCE(SUM(oi.quantity_requested), 0) AS total_requested,
			COALESCE(SUM(oi.quantity_approved), 0)  AS total_approved
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.quantity_approved IS NOT NULL
		  AND o.created_at >= $1 AND o.created_at < $2`, from, to)
	if err != nil {
		return nil, err
	}

	if r.TotalRequested.IsPositive() {
		r.Rate = r.TotalApproved.Div(r.TotalRequested).Round(4)
	} else {
		r.Rate = decimal.Zero
	}
	return &r, nil
}

// GetTransactions retrieves the ledger history for a (warehouse, batch) pair
func (s *Store) GetTransactions(ctx context.Context, warehouseID, batchID int64) ([]models.InventoryTransaction, error) {
	var txs []models.InventoryTransaction
	err := s.db.SelectContext(ctx, &txs, `
		SELECT * FROM inventory_transactions
		WHERE warehouse_id = $1 AND batch_id = $2
		ORDER BY id`, warehouseID, batchID)
	return txs, err
}

// ReconciliationRow compares a record's quantity against the sum of its
// ledger entries. The two must always agree.
type ReconciliationRow struct {
	WarehouseID int64           `db:"warehouse_id" json:"warehouse_id"`
	BatchID     int64           `db:"batch_id" json:"batch_id"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	LedgerSum   decimal.Decimal `db:"ledger_sum" json:"ledger_sum"`
}

// Balanced reports whether the record matches its ledger.
func (r *ReconciliationRow) Balanced() bool {
	return r.Quantity.Equal(r.LedgerSum)
}

// GetUnbalancedRecords returns every inventory record whose quantity differs
// from the sum of its transaction deltas. A non-empty result means a bug.
func (s *Store) GetUnbalancedRecords(ctx context.Context) ([]ReconciliationRow, error) {
	var rows []ReconciliationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT
			ir.warehouse_id,
			ir.batch_id,
			ir.quantity,
			COALESCE(SUM(it.quantity_change), 0) AS ledger_sum
		FROM inventory_records ir
		LEFT JOIN inventory_transactions it
			ON it.warehouse_id = ir.warehouse_id AND it.batch_id = ir.batch_id
		GROUP BY ir.warehouse_id, ir.batch_id, ir.quantity
		HAVING ir.quantity <> COALESCE(SUM(it.quantity_change), 0)`)
	return rows, err
}
