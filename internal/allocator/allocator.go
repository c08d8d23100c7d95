package allocator

import (
	"context"
	"time"

	"fulfillment-service/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Candidate is one batch's stock position, read and locked together with the
// batch's expiry so the plan can order by it.
type Candidate struct {
	BatchID          int64           `db:"batch_id"`
	ExpiryDate       time.Time       `db:"expiry_date"`
	Quantity         decimal.Decimal `db:"quantity"`
	ReservedQuantity decimal.Decimal `db:"reserved_quantity"`
}

// Available is the unreserved portion of the candidate.
func (c Candidate) Available() decimal.Decimal {
	return c.Quantity.Sub(c.ReservedQuantity)
}

// Allocation is one (batch, quantity) pair of an allocation plan.
type Allocation struct {
	BatchID  int64           `json:"batch_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Allocator selects batches first-expired-first-out. It performs no writes;
// the caller reserves each returned pair through the ledger inside the same
// transaction that ran the candidate query.
type Allocator struct{}

// New creates an allocator
func New() *Allocator {
	return &Allocator{}
}

// Allocate returns an expiry-ordered plan covering up to need units of the
// product in the warehouse, and the unmet remainder as shortfall. Shortfall
// is a normal outcome, never an error. Candidate rows are locked by the
// query itself, so the read and the caller's subsequent reservations cannot
// be interleaved by a concurrent allocation.
func (a *Allocator) Allocate(ctx context.Context, tx *sqlx.Tx, productID, warehouseID int64, need decimal.Decimal, excludeBatchIDs []int64) ([]Allocation, decimal.Decimal, error) {
	candidates, err := a.fetchCandidates(ctx, tx, productID, warehouseID, excludeBatchIDs)
	if err != nil {
		return nil, decimal.Zero, err
	}

	plan, shortfall := Plan(candidates, need)
	return plan, shortfall, nil
}

// Availability sums unreserved stock for the product without locking
// anything. Backs the read-only review projection.
func (a *Allocator) Availability(ctx context.Context, db *sqlx.DB, productID, warehouseID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(ir.quantity - ir.reserved_quantity), 0)
		FROM inventory_records ir
		JOIN batches b ON b.id = ir.batch_id
		WHERE ir.warehouse_id = $1
		  AND b.product_id = $2
		  AND b.status = 'available'
		  AND ir.quantity - ir.reserved_quantity > 0`,
		warehouseID, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// fetchCandidates reads eligible batches ascending by expiry (batch id
// breaks ties for determinism) and locks their inventory rows.
func (a *Allocator) fetchCandidates(ctx context.Context, tx *sqlx.Tx, productID, warehouseID int64, excludeBatchIDs []int64) ([]Candidate, error) {
	if excludeBatchIDs == nil {
		// A nil slice serializes to SQL NULL and NOT (x = ANY(NULL)) filters
		// every row; an empty array filters none.
		excludeBatchIDs = []int64{}
	}

	var candidates []Candidate
	err := tx.SelectContext(ctx, &candidates, `
		SELECT ir.batch_id, b.expiry_date, ir.quantity, ir.reserved_quantity
		FROM inventory_records ir
		JOIN batches b ON b.id = ir.batch_id
		WHERE ir.warehouse_id = $1
		  AND b.product_id = $2
		  AND b.status = 'available'
		  AND ir.quantity - ir.reserved_quantity > 0
		  AND NOT (b.id = ANY($3))
		ORDER BY b.expiry_date ASC, b.id ASC
		FOR UPDATE OF ir`,
		warehouseID, productID, pq.Array(excludeBatchIDs))
	if err != nil {
		return nil, store.TranslateError(err)
	}
	return candidates, nil
}

// Plan greedily consumes candidates in the order given: earliest-expiring
// stock is drained fully before the next batch is touched. Pure function.
func Plan(candidates []Candidate, need decimal.Decimal) ([]Allocation, decimal.Decimal) {
	plan := make([]Allocation, 0, len(candidates))
	remaining := need

	for _, c := range candidates {
		if !remaining.IsPositive() {
			break
		}
		available := c.Available()
		if !available.IsPositive() {
			continue
		}

		take := decimal.Min(remaining, available)
		plan = append(plan, Allocation{BatchID: c.BatchID, Quantity: take})
		remaining = remaining.Sub(take)
	}

	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return plan, remaining
}
