package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// BeginTxx starts a transaction. Every ledger or allocator call must run
// inside one; there is no implicit fallback to the plain connection.
func (s *Store) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// TranslateError maps database-level failures onto the engine taxonomy:
// serialization/deadlock aborts become ErrConflictRetryable so callers know
// to rerun the whole operation.
func TranslateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", models.ErrConflictRetryable, err)
		}
	}
	return err
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetWarehouseByID retrieves a warehouse by ID
func (s *Store) GetWarehouseByID(ctx context.Context, id int64) (*models.Warehouse, error) {
	var wh models.Warehouse
	err := s.db.GetContext(ctx, &wh, "SELECT * FROM warehouses WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("warehouse %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &wh, nil
}

// GetCentralWarehouse retrieves the central kitchen warehouse
func (s *Store) GetCentralWarehouse(ctx context.Context) (*models.Warehouse, error) {
	var wh models.Warehouse
	err := s.db.GetContext(ctx, &wh,
		"SELECT * FROM warehouses WHERE type = $1 ORDER BY id LIMIT 1", models.WarehouseTypeCentral)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("central warehouse: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &wh, nil
}

// GetStoreWarehouse retrieves a store's internal warehouse
func (s *Store) GetStoreWarehouse(ctx context.Context, storeID int64) (*models.Warehouse, error) {
	var wh models.Warehouse
	err := s.db.GetContext(ctx, &wh,
		"SELECT * FROM warehouses WHERE type = $1 AND store_id = $2", models.WarehouseTypeStore, storeID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("warehouse for store %d: %w", storeID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &wh, nil
}

// GetBatchByID retrieves a batch by ID
func (s *Store) GetBatchByID(ctx context.Context, id int64) (*models.Batch, error) {
	var batch models.Batch
	err := s.db.GetContext(ctx, &batch, "SELECT * FROM batches WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetBatchesByIDs retrieves multiple batches by IDs
func (s *Store) GetBatchesByIDs(ctx context.Context, ids []int64) ([]models.Batch, error) {
	if len(ids) == 0 {
		return []models.Batch{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM batches WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var batches []models.Batch
	err = s.db.SelectContext(ctx, &batches, query, args...)
	return batches, err
}

// GetBatchForUpdate locks and retrieves a batch row inside the caller's
// transaction. Confirmation and deletion of drafts read the status through
// this lock.
func (s *Store) GetBatchForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Batch, error) {
	var batch models.Batch
	err := tx.GetContext(ctx, &batch, "SELECT * FROM batches WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &batch, nil
}

// UpdateBatchStatusTx updates batch status inside a transaction
func (s *Store) UpdateBatchStatusTx(ctx context.Context, tx *sqlx.Tx, batchID int64, status string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE batches SET status = $1 WHERE id = $2", status, batchID)
	return TranslateError(err)
}

// CreateBatch inserts a new batch inside the caller's transaction.
func (s *Store) CreateBatch(ctx context.Context, tx *sqlx.Tx, batch *models.Batch) error {
	query := `
		INSERT INTO batches (product_id, expiry_date, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return tx.GetContext(ctx, batch, query,
		batch.ProductID, batch.ExpiryDate, batch.Status)
}

// DeleteDraftBatch removes a batch that is still pending and has no
// transaction history. Batches with any ledger entry are permanent.
func (s *Store) DeleteDraftBatch(ctx context.Context, tx *sqlx.Tx, batchID int64) error {
	var txCount int
	err := tx.GetContext(ctx, &txCount,
		"SELECT COUNT(*) FROM inventory_transactions WHERE batch_id = $1", batchID)
	if err != nil {
		return err
	}
	if txCount > 0 {
		return fmt.Errorf("batch %d has transaction history: %w", batchID, models.ErrInvalidTransition)
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM batches WHERE id = $1 AND status = $2", batchID, models.BatchStatusPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("draft batch %d: %w", batchID, models.ErrNotFound)
	}
	return nil
}

// GetInventoryRecord retrieves the stock row for a (warehouse, batch) pair
func (s *Store) GetInventoryRecord(ctx context.Context, warehouseID, batchID int64) (*models.InventoryRecord, error) {
	var rec models.InventoryRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT * FROM inventory_records WHERE warehouse_id = $1 AND batch_id = $2",
		warehouseID, batchID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("inventory record (%d, %d): %w", warehouseID, batchID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
