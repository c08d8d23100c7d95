package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fulfillment-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// CreateOrder creates a new order inside the caller's transaction
func (s *Store) CreateOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (store_id, status, delivery_date)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	return tx.GetContext(ctx, order, query,
		order.StoreID, order.Status, order.DeliveryDate)
}

// CreateOrderItem creates a new order item inside the caller's transaction
func (s *Store) CreateOrderItem(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity_requested)
		VALUES ($1, $2, $3)
		RETURNING id`

	return tx.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.QuantityRequested)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUpdate locks and retrieves an order row inside the caller's
// transaction. State transitions read the status through this lock so two
// concurrent approvals cannot both see "pending".
func (s *Store) GetOrderForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Order, error) {
	var order models.Order
	err := tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &order, nil
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetOrderItemsTx retrieves order items inside a transaction
func (s *Store) GetOrderItemsTx(ctx context.Context, tx *sqlx.Tx, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// UpdateOrderStatusTx updates order status inside a transaction
func (s *Store) UpdateOrderStatusTx(ctx context.Context, tx *sqlx.Tx, orderID int64, status string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return TranslateError(err)
}

// SetOrderItemApproved writes the approved quantity for an item. It is
// written exactly once: a second write against the same item is refused.
func (s *Store) SetOrderItemApproved(ctx context.Context, tx *sqlx.Tx, itemID int64, qty decimal.Decimal) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE order_items SET quantity_approved = $1 WHERE id = $2 AND quantity_approved IS NULL",
		qty, itemID)
	if err != nil {
		return TranslateError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("order item %d already approved: %w", itemID, models.ErrInvalidTransition)
	}
	return nil
}

// CreateShipment creates a shipment inside a transaction
func (s *Store) CreateShipment(ctx context.Context, tx *sqlx.Tx, shipment *models.Shipment) error {
	query := `
		INSERT INTO shipments (order_id, from_warehouse_id, to_warehouse_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return tx.GetContext(ctx, shipment, query,
		shipment.OrderID, shipment.FromWarehouseID, shipment.ToWarehouseID, shipment.Status)
}

// GetShipmentByID retrieves a shipment by ID
func (s *Store) GetShipmentByID(ctx context.Context, id int64) (*models.Shipment, error) {
	var shipment models.Shipment
	err := s.db.GetContext(ctx, &shipment, "SELECT * FROM shipments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shipment %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

// GetShipmentForUpdate locks and retrieves a shipment row inside the
// caller's transaction.
func (s *Store) GetShipmentForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Shipment, error) {
	var shipment models.Shipment
	err := tx.GetContext(ctx, &shipment, "SELECT * FROM shipments WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shipment %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &shipment, nil
}

// GetShipmentByOrderID retrieves the shipment belonging to an order (1:1)
func (s *Store) GetShipmentByOrderID(ctx context.Context, orderID int64) (*models.Shipment, error) {
	var shipment models.Shipment
	err := s.db.GetContext(ctx, &shipment, "SELECT * FROM shipments WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shipment for order %d: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

// UpdateShipmentStatusTx updates shipment status inside a transaction
func (s *Store) UpdateShipmentStatusTx(ctx context.Context, tx *sqlx.Tx, shipmentID int64, status string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE shipments SET status = $1, updated_at = NOW() WHERE id = $2",
		status, shipmentID)
	return TranslateError(err)
}

// MarkShipmentDispatched moves the shipment to in_transit with its ship date
func (s *Store) MarkShipmentDispatched(ctx context.Context, tx *sqlx.Tx, shipmentID int64, shipDate time.Time) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE shipments SET status = $1, ship_date = $2, updated_at = NOW() WHERE id = $3",
		models.ShipmentStatusInTransit, shipDate, shipmentID)
	return TranslateError(err)
}

// CreateShipmentItem inserts a shipment item inside a transaction
func (s *Store) CreateShipmentItem(ctx context.Context, tx *sqlx.Tx, item *models.ShipmentItem) error {
	query := `
		INSERT INTO shipment_items (shipment_id, batch_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING id`

	return tx.GetContext(ctx, &item.ID, query,
		item.ShipmentID, item.BatchID, item.Quantity)
}

// GetShipmentItems retrieves all items for a shipment
func (s *Store) GetShipmentItems(ctx context.Context, shipmentID int64) ([]models.ShipmentItem, error) {
	var items []models.ShipmentItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM shipment_items WHERE shipment_id = $1 ORDER BY id", shipmentID)
	return items, err
}

// GetShipmentItemsTx retrieves shipment items inside a transaction
func (s *Store) GetShipmentItemsTx(ctx context.Context, tx *sqlx.Tx, shipmentID int64) ([]models.ShipmentItem, error) {
	var items []models.ShipmentItem
	err := tx.SelectContext(ctx, &items,
		"SELECT * FROM shipment_items WHERE shipment_id = $1 ORDER BY id", shipmentID)
	return items, err
}

// GetShipmentItemByBatch retrieves the shipment item for one batch
func (s *Store) GetShipmentItemByBatch(ctx context.Context, tx *sqlx.Tx, shipmentID, batchID int64) (*models.ShipmentItem, error) {
	var item models.ShipmentItem
	err := tx.GetContext(ctx, &item,
		"SELECT * FROM shipment_items WHERE shipment_id = $1 AND batch_id = $2",
		shipmentID, batchID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shipment %d has no item for batch %d: %w", shipmentID, batchID, models.ErrNotFound)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &item, nil
}

// DeleteShipmentItem removes a shipment item row (batch replacement)
func (s *Store) DeleteShipmentItem(ctx context.Context, tx *sqlx.Tx, shipmentID, batchID int64) error {
	_, err := tx.ExecContext(ctx,
		"DELETE FROM shipment_items WHERE shipment_id = $1 AND batch_id = $2",
		shipmentID, batchID)
	return TranslateError(err)
}

// UpsertShipmentItemQuantity adds qty onto a shipment's line for the batch,
// creating the row if the batch is not yet on the shipment.
func (s *Store) UpsertShipmentItemQuantity(ctx context.Context, tx *sqlx.Tx, shipmentID, batchID int64, qty decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO shipment_items (shipment_id, batch_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (shipment_id, batch_id)
		DO UPDATE SET quantity = shipment_items.quantity + EXCLUDED.quantity`,
		shipmentID, batchID, qty)
	return TranslateError(err)
}

// AddBatchRejection records that a batch was rejected for a shipment, so
// later replacements never re-allocate it.
func (s *Store) AddBatchRejection(ctx context.Context, tx *sqlx.Tx, shipmentID, batchID int64) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO shipment_batch_rejections (shipment_id, batch_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		shipmentID, batchID)
	return TranslateError(err)
}

// GetRejectedBatchIDs retrieves every batch previously rejected for a shipment
func (s *Store) GetRejectedBatchIDs(ctx context.Context, tx *sqlx.Tx, shipmentID int64) ([]int64, error) {
	var ids []int64
	err := tx.SelectContext(ctx, &ids,
		"SELECT batch_id FROM shipment_batch_rejections WHERE shipment_id = $1", shipmentID)
	return ids, err
}
