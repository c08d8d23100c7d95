package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is catalog-owned; the engine only reads it.
type Product struct {
	ID            int64     `db:"id" json:"id"`
	SKU           string    `db:"sku" json:"sku"`
	Name          string    `db:"name" json:"name"`
	Unit          string    `db:"unit" json:"unit"`
	ShelfLifeDays int       `db:"shelf_life_days" json:"shelf_life_days"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Warehouse is either the central kitchen or a store's internal warehouse.
type Warehouse struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Type      string    `db:"type" json:"type"`
	StoreID   *int64    `db:"store_id" json:"store_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Batch represents a physical lot of one product. ExpiryDate is immutable
// once the batch exists; a batch with transaction history is never deleted.
type Batch struct {
	ID         int64     `db:"id" json:"id"`
	ProductID  int64     `db:"product_id" json:"product_id"`
	ExpiryDate time.Time `db:"expiry_date" json:"expiry_date"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// InventoryRecord is the authoritative stock state for one (warehouse, batch)
// pair. Invariant at every committed state: 0 <= reserved_quantity <= quantity.
// Rows are upserted on first movement and never deleted.
type InventoryRecord struct {
	ID               int64           `db:"id" json:"id"`
	WarehouseID      int64           `db:"warehouse_id" json:"warehouse_id"`
	BatchID          int64           `db:"batch_id" json:"batch_id"`
	Quantity         decimal.Decimal `db:"quantity" json:"quantity"`
	ReservedQuantity decimal.Decimal `db:"reserved_quantity" json:"reserved_quantity"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Available is the portion of the record not held by a reservation.
func (r *InventoryRecord) Available() decimal.Decimal {
	return r.Quantity.Sub(r.ReservedQuantity)
}

// InventoryTransaction is one append-only ledger entry. The sum of
// QuantityChange for a (warehouse, batch) equals the record's quantity.
type InventoryTransaction struct {
	ID             int64           `db:"id" json:"id"`
	WarehouseID    int64           `db:"warehouse_id" json:"warehouse_id"`
	BatchID        int64           `db:"batch_id" json:"batch_id"`
	Type           string          `db:"type" json:"type"`
	QuantityChange decimal.Decimal `db:"quantity_change" json:"quantity_change"`
	ReferenceID    string          `db:"reference_id" json:"reference_id"`
	Reason         string          `db:"reason" json:"reason,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Order is a store's replenishment request.
type Order struct {
	ID           int64     `db:"id" json:"id"`
	StoreID      int64     `db:"store_id" json:"store_id"`
	Status       string    `db:"status" json:"status"`
	DeliveryDate time.Time `db:"delivery_date" json:"delivery_date"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem carries the requested quantity and, after one approval pass,
// the final approved quantity. QuantityApproved is written exactly once.
type OrderItem struct {
	ID                int64               `db:"id" json:"id"`
	OrderID           int64               `db:"order_id" json:"order_id"`
	ProductID         int64               `db:"product_id" json:"product_id"`
	QuantityRequested decimal.Decimal     `db:"quantity_requested" json:"quantity_requested"`
	QuantityApproved  decimal.NullDecimal `db:"quantity_approved" json:"quantity_approved"`
}

// Shipment is 1:1 with an approved order.
type Shipment struct {
	ID              int64      `db:"id" json:"id"`
	OrderID         int64      `db:"order_id" json:"order_id"`
	FromWarehouseID int64      `db:"from_warehouse_id" json:"from_warehouse_id"`
	ToWarehouseID   int64      `db:"to_warehouse_id" json:"to_warehouse_id"`
	Status          string     `db:"status" json:"status"`
	ShipDate        *time.Time `db:"ship_date" json:"ship_date,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// ShipmentItem rows are mutable while the shipment is preparing (batch
// replacement rewrites them) and frozen once in transit.
type ShipmentItem struct {
	ID         int64           `db:"id" json:"id"`
	ShipmentID int64           `db:"shipment_id" json:"shipment_id"`
	BatchID    int64           `db:"batch_id" json:"batch_id"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity"`
}

// Discrepancy is the record handed to the claims collaborator when a
// receipt comes up short or damaged.
type Discrepancy struct {
	ShipmentID      int64           `json:"shipment_id"`
	ProductID       int64           `json:"product_id"`
	BatchID         int64           `json:"batch_id"`
	QuantityMissing decimal.Decimal `json:"quantity_missing"`
	QuantityDamaged decimal.Decimal `json:"quantity_damaged"`
	Reason          string          `json:"reason,omitempty"`
	EvidenceURLs    []string        `json:"evidence_urls,omitempty"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusApproved   = "approved"
	OrderStatusRejected   = "rejected"
	OrderStatusCancelled  = "cancelled"
	OrderStatusPicking    = "picking"
	OrderStatusDelivering = "delivering"
	OrderStatusCompleted  = "completed"
	OrderStatusClaimed    = "claimed"
)

// Shipment statuses
const (
	ShipmentStatusPreparing = "preparing"
	ShipmentStatusInTransit = "in_transit"
	ShipmentStatusDelivered = "delivered"
	ShipmentStatusCompleted = "completed"
	ShipmentStatusCancelled = "cancelled"
)

// Batch statuses
const (
	BatchStatusPending   = "pending"
	BatchStatusAvailable = "available"
)

// Inventory transaction types
const (
	TxTypeImport     = "import"
	TxTypeExport     = "export"
	TxTypeWaste      = "waste"
	TxTypeAdjustment = "adjustment"
)

// Warehouse types
const (
	WarehouseTypeCentral = "central"
	WarehouseTypeStore   = "store"
)
