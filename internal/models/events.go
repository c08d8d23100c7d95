package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderApproved      = "ORDER_APPROVED"
	EventTypeOrderRejected      = "ORDER_REJECTED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeShipmentDispatched = "SHIPMENT_DISPATCHED"
	EventTypeShipmentReceived   = "SHIPMENT_RECEIVED"
	EventTypeBatchReplaced      = "BATCH_REPLACED"
	EventTypeDiscrepancyFound   = "DISCREPANCY_FOUND"
	EventTypeClaimFiled         = "CLAIM_FILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// AllocationLine reports the outcome of allocating one order item.
type AllocationLine struct {
	ProductID         int64           `json:"product_id"`
	QuantityRequested decimal.Decimal `json:"quantity_requested"`
	QuantityApproved  decimal.Decimal `json:"quantity_approved"`
	Shortfall         decimal.Decimal `json:"shortfall"`
}

// OrderApprovedEvent published after an order is approved and its shipment
// created, including any per-item shortfall.
type OrderApprovedEvent struct {
	BaseEvent
	OrderID    int64            `json:"order_id"`
	StoreID    int64            `json:"store_id"`
	ShipmentID int64            `json:"shipment_id"`
	Items      []AllocationLine `json:"items"`
}

// OrderRejectedEvent published when an approver rejects a pending order.
type OrderRejectedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderCancelledEvent published when a store cancels a pending order.
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// ShipmentLine is one (batch, quantity) pair on a dispatched shipment.
type ShipmentLine struct {
	BatchID  int64           `json:"batch_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ShipmentDispatchedEvent published when a shipment leaves the warehouse.
type ShipmentDispatchedEvent struct {
	BaseEvent
	ShipmentID int64          `json:"shipment_id"`
	OrderID    int64          `json:"order_id"`
	ShipDate   time.Time      `json:"ship_date"`
	Items      []ShipmentLine `json:"items"`
}

// BatchReplacedEvent published when a damaged batch is swapped out of a
// preparing shipment.
type BatchReplacedEvent struct {
	BaseEvent
	ShipmentID     int64          `json:"shipment_id"`
	DamagedBatchID int64          `json:"damaged_batch_id"`
	Replacements   []ShipmentLine `json:"replacements"`
}

// ShipmentReceivedEvent published after the store books a shipment in.
type ShipmentReceivedEvent struct {
	BaseEvent
	ShipmentID    int64 `json:"shipment_id"`
	OrderID       int64 `json:"order_id"`
	Discrepancies int   `json:"discrepancies"`
}

// DiscrepancyFoundEvent is the claims collaborator's input: one per
// shipment item that arrived short or damaged.
type DiscrepancyFoundEvent struct {
	BaseEvent
	Discrepancy
}

// ClaimFiledEvent is consumed from the claims collaborator; it marks the
// order as formally claimed.
type ClaimFiledEvent struct {
	BaseEvent
	ClaimID    int64 `json:"claim_id"`
	OrderID    int64 `json:"order_id"`
	ShipmentID int64 `json:"shipment_id"`
}
