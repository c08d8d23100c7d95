package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/allocator"
	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/ledger"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/redisclient"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FulfillmentService drives the order state machine:
// pending -> {approved, rejected, cancelled};
// approved -> picking -> delivering -> {completed, claimed}.
// Every public operation is one database transaction; a failure anywhere
// rolls the whole operation back.
type FulfillmentService struct {
	store     *store.Store
	ledger    *ledger.Ledger
	allocator *allocator.Allocator
	redis     *redisclient.Client
	publisher *broker.EventPublisher
	logger    *zap.Logger
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(
	st *store.Store,
	lg *ledger.Ledger,
	al *allocator.Allocator,
	redis *redisclient.Client,
	publisher *broker.EventPublisher,
) *FulfillmentService {
	return &FulfillmentService{
		store:     st,
		ledger:    lg,
		allocator: al,
		redis:     redis,
		publisher: publisher,
		logger:    util.NamedLogger("fulfillment"),
	}
}

// CreateOrderRequest represents a store's replenishment request
type CreateOrderRequest struct {
	StoreID      int64              `json:"store_id" binding:"required"`
	DeliveryDate time.Time          `json:"delivery_date" binding:"required"`
	Items        []OrderItemRequest `json:"items" binding:"required,min=1"`
}

// OrderItemRequest represents one requested product line
type OrderItemRequest struct {
	ProductID int64           `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
}

// CreateOrder creates a pending order for a store
func (s *FulfillmentService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.CreateOrder")
	defer span.End()

	products, err := s.validateItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	// The store must have an internal warehouse to receive into.
	if _, err := s.store.GetStoreWarehouse(ctx, req.StoreID); err != nil {
		return nil, err
	}

	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order := &models.Order{
		StoreID:      req.StoreID,
		Status:       models.OrderStatusPending,
		DeliveryDate: req.DeliveryDate,
	}
	if err := s.store.CreateOrder(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for _, item := range req.Items {
		if !item.Quantity.IsPositive() {
			return nil, fmt.Errorf("product %d: requested quantity must be positive", item.ProductID)
		}
		if !products[item.ProductID].IsActive {
			return nil, fmt.Errorf("product %d is inactive", item.ProductID)
		}
		orderItem := &models.OrderItem{
			OrderID:           order.ID,
			ProductID:         item.ProductID,
			QuantityRequested: item.Quantity,
		}
		if err := s.store.CreateOrderItem(ctx, tx, orderItem); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, store.TranslateError(err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("store_id", order.StoreID))
	return order, nil
}

// ApproveResult reports the allocation outcome per item.
type ApproveResult struct {
	OrderID    int64                   `json:"order_id"`
	ShipmentID int64                   `json:"shipment_id"`
	Items      []models.AllocationLine `json:"items"`
}

// Approve allocates every item of a pending order against the central
// warehouse, reserves the allocated stock, and creates the shipment that
// mirrors the allocation. One atomic transaction: either every item is
// processed (partial shortfalls allowed) and the shipment exists, or
// nothing is persisted. Shortfall is reported, never queued; there is no
// backorder path.
func (s *FulfillmentService) Approve(ctx context.Context, orderID int64) (*ApproveResult, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.Approve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ApproveLatency.Observe(time.Since(start).Seconds())
	}()

	central, err := s.store.GetCentralWarehouse(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := s.store.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, fmt.Errorf("approve order %d in status %q: %w", orderID, order.Status, models.ErrInvalidTransition)
	}

	storeWh, err := s.store.GetStoreWarehouse(ctx, order.StoreID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.GetOrderItemsTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	shipment := &models.Shipment{
		OrderID:         orderID,
		FromWarehouseID: central.ID,
		ToWarehouseID:   storeWh.ID,
		Status:          models.ShipmentStatusPreparing,
	}
	if err := s.store.CreateShipment(ctx, tx, shipment); err != nil {
		return nil, fmt.Errorf("failed to create shipment: %w", store.TranslateError(err))
	}

	lines := make([]models.AllocationLine, 0, len(items))
	// Merged per batch: the same batch may serve several items of one product.
	batchQuantities := make(map[int64]decimal.Decimal)
	batchOrder := make([]int64, 0)

	for _, item := range items {
		plan, shortfall, err := s.allocator.Allocate(ctx, tx, item.ProductID, central.ID, item.QuantityRequested, nil)
		if err != nil {
			return nil, fmt.Errorf("allocation for product %d: %w", item.ProductID, err)
		}

		approved := item.QuantityRequested.Sub(shortfall)
		for _, alloc := range plan {
			if err := s.ledger.Reserve(ctx, tx, central.ID, alloc.BatchID, alloc.Quantity); err != nil {
				return nil, fmt.Errorf("reserve batch %d: %w", alloc.BatchID, err)
			}
			if _, seen := batchQuantities[alloc.BatchID]; !seen {
				batchOrder = append(batchOrder, alloc.BatchID)
			}
			batchQuantities[alloc.BatchID] = batchQuantities[alloc.BatchID].Add(alloc.Quantity)
		}

		if err := s.store.SetOrderItemApproved(ctx, tx, item.ID, approved); err != nil {
			return nil, err
		}

		if shortfall.IsPositive() {
			util.AllocationShortfallTotal.Inc()
			s.logger.Warn("Partial fulfillment",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", item.ProductID),
				zap.String("requested", item.QuantityRequested.String()),
				zap.String("shortfall", shortfall.String()))
		}

		lines = append(lines, models.AllocationLine{
			ProductID:         item.ProductID,
			QuantityRequested: item.QuantityRequested,
			QuantityApproved:  approved,
			Shortfall:         shortfall,
		})
	}

	for _, batchID := range batchOrder {
		shipItem := &models.ShipmentItem{
			ShipmentID: shipment.ID,
			BatchID:    batchID,
			Quantity:   batchQuantities[batchID],
		}
		if err := s.store.CreateShipmentItem(ctx, tx, shipItem); err != nil {
			return nil, fmt.Errorf("failed to create shipment item: %w", store.TranslateError(err))
		}
	}

	if err := s.store.UpdateOrderStatusTx(ctx, tx, orderID, models.OrderStatusApproved); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, store.TranslateError(err)
	}

	util.OrdersApprovedTotal.Inc()
	s.invalidateAvailability(ctx, central.ID, lines)
	s.logger.Info("Order approved",
		zap.Int64("order_id", orderID),
		zap.Int64("shipment_id", shipment.ID))

	event := &models.OrderApprovedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderApproved),
		OrderID:    orderID,
		StoreID:    order.StoreID,
		ShipmentID: shipment.ID,
		Items:      lines,
	}
	if err := s.publisher.PublishOrderApproved(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderApproved event", zap.Error(err))
	}

	return &ApproveResult{OrderID: orderID, ShipmentID: shipment.ID, Items: lines}, nil
}

// Reject moves a pending order to rejected. Nothing was reserved yet, so
// there are no inventory side effects.
func (s *FulfillmentService) Reject(ctx context.Context, orderID int64, reason string) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.Reject")
	defer span.End()

	if err := s.closePendingOrder(ctx, orderID, models.OrderStatusRejected); err != nil {
		return err
	}

	util.OrdersRejectedTotal.Inc()
	event := &models.OrderRejectedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderRejected),
		OrderID:   orderID,
		Reason:    reason,
	}
	if err := s.publisher.PublishOrderRejected(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderRejected event", zap.Error(err))
	}
	return nil
}

// Cancel moves a pending order to cancelled on behalf of the store.
func (s *FulfillmentService) Cancel(ctx context.Context, orderID int64, reason string) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.Cancel")
	defer span.End()

	if err := s.closePendingOrder(ctx, orderID, models.OrderStatusCancelled); err != nil {
		return err
	}

	util.OrdersCancelledTotal.Inc()
	event := &models.OrderCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   orderID,
		Reason:    reason,
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
	return nil
}

func (s *FulfillmentService) closePendingOrder(ctx context.Context, orderID int64, status string) error {
	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	order, err := s.store.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusPending {
		return fmt.Errorf("close order %d in status %q: %w", orderID, order.Status, models.ErrInvalidTransition)
	}

	if err := s.store.UpdateOrderStatusTx(ctx, tx, orderID, status); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.TranslateError(err)
	}

	s.logger.Info("Order closed",
		zap.Int64("order_id", orderID),
		zap.String("status", status))
	return nil
}

// StartPicking moves an approved order to picking while the warehouse
// assembles the shipment.
func (s *FulfillmentService) StartPicking(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.StartPicking")
	defer span.End()

	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	order, err := s.store.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusApproved {
		return fmt.Errorf("start picking order %d in status %q: %w", orderID, order.Status, models.ErrInvalidTransition)
	}

	if err := s.store.UpdateOrderStatusTx(ctx, tx, orderID, models.OrderStatusPicking); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.TranslateError(err)
	}
	return nil
}

// MarkOrderClaimed is applied when the claims collaborator files a formal
// claim. The collaborator owns the race with receiving, so both delivering
// and completed orders may move to claimed.
func (s *FulfillmentService) MarkOrderClaimed(ctx context.Context, orderID int64) error {
	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	order, err := s.store.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	switch order.Status {
	case models.OrderStatusClaimed:
		return nil // already applied
	case models.OrderStatusDelivering, models.OrderStatusCompleted:
	default:
		return fmt.Errorf("claim against order %d in status %q: %w", orderID, order.Status, models.ErrInvalidTransition)
	}

	if err := s.store.UpdateOrderStatusTx(ctx, tx, orderID, models.OrderStatusClaimed); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.TranslateError(err)
	}

	s.logger.Info("Order marked claimed", zap.Int64("order_id", orderID))
	return nil
}

// ReviewLine shows an approver one item's requested quantity against
// currently unreserved stock.
type ReviewLine struct {
	ProductID         int64           `json:"product_id"`
	QuantityRequested decimal.Decimal `json:"quantity_requested"`
	QuantityAvailable decimal.Decimal `json:"quantity_available"`
}

// Review is a read-only projection of the order against current stock.
// It reserves nothing; approval may still come up short if stock moves
// between review and approve.
func (s *FulfillmentService) Review(ctx context.Context, orderID int64) ([]ReviewLine, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.Review")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, fmt.Errorf("review order %d in status %q: %w", orderID, order.Status, models.ErrInvalidTransition)
	}

	central, err := s.store.GetCentralWarehouse(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	lines := make([]ReviewLine, 0, len(items))
	for _, item := range items {
		available, err := s.availability(ctx, central.ID, item.ProductID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ReviewLine{
			ProductID:         item.ProductID,
			QuantityRequested: item.QuantityRequested,
			QuantityAvailable: available,
		})
	}
	return lines, nil
}

// GetOrder retrieves an order with its items and, if present, shipment.
func (s *FulfillmentService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, *models.Shipment, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	shipment, err := s.store.GetShipmentByOrderID(ctx, orderID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, nil, nil, err
		}
		// Pending/rejected/cancelled orders have no shipment.
		shipment = nil
	}
	return order, items, shipment, nil
}

// availability serves the review projection from the redis snapshot when
// fresh, falling back to the live query.
func (s *FulfillmentService) availability(ctx context.Context, warehouseID, productID int64) (decimal.Decimal, error) {
	if cached, ok, err := s.redis.GetAvailability(ctx, warehouseID, productID); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.logger.Warn("Availability cache read failed", zap.Error(err))
	}

	available, err := s.allocator.Availability(ctx, s.store.GetDB(), productID, warehouseID)
	if err != nil {
		return decimal.Zero, err
	}

	if err := s.redis.SetAvailability(ctx, warehouseID, productID, available); err != nil {
		s.logger.Warn("Availability cache write failed", zap.Error(err))
	}
	return available, nil
}

func (s *FulfillmentService) invalidateAvailability(ctx context.Context, warehouseID int64, lines []models.AllocationLine) {
	for _, line := range lines {
		if err := s.redis.InvalidateAvailability(ctx, warehouseID, line.ProductID); err != nil {
			s.logger.Warn("Availability cache invalidation failed",
				zap.Int64("product_id", line.ProductID),
				zap.Error(err))
		}
	}
}

func (s *FulfillmentService) validateItems(ctx context.Context, items []OrderItemRequest) (map[int64]*models.Product, error) {
	productIDs := make([]int64, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}
	for _, id := range productIDs {
		if _, ok := productMap[id]; !ok {
			return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
		}
	}
	return productMap, nil
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
