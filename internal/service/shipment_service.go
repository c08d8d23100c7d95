package service

import (
	"context"
	"fmt"
	"time"

	"fulfillment-service/internal/allocator"
	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/ledger"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/redisclient"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// ShipmentService manages the shipment state machine:
// preparing -> in_transit -> {delivered, completed, cancelled}.
type ShipmentService struct {
	store     *store.Store
	ledger    *ledger.Ledger
	allocator *allocator.Allocator
	redis     *redisclient.Client
	publisher *broker.EventPublisher
	logger    *zap.Logger
}

// NewShipmentService creates a new shipment service
func NewShipmentService(
	st *store.Store,
	lg *ledger.Ledger,
	al *allocator.Allocator,
	redis *redisclient.Client,
	publisher *broker.EventPublisher,
) *ShipmentService {
	return &ShipmentService{
		store:     st,
		ledger:    lg,
		allocator: al,
		redis:     redis,
		publisher: publisher,
		logger:    util.NamedLogger("shipments"),
	}
}

// FinalizeDispatch converts every reservation on a preparing shipment into a
// physical deduction, marks the shipment in transit and the order
// delivering. All-or-nothing per shipment; re-invoking against an already
// dispatched shipment fails with no additional deduction.
func (s *ShipmentService) FinalizeDispatch(ctx context.Context, shipmentID int64) error {
	ctx, span := util.StartSpan(ctx, "ShipmentService.FinalizeDispatch")
	defer span.End()

	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	shipment, err := s.store.GetShipmentForUpdate(ctx, tx, shipmentID)
	if err != nil {
		return err
	}
	if shipment.Status != models.ShipmentStatusPreparing {
		return fmt.Errorf("dispatch shipment %d in status %q: %w", shipmentID, shipment.Status, models.ErrInvalidTransition)
	}

	order, err := s.store.GetOrderForUpdate(ctx, tx, shipment.OrderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusApproved && order.Status != models.OrderStatusPicking {
		return fmt.Errorf("dispatch for order %d in status %q: %w", order.ID, order.Status, models.ErrInvalidTransition)
	}

	items, err := s.store.GetShipmentItemsTx(ctx, tx, shipmentID)
	if err != nil {
		return err
	}

	reference := fmt.Sprintf("shipment-%d", shipmentID)
	for _, item := range items {
		if err := s.ledger.Dispatch(ctx, tx, shipment.FromWarehouseID, item.BatchID, item.Quantity, reference); err != nil {
			return fmt.Errorf("dispatch batch %d: %w", item.BatchID, err)
		}
	}

	shipDate := time.Now()
	if err := s.store.MarkShipmentDispatched(ctx, tx, shipmentID, shipDate); err != nil {
		return err
	}
	if err := s.store.UpdateOrderStatusTx(ctx, tx, shipment.OrderID, models.OrderStatusDelivering); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return store.TranslateError(err)
	}

	util.ShipmentsDispatchedTotal.Inc()
	s.logger.Info("Shipment dispatched",
		zap.Int64("shipment_id", shipmentID),
		zap.Int64("order_id", shipment.OrderID),
		zap.Int("items", len(items)))

	lines := make([]models.ShipmentLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, models.ShipmentLine{BatchID: item.BatchID, Quantity: item.Quantity})
	}
	event := &models.ShipmentDispatchedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeShipmentDispatched),
		ShipmentID: shipmentID,
		OrderID:    shipment.OrderID,
		ShipDate:   shipDate,
		Items:      lines,
	}
	if err := s.publisher.PublishShipmentDispatched(ctx, event); err != nil {
		s.logger.Error("Failed to publish ShipmentDispatched event", zap.Error(err))
	}
	return nil
}

// MarkDelivered records that an in-transit shipment arrived at the store.
// Only the shipment state advances; the contents are reconciled later by
// receiving, which accepts both in_transit and delivered shipments.
func (s *ShipmentService) MarkDelivered(ctx context.Context, shipmentID int64) error {
	ctx, span := util.StartSpan(ctx, "ShipmentService.MarkDelivered")
	defer span.End()

	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	shipment, err := s.store.GetShipmentForUpdate(ctx, tx, shipmentID)
	if err != nil {
		return err
	}
	if shipment.Status != models.ShipmentStatusInTransit {
		return fmt.Errorf("mark shipment %d delivered in status %q: %w", shipmentID, shipment.Status, models.ErrInvalidTransition)
	}

	if err := s.store.UpdateShipmentStatusTx(ctx, tx, shipmentID, models.ShipmentStatusDelivered); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.TranslateError(err)
	}

	s.logger.Info("Shipment delivered",
		zap.Int64("shipment_id", shipmentID),
		zap.Int64("order_id", shipment.OrderID))
	return nil
}

// ReportDamagedBatch swaps a damaged batch out of a preparing shipment:
// the damaged item is removed, its reservation released, and the same
// quantity re-allocated from other batches. Every batch previously rejected
// for this shipment is excluded from re-allocation. All-or-nothing: if the
// remaining stock cannot cover the full quantity the transaction rolls back,
// leaving the original item and its reservation in place.
func (s *ShipmentService) ReportDamagedBatch(ctx context.Context, shipmentID, batchID int64) error {
	ctx, span := util.StartSpan(ctx, "ShipmentService.ReportDamagedBatch")
	defer span.End()

	batch, err := s.store.GetBatchByID(ctx, batchID)
	if err != nil {
		return err
	}

	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	shipment, err := s.store.GetShipmentForUpdate(ctx, tx, shipmentID)
	if err != nil {
		return err
	}
	if shipment.Status != models.ShipmentStatusPreparing {
		return fmt.Errorf("replace batch on shipment %d in status %q: %w", shipmentID, shipment.Status, models.ErrInvalidTransition)
	}

	item, err := s.store.GetShipmentItemByBatch(ctx, tx, shipmentID, batchID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteShipmentItem(ctx, tx, shipmentID, batchID); err != nil {
		return err
	}
	if err := s.ledger.Release(ctx, tx, shipment.FromWarehouseID, batchID, item.Quantity); err != nil {
		return err
	}
	if err := s.store.AddBatchRejection(ctx, tx, shipmentID, batchID); err != nil {
		return err
	}

	excluded, err := s.store.GetRejectedBatchIDs(ctx, tx, shipmentID)
	if err != nil {
		return err
	}

	plan, shortfall, err := s.allocator.Allocate(ctx, tx, batch.ProductID, shipment.FromWarehouseID, item.Quantity, excluded)
	if err != nil {
		return err
	}
	if shortfall.IsPositive() {
		util.BatchReplacementsTotal.WithLabelValues("insufficient").Inc()
		return fmt.Errorf("replacing batch %d on shipment %d leaves %s uncovered: %w",
			batchID, shipmentID, shortfall, models.ErrInsufficientReplacement)
	}

	replacements := make([]models.ShipmentLine, 0, len(plan))
	for _, alloc := range plan {
		if err := s.ledger.Reserve(ctx, tx, shipment.FromWarehouseID, alloc.BatchID, alloc.Quantity); err != nil {
			return fmt.Errorf("reserve replacement batch %d: %w", alloc.BatchID, err)
		}
		if err := s.store.UpsertShipmentItemQuantity(ctx, tx, shipmentID, alloc.BatchID, alloc.Quantity); err != nil {
			return err
		}
		replacements = append(replacements, models.ShipmentLine{BatchID: alloc.BatchID, Quantity: alloc.Quantity})
	}

	if err := tx.Commit(); err != nil {
		return store.TranslateError(err)
	}

	util.BatchReplacementsTotal.WithLabelValues("replaced").Inc()
	if err := s.redis.InvalidateAvailability(ctx, shipment.FromWarehouseID, batch.ProductID); err != nil {
		s.logger.Warn("Availability cache invalidation failed", zap.Error(err))
	}
	s.logger.Info("Damaged batch replaced",
		zap.Int64("shipment_id", shipmentID),
		zap.Int64("damaged_batch_id", batchID),
		zap.Int("replacement_batches", len(replacements)))

	event := &models.BatchReplacedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeBatchReplaced),
		ShipmentID:     shipmentID,
		DamagedBatchID: batchID,
		Replacements:   replacements,
	}
	if err := s.publisher.PublishBatchReplaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish BatchReplaced event", zap.Error(err))
	}
	return nil
}

// GetShipment retrieves a shipment with its items
func (s *ShipmentService) GetShipment(ctx context.Context, shipmentID int64) (*models.Shipment, []models.ShipmentItem, error) {
	shipment, err := s.store.GetShipmentByID(ctx, shipmentID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.GetShipmentItems(ctx, shipmentID)
	if err != nil {
		return nil, nil, err
	}
	return shipment, items, nil
}
