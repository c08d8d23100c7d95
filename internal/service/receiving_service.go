package service

import (
	"context"
	"fmt"
	"time"

	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/ledger"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/redisclient"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReceivingService reconciles what a store actually received against what
// the shipment carried, books good stock into the store warehouse, and
// hands shortfall/damage to the claims collaborator.
type ReceivingService struct {
	store     *store.Store
	ledger    *ledger.Ledger
	redis     *redisclient.Client
	publisher *broker.EventPublisher
	logger    *zap.Logger
}

// NewReceivingService creates a new receiving service
func NewReceivingService(
	st *store.Store,
	lg *ledger.Ledger,
	redis *redisclient.Client,
	publisher *broker.EventPublisher,
) *ReceivingService {
	return &ReceivingService{
		store:     st,
		ledger:    lg,
		redis:     redis,
		publisher: publisher,
		logger:    util.NamedLogger("receiving"),
	}
}

// ReceiptLine is the store's count for one shipment item. A shipment item
// without a line is treated as entirely missing.
type ReceiptLine struct {
	BatchID      int64           `json:"batch_id" binding:"required"`
	ActualQty    decimal.Decimal `json:"actual_qty"`
	DamagedQty   decimal.Decimal `json:"damaged_qty"`
	Reason       string          `json:"reason,omitempty"`
	EvidenceURLs []string        `json:"evidence_urls,omitempty"`
}

// ReceiveResult reports the reconciliation outcome.
type ReceiveResult struct {
	ShipmentID    int64                `json:"shipment_id"`
	OrderID       int64                `json:"order_id"`
	Discrepancies []models.Discrepancy `json:"discrepancies"`
}

// ReceiveShipment books an in-transit shipment into the store's warehouse.
// Per item: goodQty = actual - damaged is imported through the ledger;
// missingQty = max(0, expected - actual). Any missing or damaged quantity
// becomes a discrepancy for the claims collaborator. The shipment completes,
// and the order completes unless a claim already moved it to claimed.
func (s *ReceivingService) ReceiveShipment(ctx context.Context, shipmentID int64, receipt []ReceiptLine) (*ReceiveResult, error) {
	ctx, span := util.StartSpan(ctx, "ReceivingService.ReceiveShipment")
	defer span.End()

	// Guards against a double-submitted receipt form before any row locks
	// are taken. The status check below is the real protection.
	claimed, err := s.redis.ClaimReceipt(ctx, shipmentID, time.Minute)
	if err != nil {
		s.logger.Warn("Receipt guard unavailable", zap.Error(err))
	} else if !claimed {
		return nil, fmt.Errorf("receipt for shipment %d already in progress: %w", shipmentID, models.ErrInvalidTransition)
	}

	result, err := s.receive(ctx, shipmentID, receipt)
	if err != nil {
		if relErr := s.redis.ReleaseReceipt(ctx, shipmentID); relErr != nil {
			s.logger.Warn("Failed to release receipt guard", zap.Error(relErr))
		}
		return nil, err
	}

	util.ReceiptsProcessedTotal.Inc()
	s.publishResults(ctx, result)
	return result, nil
}

func (s *ReceivingService) receive(ctx context.Context, shipmentID int64, receipt []ReceiptLine) (*ReceiveResult, error) {
	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	shipment, err := s.store.GetShipmentForUpdate(ctx, tx, shipmentID)
	if err != nil {
		return nil, err
	}
	if shipment.Status != models.ShipmentStatusInTransit && shipment.Status != models.ShipmentStatusDelivered {
		return nil, fmt.Errorf("receive shipment %d in status %q: %w", shipmentID, shipment.Status, models.ErrInvalidTransition)
	}

	order, err := s.store.GetOrderForUpdate(ctx, tx, shipment.OrderID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.GetShipmentItemsTx(ctx, tx, shipmentID)
	if err != nil {
		return nil, err
	}

	linesByBatch, err := indexReceipt(receipt)
	if err != nil {
		return nil, err
	}
	for batchID := range linesByBatch {
		found := false
		for _, item := range items {
			if item.BatchID == batchID {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("batch %d is not on shipment %d: %w", batchID, shipmentID, models.ErrNotFound)
		}
	}

	productByBatch, err := s.productLookup(ctx, items)
	if err != nil {
		return nil, err
	}

	reference := fmt.Sprintf("shipment-%d", shipmentID)
	discrepancies := make([]models.Discrepancy, 0)

	for _, item := range items {
		line := linesByBatch[item.BatchID] // zero value = nothing arrived

		goodQty, missingQty, err := reconcileItem(item.Quantity, line.ActualQty, line.DamagedQty)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", item.BatchID, err)
		}

		if goodQty.IsPositive() {
			if err := s.ledger.Receive(ctx, tx, shipment.ToWarehouseID, item.BatchID, goodQty,
				models.TxTypeImport, reference, ""); err != nil {
				return nil, fmt.Errorf("import batch %d: %w", item.BatchID, err)
			}
		}

		if missingQty.IsPositive() || line.DamagedQty.IsPositive() {
			discrepancies = append(discrepancies, models.Discrepancy{
				ShipmentID:      shipmentID,
				ProductID:       productByBatch[item.BatchID],
				BatchID:         item.BatchID,
				QuantityMissing: missingQty,
				QuantityDamaged: line.DamagedQty,
				Reason:          line.Reason,
				EvidenceURLs:    line.EvidenceURLs,
			})
		}
	}

	if err := s.store.UpdateShipmentStatusTx(ctx, tx, shipmentID, models.ShipmentStatusCompleted); err != nil {
		return nil, err
	}

	// The claims collaborator may already have marked the order claimed;
	// that terminal state wins.
	if order.Status == models.OrderStatusDelivering {
		if err := s.store.UpdateOrderStatusTx(ctx, tx, order.ID, models.OrderStatusCompleted); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, store.TranslateError(err)
	}

	s.logger.Info("Shipment received",
		zap.Int64("shipment_id", shipmentID),
		zap.Int64("order_id", order.ID),
		zap.Int("discrepancies", len(discrepancies)))

	return &ReceiveResult{
		ShipmentID:    shipmentID,
		OrderID:       order.ID,
		Discrepancies: discrepancies,
	}, nil
}

func (s *ReceivingService) publishResults(ctx context.Context, result *ReceiveResult) {
	for _, d := range result.Discrepancies {
		kind := "missing"
		if d.QuantityDamaged.IsPositive() {
			kind = "damaged"
			if d.QuantityMissing.IsPositive() {
				kind = "missing_and_damaged"
			}
		}
		util.DiscrepanciesEmittedTotal.WithLabelValues(kind).Inc()

		event := &models.DiscrepancyFoundEvent{
			BaseEvent:   newBaseEvent(models.EventTypeDiscrepancyFound),
			Discrepancy: d,
		}
		if err := s.publisher.PublishDiscrepancyFound(ctx, event); err != nil {
			s.logger.Error("Failed to publish DiscrepancyFound event",
				zap.Int64("shipment_id", d.ShipmentID),
				zap.Int64("batch_id", d.BatchID),
				zap.Error(err))
		}
	}

	event := &models.ShipmentReceivedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeShipmentReceived),
		ShipmentID:    result.ShipmentID,
		OrderID:       result.OrderID,
		Discrepancies: len(result.Discrepancies),
	}
	if err := s.publisher.PublishShipmentReceived(ctx, event); err != nil {
		s.logger.Error("Failed to publish ShipmentReceived event", zap.Error(err))
	}
}

func (s *ReceivingService) productLookup(ctx context.Context, items []models.ShipmentItem) (map[int64]int64, error) {
	batchIDs := make([]int64, 0, len(items))
	for _, item := range items {
		batchIDs = append(batchIDs, item.BatchID)
	}

	batches, err := s.store.GetBatchesByIDs(ctx, batchIDs)
	if err != nil {
		return nil, err
	}

	productByBatch := make(map[int64]int64, len(batches))
	for _, b := range batches {
		productByBatch[b.ID] = b.ProductID
	}
	return productByBatch, nil
}

// indexReceipt keys receipt lines by batch. A batch listed twice is refused
// rather than letting the later line silently replace the earlier one.
func indexReceipt(receipt []ReceiptLine) (map[int64]ReceiptLine, error) {
	lines := make(map[int64]ReceiptLine, len(receipt))
	for _, line := range receipt {
		if _, dup := lines[line.BatchID]; dup {
			return nil, fmt.Errorf("batch %d appears more than once on the receipt", line.BatchID)
		}
		lines[line.BatchID] = line
	}
	return lines, nil
}

// reconcileItem computes the good and missing quantities for one item.
// Pure function: goodQty = actual - damaged, missingQty = max(0, expected - actual).
func reconcileItem(expected, actual, damaged decimal.Decimal) (good, missing decimal.Decimal, err error) {
	if actual.IsNegative() || damaged.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("receipt quantities must be non-negative")
	}
	if damaged.GreaterThan(actual) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("damaged %s exceeds actual %s", damaged, actual)
	}

	good = actual.Sub(damaged)
	missing = expected.Sub(actual)
	if missing.IsNegative() {
		missing = decimal.Zero
	}
	return good, missing, nil
}
