package service

import (
	"context"
	"fmt"
	"time"

	"fulfillment-service/internal/ledger"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/redisclient"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockService is the path by which inventory enters or leaves a warehouse
// outside the order flow: supplier intake, waste, manual adjustment.
type StockService struct {
	store  *store.Store
	ledger *ledger.Ledger
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewStockService creates a new stock service
func NewStockService(st *store.Store, lg *ledger.Ledger, redis *redisclient.Client) *StockService {
	return &StockService{
		store:  st,
		ledger: lg,
		redis:  redis,
		logger: util.NamedLogger("stock"),
	}
}

// ReceiveStockRequest books incoming supplier stock as a new batch.
type ReceiveStockRequest struct {
	WarehouseID int64           `json:"warehouse_id" binding:"required"`
	ProductID   int64           `json:"product_id" binding:"required"`
	ExpiryDate  time.Time       `json:"expiry_date" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
}

// ReceiveStock creates a batch and imports its quantity through the ledger
// in one transaction.
func (s *StockService) ReceiveStock(ctx context.Context, req *ReceiveStockRequest) (*models.Batch, error) {
	ctx, span := util.StartSpan(ctx, "StockService.ReceiveStock")
	defer span.End()

	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("received quantity must be positive")
	}

	product, err := s.store.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetWarehouseByID(ctx, req.WarehouseID); err != nil {
		return nil, err
	}

	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	batch := &models.Batch{
		ProductID:  req.ProductID,
		ExpiryDate: req.ExpiryDate,
		Status:     models.BatchStatusAvailable,
	}
	if err := s.store.CreateBatch(ctx, tx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", store.TranslateError(err))
	}

	reference := fmt.Sprintf("intake-%s", uuid.New().String()[:8])
	if err := s.ledger.Receive(ctx, tx, req.WarehouseID, batch.ID, req.Quantity,
		models.TxTypeImport, reference, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, store.TranslateError(err)
	}

	if err := s.redis.InvalidateAvailability(ctx, req.WarehouseID, req.ProductID); err != nil {
		s.logger.Warn("Availability cache invalidation failed", zap.Error(err))
	}

	s.logger.Info("Stock received",
		zap.Int64("warehouse_id", req.WarehouseID),
		zap.Int64("batch_id", batch.ID),
		zap.String("sku", product.SKU),
		zap.String("quantity", req.Quantity.String()))
	return batch, nil
}

// CreateDraftBatchRequest registers an incoming lot before it is counted.
type CreateDraftBatchRequest struct {
	ProductID  int64     `json:"product_id" binding:"required"`
	ExpiryDate time.Time `json:"expiry_date" binding:"required"`
}

// CreateDraftBatch registers a pending batch with no stock attached. A draft
// stays deletable until it is confirmed; confirming imports the counted
// quantity and makes the batch allocatable.
func (s *StockService) CreateDraftBatch(ctx context.Context, req *CreateDraftBatchRequest) (*models.Batch, error) {
	ctx, span := util.StartSpan(ctx, "StockService.CreateDraftBatch")
	defer span.End()

	if _, err := s.store.GetProductByID(ctx, req.ProductID); err != nil {
		return nil, err
	}

	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	batch := &models.Batch{
		ProductID:  req.ProductID,
		ExpiryDate: req.ExpiryDate,
		Status:     models.BatchStatusPending,
	}
	if err := s.store.CreateBatch(ctx, tx, batch); err != nil {
		return nil, fmt.Errorf("failed to create draft batch: %w", store.TranslateError(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, store.TranslateError(err)
	}

	s.logger.Info("Draft batch created",
		zap.Int64("batch_id", batch.ID),
		zap.Int64("product_id", batch.ProductID))
	return batch, nil
}

// ConfirmBatchRequest carries the counted arrival for a draft batch.
type ConfirmBatchRequest struct {
	WarehouseID int64           `json:"warehouse_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
}

// ConfirmBatch moves a draft batch to available and imports its counted
// quantity in one transaction. Once confirmed the batch has ledger history
// and can no longer be deleted.
func (s *StockService) ConfirmBatch(ctx context.Context, batchID int64, req *ConfirmBatchRequest) (*models.Batch, error) {
	ctx, span := util.StartSpan(ctx, "StockService.ConfirmBatch")
	defer span.End()

	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("confirmed quantity must be positive")
	}
	if _, err := s.store.GetWarehouseByID(ctx, req.WarehouseID); err != nil {
		return nil, err
	}

	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	batch, err := s.store.GetBatchForUpdate(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.BatchStatusPending {
		return nil, fmt.Errorf("confirm batch %d in status %q: %w", batchID, batch.Status, models.ErrInvalidTransition)
	}

	if err := s.store.UpdateBatchStatusTx(ctx, tx, batchID, models.BatchStatusAvailable); err != nil {
		return nil, err
	}

	reference := fmt.Sprintf("intake-%s", uuid.New().String()[:8])
	if err := s.ledger.Receive(ctx, tx, req.WarehouseID, batchID, req.Quantity,
		models.TxTypeImport, reference, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, store.TranslateError(err)
	}

	if err := s.redis.InvalidateAvailability(ctx, req.WarehouseID, batch.ProductID); err != nil {
		s.logger.Warn("Availability cache invalidation failed", zap.Error(err))
	}

	batch.Status = models.BatchStatusAvailable
	s.logger.Info("Draft batch confirmed",
		zap.Int64("warehouse_id", req.WarehouseID),
		zap.Int64("batch_id", batchID),
		zap.String("quantity", req.Quantity.String()))
	return batch, nil
}

// AdjustStockRequest records waste or a manual correction against a batch.
type AdjustStockRequest struct {
	WarehouseID int64           `json:"warehouse_id" binding:"required"`
	BatchID     int64           `json:"batch_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	Type        string          `json:"type" binding:"required"`
	Reason      string          `json:"reason" binding:"required"`
}

// AdjustStock applies a waste or adjustment movement through the ledger.
func (s *StockService) AdjustStock(ctx context.Context, req *AdjustStockRequest) error {
	ctx, span := util.StartSpan(ctx, "StockService.AdjustStock")
	defer span.End()

	if req.Type != models.TxTypeWaste && req.Type != models.TxTypeAdjustment {
		return fmt.Errorf("adjustment type must be %q or %q", models.TxTypeWaste, models.TxTypeAdjustment)
	}

	batch, err := s.store.GetBatchByID(ctx, req.BatchID)
	if err != nil {
		return err
	}

	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	reference := fmt.Sprintf("adjust-%s", uuid.New().String()[:8])
	if err := s.ledger.Receive(ctx, tx, req.WarehouseID, req.BatchID, req.Quantity,
		req.Type, reference, req.Reason); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return store.TranslateError(err)
	}

	if err := s.redis.InvalidateAvailability(ctx, req.WarehouseID, batch.ProductID); err != nil {
		s.logger.Warn("Availability cache invalidation failed", zap.Error(err))
	}

	s.logger.Info("Stock adjusted",
		zap.Int64("warehouse_id", req.WarehouseID),
		zap.Int64("batch_id", req.BatchID),
		zap.String("type", req.Type),
		zap.String("reason", req.Reason))
	return nil
}

// DeleteDraftBatch removes a batch still in its draft receiving state with
// zero transaction history. Any batch the ledger has touched is permanent.
func (s *StockService) DeleteDraftBatch(ctx context.Context, batchID int64) error {
	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.store.DeleteDraftBatch(ctx, tx, batchID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.TranslateError(err)
	}

	s.logger.Info("Draft batch deleted", zap.Int64("batch_id", batchID))
	return nil
}
