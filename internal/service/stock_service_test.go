package service

import (
	"context"
	"testing"
	"time"

	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftBatchLifecycle(t *testing.T) {
	t.Skip("Integration test - requires database")

	ts := newTestStack(t)
	ctx := context.Background()

	productID := seedProduct(t, ts.store)
	centralID := seedCentralWarehouse(t, ts.store)
	expiry := time.Now().AddDate(0, 1, 0)

	// A draft carries no stock and stays deletable.
	draft, err := ts.stock.CreateDraftBatch(ctx, &CreateDraftBatchRequest{
		ProductID:  productID,
		ExpiryDate: expiry,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPending, draft.Status)
	require.NoError(t, ts.stock.DeleteDraftBatch(ctx, draft.ID))

	// Confirming imports the counted quantity and makes the batch permanent.
	draft2, err := ts.stock.CreateDraftBatch(ctx, &CreateDraftBatchRequest{
		ProductID:  productID,
		ExpiryDate: expiry,
	})
	require.NoError(t, err)

	confirmed, err := ts.stock.ConfirmBatch(ctx, draft2.ID, &ConfirmBatchRequest{
		WarehouseID: centralID,
		Quantity:    dec("25"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusAvailable, confirmed.Status)

	rec, err := ts.store.GetInventoryRecord(ctx, centralID, draft2.ID)
	require.NoError(t, err)
	assert.True(t, rec.Quantity.Equal(dec("25")))

	// Neither deletion nor a second confirmation is possible afterwards.
	err = ts.stock.DeleteDraftBatch(ctx, draft2.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = ts.stock.ConfirmBatch(ctx, draft2.ID, &ConfirmBatchRequest{
		WarehouseID: centralID,
		Quantity:    dec("1"),
	})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestReceiveStockBooksAvailableBatch(t *testing.T) {
	t.Skip("Integration test - requires database")

	ts := newTestStack(t)
	ctx := context.Background()

	productID := seedProduct(t, ts.store)
	centralID := seedCentralWarehouse(t, ts.store)

	// One-shot intake skips the draft stage: counted goods are standing at
	// the dock, so the batch is available immediately.
	batch, err := ts.stock.ReceiveStock(ctx, &ReceiveStockRequest{
		WarehouseID: centralID,
		ProductID:   productID,
		ExpiryDate:  time.Now().AddDate(0, 1, 0),
		Quantity:    dec("40"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusAvailable, batch.Status)

	rec, err := ts.store.GetInventoryRecord(ctx, centralID, batch.ID)
	require.NoError(t, err)
	assert.True(t, rec.Quantity.Equal(dec("40")))
	assert.True(t, rec.ReservedQuantity.IsZero())
}
