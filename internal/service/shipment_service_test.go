package service

import (
	"context"
	"testing"
	"time"

	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkDeliveredFollowsDispatch(t *testing.T) {
	t.Skip("Integration test - requires database")

	ts := newTestStack(t)
	ctx := context.Background()

	productID := seedProduct(t, ts.store)
	centralID := seedCentralWarehouse(t, ts.store)
	seedAvailableBatch(t, ts.store, productID, centralID, "50")

	storeID := time.Now().UnixNano()
	seedStoreWarehouse(t, ts.store, storeID)
	orderID := seedPendingOrder(t, ts.store, storeID, productID, "20")

	result, err := ts.fulfillment.Approve(ctx, orderID)
	require.NoError(t, err)

	// Delivery confirmation only applies to shipments on the road.
	err = ts.shipments.MarkDelivered(ctx, result.ShipmentID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	require.NoError(t, ts.shipments.FinalizeDispatch(ctx, result.ShipmentID))
	require.NoError(t, ts.shipments.MarkDelivered(ctx, result.ShipmentID))

	shipment, items, err := ts.shipments.GetShipment(ctx, result.ShipmentID)
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentStatusDelivered, shipment.Status)
	require.Len(t, items, 1)

	// Delivered shipments are still receivable.
	receiveResult, err := ts.receiving.ReceiveShipment(ctx, result.ShipmentID, []ReceiptLine{
		{BatchID: items[0].BatchID, ActualQty: dec("20")},
	})
	require.NoError(t, err)
	assert.Empty(t, receiveResult.Discrepancies)

	shipment, _, err = ts.shipments.GetShipment(ctx, result.ShipmentID)
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentStatusCompleted, shipment.Status)
}
