package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestIndexReceiptKeysLinesByBatch(t *testing.T) {
	lines, err := indexReceipt([]ReceiptLine{
		{BatchID: 1, ActualQty: dec("10")},
		{BatchID: 2, ActualQty: dec("5"), DamagedQty: dec("1")},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, lines[1].ActualQty.Equal(dec("10")))
	assert.True(t, lines[2].DamagedQty.Equal(dec("1")))
}

func TestIndexReceiptRejectsDuplicateBatches(t *testing.T) {
	// A batch listed twice must be refused, not silently collapsed into
	// whichever line comes last.
	_, err := indexReceipt([]ReceiptLine{
		{BatchID: 7, ActualQty: dec("10")},
		{BatchID: 7, ActualQty: dec("0")},
	})
	assert.Error(t, err)
}

func TestReconcileItemRoundTrip(t *testing.T) {
	// Shipped 100, received 90 of which 10 damaged.
	good, missing, err := reconcileItem(dec("100"), dec("90"), dec("10"))
	require.NoError(t, err)
	assert.True(t, good.Equal(dec("80")))
	assert.True(t, missing.Equal(dec("10")))
}

func TestReconcileItemFullReceipt(t *testing.T) {
	good, missing, err := reconcileItem(dec("100"), dec("100"), dec("0"))
	require.NoError(t, err)
	assert.True(t, good.Equal(dec("100")))
	assert.True(t, missing.IsZero())
}

func TestReconcileItemNothingArrived(t *testing.T) {
	good, missing, err := reconcileItem(dec("40"), dec("0"), dec("0"))
	require.NoError(t, err)
	assert.True(t, good.IsZero())
	assert.True(t, missing.Equal(dec("40")))
}

func TestReconcileItemAllDamaged(t *testing.T) {
	good, missing, err := reconcileItem(dec("25"), dec("25"), dec("25"))
	require.NoError(t, err)
	assert.True(t, good.IsZero())
	assert.True(t, missing.IsZero())
}

func TestReconcileItemOverDelivery(t *testing.T) {
	// More arrived than expected: all of it is good, nothing missing.
	good, missing, err := reconcileItem(dec("50"), dec("55"), dec("0"))
	require.NoError(t, err)
	assert.True(t, good.Equal(dec("55")))
	assert.True(t, missing.IsZero())
}

func TestReconcileItemRejectsDamagedBeyondActual(t *testing.T) {
	_, _, err := reconcileItem(dec("100"), dec("10"), dec("11"))
	assert.Error(t, err)
}

func TestReconcileItemRejectsNegatives(t *testing.T) {
	_, _, err := reconcileItem(dec("100"), dec("-1"), dec("0"))
	assert.Error(t, err)

	_, _, err = reconcileItem(dec("100"), dec("5"), dec("-2"))
	assert.Error(t, err)
}

func TestReconcileItemFractional(t *testing.T) {
	good, missing, err := reconcileItem(dec("10.5"), dec("10.1"), dec("0.1"))
	require.NoError(t, err)
	assert.True(t, good.Equal(dec("10.0")))
	assert.True(t, missing.Equal(dec("0.4")))
}
