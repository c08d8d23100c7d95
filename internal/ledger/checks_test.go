package ledger

import (
	"testing"

	"fulfillment-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCheckReserve(t *testing.T) {
	// 50 on hand, 20 reserved: up to 30 more may be reserved.
	assert.NoError(t, checkReserve(dec("50"), dec("20"), dec("30")))

	err := checkReserve(dec("50"), dec("20"), dec("30.0001"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInsufficientCapacity)

	err = checkReserve(dec("50"), dec("0"), dec("0"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConsistencyViolation)

	err = checkReserve(dec("50"), dec("0"), dec("-1"))
	assert.ErrorIs(t, err, models.ErrConsistencyViolation)
}

func TestCheckRelease(t *testing.T) {
	assert.NoError(t, checkRelease(dec("20"), dec("20")))
	assert.NoError(t, checkRelease(dec("20"), dec("5")))

	err := checkRelease(dec("20"), dec("20.5"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConsistencyViolation)
}

func TestCheckDispatch(t *testing.T) {
	assert.NoError(t, checkDispatch(dec("50"), dec("30"), dec("30")))

	// Dispatch beyond the reservation means Reserve was skipped.
	err := checkDispatch(dec("50"), dec("10"), dec("20"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConsistencyViolation)

	err = checkDispatch(dec("5"), dec("10"), dec("8"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConsistencyViolation)
}

func TestCheckCommittedState(t *testing.T) {
	assert.NoError(t, checkCommittedState(dec("10"), dec("10")))
	assert.NoError(t, checkCommittedState(dec("0"), dec("0")))

	err := checkCommittedState(dec("-0.0001"), dec("0"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConsistencyViolation)

	err = checkCommittedState(dec("5"), dec("5.1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConsistencyViolation)
}

func TestMovementChange(t *testing.T) {
	change, err := movementChange(models.TxTypeImport, dec("12.5"))
	require.NoError(t, err)
	assert.True(t, change.Equal(dec("12.5")))

	change, err = movementChange(models.TxTypeWaste, dec("3"))
	require.NoError(t, err)
	assert.True(t, change.Equal(dec("-3")))

	change, err = movementChange(models.TxTypeAdjustment, dec("1.25"))
	require.NoError(t, err)
	assert.True(t, change.Equal(dec("-1.25")))

	_, err = movementChange(models.TxTypeExport, dec("3"))
	assert.ErrorIs(t, err, models.ErrConsistencyViolation, "export only happens through Dispatch")

	_, err = movementChange(models.TxTypeImport, dec("0"))
	assert.ErrorIs(t, err, models.ErrConsistencyViolation)
}
