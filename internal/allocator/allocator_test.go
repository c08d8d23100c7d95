package allocator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPlanConsumesEarliestExpiryFirst(t *testing.T) {
	candidates := []Candidate{
		{BatchID: 1, ExpiryDate: date("2026-02-01"), Quantity: dec("50"), ReservedQuantity: dec("0")},
		{BatchID: 2, ExpiryDate: date("2026-02-15"), Quantity: dec("100"), ReservedQuantity: dec("0")},
	}

	plan, shortfall := Plan(candidates, dec("70"))

	assert.True(t, shortfall.IsZero())
	assert.Len(t, plan, 2)
	assert.Equal(t, int64(1), plan[0].BatchID)
	assert.True(t, plan[0].Quantity.Equal(dec("50")), "earliest batch fully consumed")
	assert.Equal(t, int64(2), plan[1].BatchID)
	assert.True(t, plan[1].Quantity.Equal(dec("20")))
}

func TestPlanPartialFulfillment(t *testing.T) {
	candidates := []Candidate{
		{BatchID: 1, ExpiryDate: date("2026-02-01"), Quantity: dec("100"), ReservedQuantity: dec("0")},
		{BatchID: 2, ExpiryDate: date("2026-02-15"), Quantity: dec("50"), ReservedQuantity: dec("0")},
	}

	plan, shortfall := Plan(candidates, dec("200"))

	var total decimal.Decimal
	for _, a := range plan {
		total = total.Add(a.Quantity)
	}
	assert.True(t, total.Equal(dec("150")))
	assert.True(t, shortfall.Equal(dec("50")), "unmet remainder is shortfall, not an error")
}

func TestPlanRespectsReservations(t *testing.T) {
	candidates := []Candidate{
		{BatchID: 1, ExpiryDate: date("2026-02-01"), Quantity: dec("50"), ReservedQuantity: dec("30")},
		{BatchID: 2, ExpiryDate: date("2026-02-15"), Quantity: dec("40"), ReservedQuantity: dec("0")},
	}

	plan, shortfall := Plan(candidates, dec("30"))

	assert.Len(t, plan, 2)
	assert.True(t, plan[0].Quantity.Equal(dec("20")), "only unreserved stock is allocatable")
	assert.True(t, plan[1].Quantity.Equal(dec("10")))
	assert.True(t, shortfall.IsZero())
}

func TestPlanSkipsFullyReservedBatches(t *testing.T) {
	candidates := []Candidate{
		{BatchID: 1, ExpiryDate: date("2026-02-01"), Quantity: dec("50"), ReservedQuantity: dec("50")},
		{BatchID: 2, ExpiryDate: date("2026-02-15"), Quantity: dec("60"), ReservedQuantity: dec("0")},
	}

	plan, shortfall := Plan(candidates, dec("40"))

	assert.Len(t, plan, 1)
	assert.Equal(t, int64(2), plan[0].BatchID)
	assert.True(t, shortfall.IsZero())
}

func TestPlanExactFitStopsEarly(t *testing.T) {
	candidates := []Candidate{
		{BatchID: 1, ExpiryDate: date("2026-02-01"), Quantity: dec("50"), ReservedQuantity: dec("0")},
		{BatchID: 2, ExpiryDate: date("2026-02-15"), Quantity: dec("50"), ReservedQuantity: dec("0")},
	}

	plan, shortfall := Plan(candidates, dec("50"))

	assert.Len(t, plan, 1, "later batches untouched once the need is covered")
	assert.True(t, shortfall.IsZero())
}

func TestPlanNoCandidates(t *testing.T) {
	plan, shortfall := Plan(nil, dec("25"))

	assert.Empty(t, plan)
	assert.True(t, shortfall.Equal(dec("25")))
}

func TestPlanFractionalQuantities(t *testing.T) {
	candidates := []Candidate{
		{BatchID: 1, ExpiryDate: date("2026-02-01"), Quantity: dec("0.3"), ReservedQuantity: dec("0")},
		{BatchID: 2, ExpiryDate: date("2026-02-15"), Quantity: dec("0.4"), ReservedQuantity: dec("0")},
	}

	plan, shortfall := Plan(candidates, dec("0.5"))

	assert.True(t, plan[0].Quantity.Equal(dec("0.3")))
	assert.True(t, plan[1].Quantity.Equal(dec("0.2")), "decimal arithmetic is exact")
	assert.True(t, shortfall.IsZero())
}

func TestCandidateAvailable(t *testing.T) {
	c := Candidate{Quantity: dec("10"), ReservedQuantity: dec("3.5")}
	assert.True(t, c.Available().Equal(dec("6.5")))
}
