package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransactionStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from TransactionStatus
		to   TransactionStatus
		ok   bool
	}{
		{StatusAwaitingPayment, StatusAwaitingConfirmation, true},
		{StatusAwaitingPayment, StatusExpired, true},
		{StatusAwaitingPayment, StatusCanceled, true},
		{StatusAwaitingPayment, StatusDone, false},
		{StatusAwaitingPayment, StatusRejected, false},

		{StatusAwaitingConfirmation, StatusDone, true},
		{StatusAwaitingConfirmation, StatusRejected, true},
		{StatusAwaitingConfirmation, StatusExpired, true},
		{StatusAwaitingConfirmation, StatusCanceled, true},
		{StatusAwaitingConfirmation, StatusAwaitingPayment, false},

		{StatusRejected, StatusAwaitingConfirmation, true},
		{StatusRejected, StatusCanceled, true},
		{StatusRejected, StatusDone, false},
		{StatusRejected, StatusExpired, false},

		{StatusDone, StatusCanceled, true},
		{StatusDone, StatusAwaitingPayment, false},
		{StatusDone, StatusExpired, false},

		{StatusExpired, StatusAwaitingPayment, false},
		{StatusExpired, StatusCanceled, false},
		{StatusCanceled, StatusAwaitingPayment, false},
		{StatusCanceled, StatusExpired, false},
	}

	for _, tc := range cases {
		got := tc.from.CanTransitionTo(tc.to)
		assert.Equalf(t, tc.ok, got, "%s -> %s", tc.from, tc.to)
	}
}

func TestTransactionStatus_HoldsSeats(t *testing.T) {
	assert.True(t, StatusAwaitingPayment.HoldsSeats())
	assert.True(t, StatusAwaitingConfirmation.HoldsSeats())
	assert.True(t, StatusDone.HoldsSeats())
	assert.False(t, StatusRejected.HoldsSeats())
	assert.False(t, StatusExpired.HoldsSeats())
	assert.False(t, StatusCanceled.HoldsSeats())
}

func TestTransactionStatus_IsValid(t *testing.T) {
	assert.True(t, StatusDone.IsValid())
	assert.False(t, TransactionStatus("paid").IsValid())
	assert.False(t, TransactionStatus("").IsValid())
}

func TestTransaction_Deadline(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	txn := Transaction{CreatedAt: created}

	assert.Equal(t, created.Add(2*time.Hour), txn.Deadline(2*time.Hour))
}

func TestTicketTier_SoldOut(t *testing.T) {
	assert.True(t, TicketTier{AvailableSeats: 0}.SoldOut())
	assert.False(t, TicketTier{AvailableSeats: 1}.SoldOut())
}

func TestPromotion_ActiveAt(t *testing.T) {
	p := Promotion{
		Status:    PromotionActive,
		StartDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC),
	}

	assert.False(t, p.ActiveAt(time.Date(2025, 3, 9, 23, 59, 59, 0, time.UTC)))
	assert.True(t, p.ActiveAt(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.ActiveAt(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)))
	// the window runs through the end of the last day
	assert.True(t, p.ActiveAt(time.Date(2025, 3, 20, 23, 59, 59, 0, time.UTC)))
	assert.False(t, p.ActiveAt(time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)))

	p.Status = PromotionInactive
	assert.False(t, p.ActiveAt(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)))
}

func TestPromotion_Discount(t *testing.T) {
	percent := Promotion{DiscountType: DiscountPercent, DiscountValue: 10}
	assert.Equal(t, int64(50_000), percent.Discount(500_000))
	assert.Equal(t, int64(0), percent.Discount(0))

	nominal := Promotion{DiscountType: DiscountNominal, DiscountValue: 75_000}
	assert.Equal(t, int64(75_000), nominal.Discount(500_000))
	// never exceeds the subtotal
	assert.Equal(t, int64(50_000), nominal.Discount(50_000))
}
