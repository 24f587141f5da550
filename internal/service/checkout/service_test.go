package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository/memory"
)

func seedEvent(t *testing.T, store *memory.Store, tierSeats ...int) (uuid.UUID, []domain.TicketTier) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()

	capacity := 0
	for _, s := range tierSeats {
		capacity += s
	}

	event := domain.Event{
		ID:             uuid.New(),
		Title:          "Loket Fest",
		StartsAt:       now.Add(24 * time.Hour),
		EndsAt:         now.Add(30 * time.Hour),
		Capacity:       capacity,
		AvailableSeats: capacity,
		CreatedAt:      now,
	}
	require.NoError(t, store.Events().Create(ctx, &event))

	tiers := make([]domain.TicketTier, 0, len(tierSeats))
	for i, s := range tierSeats {
		tiers = append(tiers, domain.TicketTier{
			ID:             uuid.New(),
			EventID:        event.ID,
			Name:           []string{"Regular", "VIP", "VVIP"}[i%3],
			UnitPrice:      int64(100_000 * (i + 1)),
			TotalSeats:     s,
			AvailableSeats: s,
			CreatedAt:      now,
		})
	}
	require.NoError(t, store.Events().CreateTiers(ctx, tiers))

	return event.ID, tiers
}

func seedPromotion(t *testing.T, store *memory.Store, eventID uuid.UUID, code string, dt domain.DiscountType, value int64) {
	t.Helper()

	now := time.Now().UTC()
	require.NoError(t, store.Promotions().Create(context.Background(), &domain.Promotion{
		ID:            uuid.New(),
		EventID:       eventID,
		Code:          code,
		DiscountType:  dt,
		DiscountValue: value,
		StartDate:     now.Add(-24 * time.Hour),
		EndDate:       now.Add(24 * time.Hour),
		Status:        domain.PromotionActive,
		CreatedAt:     now,
	}))
}

func tierSeats(t *testing.T, store *memory.Store, tierID uuid.UUID) int {
	t.Helper()

	tiers, err := store.Events().TiersByIDs(context.Background(), []uuid.UUID{tierID})
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	return tiers[0].AvailableSeats
}

func TestCheckout_ReservesSeats(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, nil)

	eventID, tiers := seedEvent(t, store, 10, 5)
	userID := uuid.New()

	got, err := svc.Checkout(context.Background(), userID, eventID, []ItemInput{
		{TierID: tiers[0].ID, Quantity: 2},
		{TierID: tiers[1].ID, Quantity: 1},
	}, "", "")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAwaitingPayment, got.Transaction.Status)
	assert.Equal(t, userID, got.Transaction.UserID)
	assert.Equal(t, int64(2*100_000+1*200_000), got.Transaction.PaidAmount)
	assert.Len(t, got.Items, 2)

	assert.Equal(t, 8, tierSeats(t, store, tiers[0].ID))
	assert.Equal(t, 4, tierSeats(t, store, tiers[1].ID))

	e, err := store.Events().Get(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 12, e.AvailableSeats)
}

func TestCheckout_AggregatesDuplicateTiers(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, nil)

	eventID, tiers := seedEvent(t, store, 10)

	got, err := svc.Checkout(context.Background(), uuid.New(), eventID, []ItemInput{
		{TierID: tiers[0].ID, Quantity: 2},
		{TierID: tiers[0].ID, Quantity: 3},
	}, "", "")
	require.NoError(t, err)

	require.Len(t, got.Items, 1)
	assert.Equal(t, 5, got.Items[0].Quantity)
	assert.Equal(t, 5, tierSeats(t, store, tiers[0].ID))
}

func TestCheckout_ReportsAllShortfalls(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, nil)

	eventID, tiers := seedEvent(t, store, 3, 1)

	_, err := svc.Checkout(context.Background(), uuid.New(), eventID, []ItemInput{
		{TierID: tiers[0].ID, Quantity: 5},
		{TierID: tiers[1].ID, Quantity: 2},
	}, "", "")

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Shortfalls, 2)

	assert.Equal(t, Shortfall{TierID: tiers[0].ID, Requested: 5, Available: 3}, insufficient.Shortfalls[0])
	assert.Equal(t, Shortfall{TierID: tiers[1].ID, Requested: 2, Available: 1}, insufficient.Shortfalls[1])

	// nothing was written
	assert.Equal(t, 3, tierSeats(t, store, tiers[0].ID))
	assert.Equal(t, 1, tierSeats(t, store, tiers[1].ID))
}

func TestCheckout_RejectsUnknownTier(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, nil)

	eventID, _ := seedEvent(t, store, 10)
	_, otherTiers := seedEvent(t, store, 10)

	stranger := uuid.New()
	_, err := svc.Checkout(context.Background(), uuid.New(), eventID, []ItemInput{
		{TierID: stranger, Quantity: 1},
		{TierID: otherTiers[0].ID, Quantity: 1},
	}, "", "")

	var unknown *UnknownTiersError
	require.ErrorAs(t, err, &unknown)
	assert.ElementsMatch(t, []uuid.UUID{stranger, otherTiers[0].ID}, unknown.TierIDs)
}

func TestCheckout_EventNotFound(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, nil)

	_, err := svc.Checkout(context.Background(), uuid.New(), uuid.New(), []ItemInput{
		{TierID: uuid.New(), Quantity: 1},
	}, "", "")

	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestCheckout_ValidatesItems(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, nil)

	_, err := svc.Checkout(context.Background(), uuid.New(), uuid.New(), nil, "", "")
	assert.ErrorIs(t, err, ErrNoItems)

	tierID := uuid.New()
	_, err = svc.Checkout(context.Background(), uuid.New(), uuid.New(), []ItemInput{
		{TierID: tierID, Quantity: 0},
	}, "", "")

	var badQty *InvalidQuantityError
	require.ErrorAs(t, err, &badQty)
	assert.Equal(t, tierID, badQty.TierID)
}

func TestCheckout_PercentVoucher(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, nil)

	eventID, tiers := seedEvent(t, store, 10)
	seedPromotion(t, store, eventID, "LAUNCH10", domain.DiscountPercent, 10)

	// code is matched case-insensitively and trimmed
	got, err := svc.Checkout(context.Background(), uuid.New(), eventID, []ItemInput{
		{TierID: tiers[0].ID, Quantity: 2},
	}, "  launch10 ", "")
	require.NoError(t, err)

	assert.Equal(t, int64(180_000), got.Transaction.PaidAmount)
	assert.Equal(t, "LAUNCH10", got.Transaction.VoucherCode)
}

func TestCheckout_NominalVoucherClampedToSubtotal(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, nil)

	eventID, tiers := seedEvent(t, store, 10)
	seedPromotion(t, store, eventID, "BIGCUT", domain.DiscountNominal, 1_000_000)

	got, err := svc.Checkout(context.Background(), uuid.New(), eventID, []ItemInput{
		{TierID: tiers[0].ID, Quantity: 1},
	}, "BIGCUT", "")
	require.NoError(t, err)

	assert.Equal(t, int64(0), got.Transaction.PaidAmount)
}

func TestCheckout_VoucherNotFound(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, nil)

	eventID, tiers := seedEvent(t, store, 10)

	_, err := svc.Checkout(context.Background(), uuid.New(), eventID, []ItemInput{
		{TierID: tiers[0].ID, Quantity: 1},
	}, "NOPE", "")

	assert.ErrorIs(t, err, ErrVoucherNotFound)
	assert.Equal(t, 10, tierSeats(t, store, tiers[0].ID))
}

func TestCheckout_VoucherOutsideWindow(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, nil)

	eventID, tiers := seedEvent(t, store, 10)

	now := time.Now().UTC()
	require.NoError(t, store.Promotions().Create(context.Background(), &domain.Promotion{
		ID:            uuid.New(),
		EventID:       eventID,
		Code:          "OLD",
		DiscountType:  domain.DiscountPercent,
		DiscountValue: 10,
		StartDate:     now.Add(-72 * time.Hour),
		EndDate:       now.Add(-48 * time.Hour),
		Status:        domain.PromotionActive,
	}))

	_, err := svc.Checkout(context.Background(), uuid.New(), eventID, []ItemInput{
		{TierID: tiers[0].ID, Quantity: 1},
	}, "OLD", "")

	assert.ErrorIs(t, err, ErrVoucherExpired)
}

func TestCheckout_ConcurrentNeverOversells(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, nil)

	const seats = 10
	eventID, tiers := seedEvent(t, store, seats)

	const workers = 25

	var wg sync.WaitGroup
	succeeded := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkout(context.Background(), uuid.New(), eventID, []ItemInput{
				{TierID: tiers[0].ID, Quantity: 1},
			}, "", "")
			if err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	won := 0
	for range succeeded {
		won++
	}

	assert.Equal(t, seats, won)
	assert.Equal(t, 0, tierSeats(t, store, tiers[0].ID))

	e, err := store.Events().Get(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 0, e.AvailableSeats)
}

func TestCheckout_PartialFailureRollsBackEverything(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, nil)

	// second tier cannot satisfy the request, so the first tier's
	// reservation must be undone as well
	eventID, tiers := seedEvent(t, store, 10, 1)

	_, err := svc.Checkout(context.Background(), uuid.New(), eventID, []ItemInput{
		{TierID: tiers[0].ID, Quantity: 2},
		{TierID: tiers[1].ID, Quantity: 3},
	}, "", "")

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	assert.Equal(t, 10, tierSeats(t, store, tiers[0].ID))
	assert.Equal(t, 1, tierSeats(t, store, tiers[1].ID))

	e, err := store.Events().Get(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 11, e.AvailableSeats)
}
