package sweeper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedHolding(
	t *testing.T,
	store *memory.Store,
	status domain.TransactionStatus,
	age time.Duration,
	qty int,
) (eventID, tierID, txID uuid.UUID) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()
	eventID, tierID, txID = uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, store.Events().Create(ctx, &domain.Event{
		ID:             eventID,
		Title:          "Loket Fest",
		Capacity:       10,
		AvailableSeats: 10 - qty,
		CreatedAt:      now,
	}))
	require.NoError(t, store.Events().CreateTiers(ctx, []domain.TicketTier{{
		ID:             tierID,
		EventID:        eventID,
		Name:           "Regular",
		TotalSeats:     10,
		AvailableSeats: 10 - qty,
		CreatedAt:      now,
	}}))
	require.NoError(t, store.Transactions().Create(ctx, &domain.Transaction{
		ID:        txID,
		EventID:   eventID,
		UserID:    uuid.New(),
		Status:    status,
		CreatedAt: now.Add(-age),
		UpdatedAt: now.Add(-age),
	}))
	require.NoError(t, store.Transactions().InsertItems(ctx, []domain.TransactionItem{{
		ID:            uuid.New(),
		TransactionID: txID,
		TierID:        tierID,
		Quantity:      qty,
	}}))

	return eventID, tierID, txID
}

func seats(t *testing.T, store *memory.Store, tierID uuid.UUID) int {
	t.Helper()

	tiers, err := store.Events().TiersByIDs(context.Background(), []uuid.UUID{tierID})
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	return tiers[0].AvailableSeats
}

func status(t *testing.T, store *memory.Store, txID uuid.UUID) domain.TransactionStatus {
	t.Helper()

	txn, err := store.Transactions().Get(context.Background(), txID)
	require.NoError(t, err)
	return txn.Status
}

func TestSweep_ExpiresOverdueAndReleasesSeats(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, testLogger(), Config{PaymentDeadline: 2 * time.Hour})

	_, tierID, txID := seedHolding(t, store, domain.StatusAwaitingPayment, 3*time.Hour, 2)

	res, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 2, res.ReleasedSeats)
	assert.Equal(t, domain.StatusExpired, status(t, store, txID))
	assert.Equal(t, 10, seats(t, store, tierID))
}

func TestSweep_SkipsRecentTransactions(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, testLogger(), Config{PaymentDeadline: 2 * time.Hour})

	_, tierID, txID := seedHolding(t, store, domain.StatusAwaitingPayment, 30*time.Minute, 2)

	res, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Expired)
	assert.Equal(t, domain.StatusAwaitingPayment, status(t, store, txID))
	assert.Equal(t, 8, seats(t, store, tierID))
}

func TestSweep_ExpiresAwaitingConfirmationToo(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, testLogger(), Config{PaymentDeadline: 2 * time.Hour})

	_, tierID, txID := seedHolding(t, store, domain.StatusAwaitingConfirmation, 3*time.Hour, 3)

	res, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 3, res.ReleasedSeats)
	assert.Equal(t, domain.StatusExpired, status(t, store, txID))
	assert.Equal(t, 10, seats(t, store, tierID))
}

func TestSweep_NeverTouchesDone(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, testLogger(), Config{PaymentDeadline: 2 * time.Hour})

	_, tierID, txID := seedHolding(t, store, domain.StatusDone, 48*time.Hour, 2)

	res, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Expired)
	assert.Equal(t, domain.StatusDone, status(t, store, txID))
	assert.Equal(t, 8, seats(t, store, tierID))
}

func TestSweep_RerunIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil, nil, testLogger(), Config{PaymentDeadline: 2 * time.Hour})

	_, tierID, _ := seedHolding(t, store, domain.StatusAwaitingPayment, 3*time.Hour, 2)

	res, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Expired)

	res, err = svc.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Expired)
	assert.Equal(t, 0, res.ReleasedSeats)
	// seats must not be returned twice
	assert.Equal(t, 10, seats(t, store, tierID))
}

func TestSweep_DefaultsApplied(t *testing.T) {
	svc := New(memory.NewStore(), nil, nil, testLogger(), Config{})

	assert.Equal(t, 2*time.Hour, svc.cfg.PaymentDeadline)
	assert.Equal(t, 100, svc.cfg.BatchSize)
}
