package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigaloka/loket-go/internal/auth"
	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository/memory"
)

type fixture struct {
	store   *memory.Store
	svc     *Service
	userID  uuid.UUID
	eventID uuid.UUID
	tierID  uuid.UUID
	txID    uuid.UUID
}

// newFixture seeds one event with a 10-seat tier and one transaction
// holding 2 of those seats in the given status.
func newFixture(t *testing.T, status domain.TransactionStatus) *fixture {
	t.Helper()

	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now().UTC()

	f := &fixture{
		store:   store,
		svc:     New(store, nil, nil, Config{ProofPublicBaseURL: "https://cdn.example.com/proofs/"}),
		userID:  uuid.New(),
		eventID: uuid.New(),
		tierID:  uuid.New(),
		txID:    uuid.New(),
	}

	held := 0
	if status.HoldsSeats() {
		held = 2
	}

	require.NoError(t, store.Events().Create(ctx, &domain.Event{
		ID:             f.eventID,
		Title:          "Loket Fest",
		Capacity:       10,
		AvailableSeats: 10 - held,
		CreatedAt:      now,
	}))
	require.NoError(t, store.Events().CreateTiers(ctx, []domain.TicketTier{{
		ID:             f.tierID,
		EventID:        f.eventID,
		Name:           "Regular",
		UnitPrice:      100_000,
		TotalSeats:     10,
		AvailableSeats: 10 - held,
		CreatedAt:      now,
	}}))

	require.NoError(t, store.Transactions().Create(ctx, &domain.Transaction{
		ID:         f.txID,
		EventID:    f.eventID,
		UserID:     f.userID,
		PaidAmount: 200_000,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
	require.NoError(t, store.Transactions().InsertItems(ctx, []domain.TransactionItem{{
		ID:            uuid.New(),
		TransactionID: f.txID,
		TierID:        f.tierID,
		Quantity:      2,
	}}))

	return f
}

func (f *fixture) tierSeats(t *testing.T) int {
	t.Helper()

	tiers, err := f.store.Events().TiersByIDs(context.Background(), []uuid.UUID{f.tierID})
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	return tiers[0].AvailableSeats
}

const proofURL = "https://cdn.example.com/proofs/receipt.png"

func TestSubmitProof_MovesToAwaitingConfirmation(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingPayment)

	got, err := f.svc.SubmitProof(context.Background(), f.userID, f.txID, proofURL)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAwaitingConfirmation, got.Status)
	assert.Equal(t, proofURL, got.ProofURL)
	// seats stay held across the transition
	assert.Equal(t, 8, f.tierSeats(t))
}

func TestSubmitProof_ReplacesProofInPlace(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingConfirmation)

	second := "https://cdn.example.com/proofs/corrected.png"
	got, err := f.svc.SubmitProof(context.Background(), f.userID, f.txID, second)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAwaitingConfirmation, got.Status)
	assert.Equal(t, second, got.ProofURL)
}

func TestSubmitProof_ResubmissionReservesSeatsAgain(t *testing.T) {
	f := newFixture(t, domain.StatusRejected)
	require.Equal(t, 10, f.tierSeats(t))

	got, err := f.svc.SubmitProof(context.Background(), f.userID, f.txID, proofURL)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAwaitingConfirmation, got.Status)
	assert.Equal(t, 8, f.tierSeats(t))
}

func TestSubmitProof_ResubmissionFailsWhenSoldOut(t *testing.T) {
	f := newFixture(t, domain.StatusRejected)

	// someone else takes everything
	require.NoError(t, f.store.Ledger().Reserve(context.Background(), f.eventID, f.tierID, 10))

	_, err := f.svc.SubmitProof(context.Background(), f.userID, f.txID, proofURL)
	assert.ErrorIs(t, err, ErrSeatsUnavailable)

	// the failed resubmission must not flip the status
	txn, err2 := f.store.Transactions().Get(context.Background(), f.txID)
	require.NoError(t, err2)
	assert.Equal(t, domain.StatusRejected, txn.Status)
}

func TestSubmitProof_WrongOwner(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingPayment)

	_, err := f.svc.SubmitProof(context.Background(), uuid.New(), f.txID, proofURL)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSubmitProof_BadURL(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingPayment)

	_, err := f.svc.SubmitProof(context.Background(), f.userID, f.txID, "https://evil.example.com/x.png")
	assert.ErrorIs(t, err, ErrInvalidProofURL)
}

func TestSubmitProof_TerminalState(t *testing.T) {
	f := newFixture(t, domain.StatusExpired)

	_, err := f.svc.SubmitProof(context.Background(), f.userID, f.txID, proofURL)

	var bad *InvalidStateTransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, domain.StatusExpired, bad.Current)
}

func TestSetStatus_DoneKeepsSeats(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingConfirmation)

	got, err := f.svc.SetStatus(context.Background(), auth.RoleAdmin, f.txID, domain.StatusDone)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusDone, got.Status)
	assert.Equal(t, 8, f.tierSeats(t))
}

func TestSetStatus_RejectedReleasesSeats(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingConfirmation)

	got, err := f.svc.SetStatus(context.Background(), auth.RoleAdmin, f.txID, domain.StatusRejected)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRejected, got.Status)
	assert.Equal(t, 10, f.tierSeats(t))
}

func TestSetStatus_ReleaseHappensOnce(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingConfirmation)

	_, err := f.svc.SetStatus(context.Background(), auth.RoleAdmin, f.txID, domain.StatusRejected)
	require.NoError(t, err)
	require.Equal(t, 10, f.tierSeats(t))

	// a second rejection loses the check-and-set and must not release again
	_, err = f.svc.SetStatus(context.Background(), auth.RoleAdmin, f.txID, domain.StatusRejected)

	var bad *InvalidStateTransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, 10, f.tierSeats(t))
}

func TestSetStatus_RequiresAdmin(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingConfirmation)

	_, err := f.svc.SetStatus(context.Background(), "user", f.txID, domain.StatusDone)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSetStatus_UnknownStatus(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingConfirmation)

	_, err := f.svc.SetStatus(context.Background(), auth.RoleAdmin, f.txID, domain.TransactionStatus("paid"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSetStatus_UndefinedTransition(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingPayment)

	_, err := f.svc.SetStatus(context.Background(), auth.RoleAdmin, f.txID, domain.StatusDone)

	var bad *InvalidStateTransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, domain.StatusAwaitingPayment, bad.Current)
	assert.Equal(t, domain.StatusDone, bad.Target)
}

func TestCancel_OwnerWhileAwaitingPayment(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingPayment)

	got, err := f.svc.Cancel(context.Background(), f.userID, "user", f.txID)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCanceled, got.Status)
	assert.Equal(t, 10, f.tierSeats(t))
}

func TestCancel_OwnerCannotCancelDone(t *testing.T) {
	f := newFixture(t, domain.StatusDone)

	_, err := f.svc.Cancel(context.Background(), f.userID, "user", f.txID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancel_AdminCancelsDoneAndReleases(t *testing.T) {
	f := newFixture(t, domain.StatusDone)

	got, err := f.svc.Cancel(context.Background(), uuid.New(), auth.RoleAdmin, f.txID)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCanceled, got.Status)
	assert.Equal(t, 10, f.tierSeats(t))
}

func TestCancel_AdminCancelsRejectedWithoutRelease(t *testing.T) {
	f := newFixture(t, domain.StatusRejected)
	require.Equal(t, 10, f.tierSeats(t))

	got, err := f.svc.Cancel(context.Background(), uuid.New(), auth.RoleAdmin, f.txID)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCanceled, got.Status)
	// rejected transactions hold no seats, so nothing to return
	assert.Equal(t, 10, f.tierSeats(t))
}

func TestCancel_Stranger(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingPayment)

	_, err := f.svc.Cancel(context.Background(), uuid.New(), "user", f.txID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestGet_OwnerAndAdmin(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingPayment)

	got, err := f.svc.Get(context.Background(), f.userID, "user", f.txID)
	require.NoError(t, err)
	assert.Equal(t, f.txID, got.Transaction.ID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)

	_, err = f.svc.Get(context.Background(), uuid.New(), auth.RoleAdmin, f.txID)
	assert.NoError(t, err)

	_, err = f.svc.Get(context.Background(), uuid.New(), "user", f.txID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t, domain.StatusAwaitingPayment)

	_, err := f.svc.Get(context.Background(), f.userID, "user", uuid.New())
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
