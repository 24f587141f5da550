package admin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigaloka/loket-go/internal/repository/memory"
)

func validInput() CreateEventInput {
	now := time.Now().UTC()
	return CreateEventInput{
		Title:    "Loket Fest",
		StartsAt: now.Add(24 * time.Hour),
		EndsAt:   now.Add(30 * time.Hour),
		Location: "Jakarta",
		Venue:    "GBK",
		Tiers: []TierInput{
			{Name: "Regular", UnitPrice: 100_000, Seats: 100},
			{Name: "VIP", UnitPrice: 250_000, Seats: 20},
		},
	}
}

func TestCreateEventWithTiers(t *testing.T) {
	store := memory.NewStore()
	svc := New(store, nil)

	event, tiers, err := svc.CreateEventWithTiers(context.Background(), validInput())
	require.NoError(t, err)

	// capacity is derived from the tiers
	assert.Equal(t, 120, event.Capacity)
	assert.Equal(t, 120, event.AvailableSeats)
	require.Len(t, tiers, 2)
	assert.Equal(t, event.ID, tiers[0].EventID)
	assert.Equal(t, 100, tiers[0].AvailableSeats)

	stored, err := store.Events().Get(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Loket Fest", stored.Title)

	storedTiers, err := store.Events().Tiers(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Len(t, storedTiers, 2)
}

func TestCreateEventWithTiers_Validation(t *testing.T) {
	svc := New(memory.NewStore(), nil)

	in := validInput()
	in.Tiers = nil
	_, _, err := svc.CreateEventWithTiers(context.Background(), in)
	assert.ErrorIs(t, err, ErrNoTiers)

	in = validInput()
	in.EndsAt = in.StartsAt
	_, _, err = svc.CreateEventWithTiers(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	in = validInput()
	in.Tiers[0].Seats = 0
	_, _, err = svc.CreateEventWithTiers(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidTier)

	in = validInput()
	in.Tiers[1].UnitPrice = -1
	_, _, err = svc.CreateEventWithTiers(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidTier)

	in = validInput()
	in.Tiers[0].Name = ""
	_, _, err = svc.CreateEventWithTiers(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidTier)
}
