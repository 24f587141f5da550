package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository"
	redisrepo "github.com/gigaloka/loket-go/internal/repository/redis"
)

const (
	summaryTTL      = 5 * time.Minute
	availabilityTTL = 5 * time.Second
	listTTL         = time.Minute
)

// Service serves the public read side: event summaries, listings, and live
// seat availability. Reads go through the cache; write paths invalidate the
// touched event's keys after commit.
type Service struct {
	store repository.Store
	cache *redisrepo.Cache
}

func New(store repository.Store, cache *redisrepo.Cache) *Service {
	return &Service{store: store, cache: cache}
}

// EventSummary is an event with its ticket tiers.
type EventSummary struct {
	Event domain.Event        `json:"event"`
	Tiers []domain.TicketTier `json:"tiers"`
}

func (s *Service) GetEvent(ctx context.Context, eventID uuid.UUID) (EventSummary, error) {
	const op = "service.query.GetEvent"

	loader := func(ctx context.Context) (EventSummary, error) {
		return s.loadSummary(ctx, eventID)
	}

	var (
		sum EventSummary
		err error
	)
	if s.cache != nil {
		sum, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyEventSummary(eventID), summaryTTL, loader)
	} else {
		sum, err = loader(ctx)
	}
	if err != nil {
		return EventSummary{}, fmt.Errorf("%s:%w", op, err)
	}

	return sum, nil
}

func (s *Service) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "service.query.ListEvents"

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	loader := func(ctx context.Context) ([]domain.Event, error) {
		return s.store.Events().List(ctx, limit, offset)
	}

	var (
		list []domain.Event
		err  error
	)
	if s.cache != nil {
		list, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyEventList(limit, offset), listTTL, loader)
	} else {
		list, err = loader(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return list, nil
}

// Availability returns the event's live seat counts, per tier and in
// aggregate. Cached for a few seconds; checkout re-validates against the
// ledger, so a slightly stale read can never oversell.
func (s *Service) Availability(ctx context.Context, eventID uuid.UUID) (domain.EventAvailability, error) {
	const op = "service.query.Availability"

	loader := func(ctx context.Context) (domain.EventAvailability, error) {
		return s.loadAvailability(ctx, eventID)
	}

	var (
		av  domain.EventAvailability
		err error
	)
	if s.cache != nil {
		av, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyEventAvailability(eventID), availabilityTTL, loader)
	} else {
		av, err = loader(ctx)
	}
	if err != nil {
		return domain.EventAvailability{}, fmt.Errorf("%s:%w", op, err)
	}

	return av, nil
}

func (s *Service) loadSummary(ctx context.Context, eventID uuid.UUID) (EventSummary, error) {
	e, err := s.store.Events().Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return EventSummary{}, ErrEventNotFound
		}
		return EventSummary{}, err
	}

	tiers, err := s.store.Events().Tiers(ctx, eventID)
	if err != nil {
		return EventSummary{}, err
	}

	return EventSummary{Event: *e, Tiers: tiers}, nil
}

func (s *Service) loadAvailability(ctx context.Context, eventID uuid.UUID) (domain.EventAvailability, error) {
	sum, err := s.loadSummary(ctx, eventID)
	if err != nil {
		return domain.EventAvailability{}, err
	}

	av := domain.EventAvailability{
		EventID:        eventID,
		Capacity:       sum.Event.Capacity,
		AvailableSeats: sum.Event.AvailableSeats,
		Tiers:          make([]domain.TierAvailability, 0, len(sum.Tiers)),
	}
	for _, t := range sum.Tiers {
		av.Tiers = append(av.Tiers, domain.TierAvailability{
			TierID:         t.ID,
			Name:           t.Name,
			UnitPrice:      t.UnitPrice,
			TotalSeats:     t.TotalSeats,
			AvailableSeats: t.AvailableSeats,
			SoldOut:        t.SoldOut(),
		})
	}

	return av, nil
}
