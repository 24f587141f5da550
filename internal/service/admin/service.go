package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository"
	redisrepo "github.com/gigaloka/loket-go/internal/repository/redis"
	"github.com/gigaloka/loket-go/internal/uow"
)

// Service handles event administration.
type Service struct {
	store  repository.Store
	pubsub *redisrepo.EventsPubSub
	uow    *uow.UoW
}

func New(store repository.Store, pubsub *redisrepo.EventsPubSub) *Service {
	return &Service{
		store:  store,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
	}
}

type TierInput struct {
	Name      string
	UnitPrice int64
	Seats     int
}

type CreateEventInput struct {
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
	Location    string
	Venue       string
	BasePrice   int64
	ImageURL    string
	Tiers       []TierInput
}

// CreateEventWithTiers creates an event and its ticket tiers in one unit of
// work. Event capacity is derived from the tier seat totals, never supplied
// by the caller.
func (s *Service) CreateEventWithTiers(ctx context.Context, in CreateEventInput) (*domain.Event, []domain.TicketTier, error) {
	const op = "service.admin.CreateEventWithTiers"

	if len(in.Tiers) == 0 {
		return nil, nil, fmt.Errorf("%s:%w", op, ErrNoTiers)
	}
	if !in.EndsAt.After(in.StartsAt) {
		return nil, nil, fmt.Errorf("%s:%w", op, ErrInvalidSchedule)
	}

	capacity := 0
	for _, t := range in.Tiers {
		if t.Name == "" || t.Seats <= 0 || t.UnitPrice < 0 {
			return nil, nil, fmt.Errorf("%s:%w", op, ErrInvalidTier)
		}
		capacity += t.Seats
	}

	now := time.Now().UTC()
	event := domain.Event{
		ID:             uuid.New(),
		Title:          in.Title,
		Description:    in.Description,
		StartsAt:       in.StartsAt,
		EndsAt:         in.EndsAt,
		Location:       in.Location,
		Venue:          in.Venue,
		BasePrice:      in.BasePrice,
		ImageURL:       in.ImageURL,
		Capacity:       capacity,
		AvailableSeats: capacity,
		CreatedAt:      now,
	}

	tiers := make([]domain.TicketTier, 0, len(in.Tiers))
	for _, t := range in.Tiers {
		tiers = append(tiers, domain.TicketTier{
			ID:             uuid.New(),
			EventID:        event.ID,
			Name:           t.Name,
			UnitPrice:      t.UnitPrice,
			TotalSeats:     t.Seats,
			AvailableSeats: t.Seats,
			CreatedAt:      now,
		})
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Events().With(tx).Create(ctx, &event); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := s.store.Events().With(tx).CreateTiers(ctx, tiers); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			if s.pubsub != nil {
				_ = s.pubsub.PublishEventChanged(ctx, event.ID)
			}
		})

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &event, tiers, nil
}
