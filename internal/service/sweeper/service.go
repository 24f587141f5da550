package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository"
	redisrepo "github.com/gigaloka/loket-go/internal/repository/redis"
	"github.com/gigaloka/loket-go/internal/uow"
)

const (
	defaultPaymentDeadline = 2 * time.Hour
	defaultBatchSize       = 100
)

// Config holds sweep settings.
type Config struct {
	// PaymentDeadline is how long a transaction may sit unpaid or
	// unconfirmed before the sweeper expires it. Defaults to 2h.
	PaymentDeadline time.Duration

	// BatchSize caps how many transactions one sweep examines. Defaults
	// to 100.
	BatchSize int
}

// Service expires overdue transactions and returns their seats to the
// ledger. Each transaction is expired in its own unit of work behind a
// guarded check-and-set, so concurrent sweeps and racing user actions never
// double-release.
type Service struct {
	store  repository.Store
	cache  *redisrepo.Cache
	pubsub *redisrepo.EventsPubSub
	uow    *uow.UoW
	log    *slog.Logger
	cfg    Config
}

func New(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	log *slog.Logger,
	cfg Config,
) *Service {
	if cfg.PaymentDeadline <= 0 {
		cfg.PaymentDeadline = defaultPaymentDeadline
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
		log:    log,
		cfg:    cfg,
	}
}

// Result summarizes one sweep.
type Result struct {
	Expired       int `json:"expired"`
	ReleasedSeats int `json:"released_seats"`
}

// Sweep expires every expirable transaction whose payment deadline has
// elapsed. A failure on one transaction is logged and skipped; the rest of
// the batch still runs. Safe to invoke concurrently and to re-run
// immediately; an already-expired transaction is left untouched.
func (s *Service) Sweep(ctx context.Context) (Result, error) {
	const op = "service.sweeper.Sweep"

	var res Result

	cutoff := time.Now().UTC().Add(-s.cfg.PaymentDeadline)

	overdue, err := s.store.Transactions().ListDeadlineElapsed(ctx, domain.ExpirableStatuses, cutoff, s.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("%s:%w", op, err)
	}

	for _, txn := range overdue {
		released, err := s.expireOne(ctx, txn)
		if err != nil {
			s.log.Error("expire transaction",
				slog.String("transaction_id", txn.ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		if released >= 0 {
			res.Expired++
			res.ReleasedSeats += released
		}
	}

	return res, nil
}

// Run sweeps on the given interval until ctx is canceled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				s.log.Error("sweep", slog.Any("error", err))
				continue
			}
			if res.Expired > 0 {
				s.log.Info("sweep completed",
					slog.Int("expired", res.Expired),
					slog.Int("released_seats", res.ReleasedSeats),
				)
			}
		}
	}
}

// expireOne flips a single transaction to expired and releases its seats.
// Returns -1 when the check-and-set was lost, meaning another actor already
// moved the transaction and no seats were touched here.
func (s *Service) expireOne(ctx context.Context, txn domain.Transaction) (int, error) {
	items, err := s.store.Transactions().Items(ctx, txn.ID)
	if err != nil {
		return 0, err
	}

	released := 0

	err = s.uow.Do(ctx, func(ctx context.Context, tx repository.DB, after func(uow.AfterCommit)) error {
		won, err := s.store.Transactions().With(tx).UpdateStatusFrom(ctx, txn.ID, domain.ExpirableStatuses, domain.StatusExpired)
		if err != nil {
			return err
		}
		if !won {
			released = -1
			return nil
		}

		ledger := s.store.Ledger().With(tx)
		for _, it := range items {
			if err := ledger.Release(ctx, txn.EventID, it.TierID, it.Quantity); err != nil {
				return err
			}
			released += it.Quantity
		}

		eventID := txn.EventID
		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.InvalidateEvent(ctx, eventID)
			}
			if s.pubsub != nil {
				_ = s.pubsub.PublishEventChanged(ctx, eventID)
			}
		})

		return nil
	})
	if err != nil {
		return 0, err
	}

	return released, nil
}
