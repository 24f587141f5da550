package transactions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gigaloka/loket-go/internal/auth"
	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository"
	redisrepo "github.com/gigaloka/loket-go/internal/repository/redis"
	"github.com/gigaloka/loket-go/internal/uow"
)

// Config holds transaction lifecycle settings.
type Config struct {
	// ProofPublicBaseURL is the prefix every submitted payment proof URL
	// must carry. Empty disables the check.
	ProofPublicBaseURL string
}

// Service drives the transaction state machine. Every status change that
// crosses the seat-holding boundary releases or re-reserves the
// transaction's items in the same unit of work as the status flip, and the
// flip itself is a guarded check-and-set so seats move exactly once no
// matter how many actors race.
type Service struct {
	store  repository.Store
	cache  *redisrepo.Cache
	pubsub *redisrepo.EventsPubSub
	uow    *uow.UoW
	cfg    Config
}

func New(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	cfg Config,
) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
		cfg:    cfg,
	}
}

// Get returns the transaction with its items. Callers see only their own
// transactions unless they are admins.
func (s *Service) Get(ctx context.Context, callerID uuid.UUID, callerRole string, txID uuid.UUID) (*domain.TransactionWithItems, error) {
	const op = "service.transactions.Get"

	txn, err := s.load(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if txn.UserID != callerID && callerRole != auth.RoleAdmin {
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}

	items, err := s.store.Transactions().Items(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &domain.TransactionWithItems{Transaction: *txn, Items: items}, nil
}

// ListByUser returns the caller's transactions, newest first.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	const op = "service.transactions.ListByUser"

	list, err := s.store.Transactions().ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return list, nil
}

// SubmitProof attaches a payment proof URL to the caller's transaction.
//
// From awaiting_payment the transaction moves to awaiting_confirmation.
// From awaiting_confirmation the URL is replaced in place, so a user can
// correct a bad upload before review. From rejected the transaction moves
// back to awaiting_confirmation and its seats are reserved again; if the
// tiers have sold out in the meantime the resubmission fails with
// ErrSeatsUnavailable.
func (s *Service) SubmitProof(ctx context.Context, userID, txID uuid.UUID, proofURL string) (*domain.Transaction, error) {
	const op = "service.transactions.SubmitProof"

	if err := s.validateProofURL(proofURL); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	txn, err := s.load(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if txn.UserID != userID {
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}

	switch txn.Status {
	case domain.StatusAwaitingPayment, domain.StatusRejected:
		err = s.applyTransition(ctx, txn, domain.StatusAwaitingConfirmation, proofURL)
	case domain.StatusAwaitingConfirmation:
		err = s.store.Transactions().SetProof(ctx, txID, proofURL)
	default:
		err = &InvalidStateTransitionError{Current: txn.Status, Target: domain.StatusAwaitingConfirmation}
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	updated, err := s.load(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return updated, nil
}

// SetStatus moves a transaction to the target status. Admin only.
func (s *Service) SetStatus(ctx context.Context, callerRole string, txID uuid.UUID, target domain.TransactionStatus) (*domain.Transaction, error) {
	const op = "service.transactions.SetStatus"

	if callerRole != auth.RoleAdmin {
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}
	if !target.IsValid() {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidStatus)
	}

	txn, err := s.load(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.applyTransition(ctx, txn, target, ""); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	updated, err := s.load(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return updated, nil
}

// Cancel moves the transaction to canceled. Owners may cancel while a
// transaction awaits payment or confirmation; admins may additionally
// cancel done and rejected transactions.
func (s *Service) Cancel(ctx context.Context, callerID uuid.UUID, callerRole string, txID uuid.UUID) (*domain.Transaction, error) {
	const op = "service.transactions.Cancel"

	txn, err := s.load(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	switch {
	case callerRole == auth.RoleAdmin:
	case txn.UserID != callerID:
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	case txn.Status != domain.StatusAwaitingPayment && txn.Status != domain.StatusAwaitingConfirmation:
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}

	if err := s.applyTransition(ctx, txn, domain.StatusCanceled, ""); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	updated, err := s.load(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return updated, nil
}

func (s *Service) load(ctx context.Context, txID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.store.Transactions().Get(ctx, txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

func (s *Service) validateProofURL(proofURL string) error {
	if proofURL == "" {
		return ErrInvalidProofURL
	}
	if s.cfg.ProofPublicBaseURL != "" && !strings.HasPrefix(proofURL, s.cfg.ProofPublicBaseURL) {
		return ErrInvalidProofURL
	}
	return nil
}

// applyTransition flips txn to target with a guarded check-and-set and
// moves seats when the transition crosses the seat-holding boundary. The
// flip, the seat movement, and the optional proof write share one unit of
// work: losing the flip aborts everything, so seats are released or
// re-reserved exactly once per transition.
func (s *Service) applyTransition(ctx context.Context, txn *domain.Transaction, target domain.TransactionStatus, proofURL string) error {
	from := txn.Status

	if !from.CanTransitionTo(target) {
		return &InvalidStateTransitionError{Current: from, Target: target}
	}

	items, err := s.store.Transactions().Items(ctx, txn.ID)
	if err != nil {
		return err
	}

	releasing := from.HoldsSeats() && !target.HoldsSeats()
	reserving := !from.HoldsSeats() && target.HoldsSeats()

	return s.uow.Do(ctx, func(ctx context.Context, tx repository.DB, after func(uow.AfterCommit)) error {
		txRepo := s.store.Transactions().With(tx)

		won, err := txRepo.UpdateStatusFrom(ctx, txn.ID, []domain.TransactionStatus{from}, target)
		if err != nil {
			return err
		}
		if !won {
			// Somebody else moved the transaction first. Re-read so the
			// caller learns the state that beat them.
			current, err := txRepo.Get(ctx, txn.ID)
			if err != nil {
				return err
			}
			return &InvalidStateTransitionError{Current: current.Status, Target: target}
		}

		if proofURL != "" {
			if err := txRepo.SetProof(ctx, txn.ID, proofURL); err != nil {
				return err
			}
		}

		ledger := s.store.Ledger().With(tx)
		for _, it := range items {
			switch {
			case releasing:
				if err := ledger.Release(ctx, txn.EventID, it.TierID, it.Quantity); err != nil {
					return err
				}
			case reserving:
				if err := ledger.Reserve(ctx, txn.EventID, it.TierID, it.Quantity); err != nil {
					if errors.Is(err, repository.ErrInsufficientStock) {
						return ErrSeatsUnavailable
					}
					return err
				}
			}
		}

		if releasing || reserving {
			eventID := txn.EventID
			after(func(ctx context.Context) {
				if s.cache != nil {
					_ = s.cache.InvalidateEvent(ctx, eventID)
				}
				if s.pubsub != nil {
					_ = s.pubsub.PublishEventChanged(ctx, eventID)
				}
			})
		}

		return nil
	})
}
