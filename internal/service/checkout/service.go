package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository"
	redisrepo "github.com/gigaloka/loket-go/internal/repository/redis"
	"github.com/gigaloka/loket-go/internal/uow"
)

// Service orchestrates checkout: it validates the requested cart against the
// tier ledger, creates the transaction and its line items, and reserves
// seats — all inside one unit of work, so losing a reservation race rolls
// everything back.
type Service struct {
	store   repository.Store
	cache   *redisrepo.Cache
	pubsub  *redisrepo.EventsPubSub
	limiter *redisrepo.SlidingWindowLimiter
	uow     *uow.UoW
}

func New(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		uow:     uow.NewUoW(store),
	}
}

// ItemInput is one requested cart line.
type ItemInput struct {
	TierID   uuid.UUID
	Quantity int
}

// Checkout creates a transaction in awaiting_payment with its seats
// reserved.
//
// Duplicate tier lines are aggregated before validation. The paid amount is
// computed server-side from tier unit prices and the optional voucher; a
// client-supplied total is never trusted.
//
// Returns:
//   - *domain.TransactionWithItems: the created transaction and its lines.
//   - error: checkout.ErrEventNotFound if the event does not exist.
//   - error: *checkout.UnknownTiersError if a tier does not belong to the event.
//   - error: *checkout.InsufficientStockError with every tier shortfall.
//   - error: checkout.ErrVoucherNotFound / ErrVoucherInactive / ErrVoucherExpired.
func (s *Service) Checkout(
	ctx context.Context,
	userID, eventID uuid.UUID,
	items []ItemInput,
	voucherCode string,
	rlKey string,
) (*domain.TransactionWithItems, error) {
	const op = "service.checkout.Checkout"

	if len(items) == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrNoItems)
	}

	lines, err := aggregate(items)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: rate limited, retry in %s", op, retry)
		}
	}

	if _, err := s.store.Events().Get(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	tiers, err := s.resolveTiers(ctx, eventID, lines)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	// Optimistic pre-check so callers get the full per-tier shortfall
	// picture before any row is written. The ledger re-checks atomically.
	if short := shortfalls(lines, tiers); len(short) > 0 {
		return nil, fmt.Errorf("%s:%w", op, &InsufficientStockError{Shortfalls: short})
	}

	paid, code, err := s.priceCart(ctx, eventID, lines, tiers, voucherCode)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	now := time.Now().UTC()
	txn := domain.Transaction{
		ID:          uuid.New(),
		EventID:     eventID,
		UserID:      userID,
		VoucherCode: code,
		PaidAmount:  paid,
		Status:      domain.StatusAwaitingPayment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	txItems := make([]domain.TransactionItem, 0, len(lines))
	for _, ln := range lines {
		txItems = append(txItems, domain.TransactionItem{
			ID:            uuid.New(),
			TransactionID: txn.ID,
			TierID:        ln.TierID,
			Quantity:      ln.Quantity,
		})
	}

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.DB,
		after func(uow.AfterCommit),
	) error {
		if err := s.store.Transactions().With(tx).Create(ctx, &txn); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := s.store.Transactions().With(tx).InsertItems(ctx, txItems); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		ledger := s.store.Ledger().With(tx)
		for _, ln := range lines {
			if err := ledger.Reserve(ctx, eventID, ln.TierID, ln.Quantity); err != nil {
				if errors.Is(err, repository.ErrInsufficientStock) {
					// Lost the race after the pre-check. The aborted unit of
					// work drops the transaction, its items, and every
					// reservation granted earlier in this loop.
					return fmt.Errorf("%s:%w", op, s.raceShortfall(ctx, tx, eventID, ln))
				}
				return fmt.Errorf("%s:%w", op, err)
			}
		}

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
		return nil, err
	}

	return &domain.TransactionWithItems{Transaction: txn, Items: txItems}, nil
}

// aggregate folds duplicate tier IDs together, preserving first-seen order.
func aggregate(items []ItemInput) ([]ItemInput, error) {
	byTier := make(map[uuid.UUID]int, len(items))
	var order []uuid.UUID

	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{TierID: it.TierID, Quantity: it.Quantity}
		}
		if _, ok := byTier[it.TierID]; !ok {
			order = append(order, it.TierID)
		}
		byTier[it.TierID] += it.Quantity
	}

	out := make([]ItemInput, 0, len(order))
	for _, id := range order {
		out = append(out, ItemInput{TierID: id, Quantity: byTier[id]})
	}

	return out, nil
}

func (s *Service) resolveTiers(
	ctx context.Context,
	eventID uuid.UUID,
	lines []ItemInput,
) (map[uuid.UUID]domain.TicketTier, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, ln := range lines {
		ids = append(ids, ln.TierID)
	}

	found, err := s.store.Events().TiersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	tiers := make(map[uuid.UUID]domain.TicketTier, len(found))
	for _, t := range found {
		if t.EventID == eventID {
			tiers[t.ID] = t
		}
	}

	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := tiers[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &UnknownTiersError{TierIDs: missing}
	}

	return tiers, nil
}

func shortfalls(lines []ItemInput, tiers map[uuid.UUID]domain.TicketTier) []Shortfall {
	var out []Shortfall
	for _, ln := range lines {
		t := tiers[ln.TierID]
		if t.AvailableSeats < ln.Quantity {
			out = append(out, Shortfall{
				TierID:    ln.TierID,
				Requested: ln.Quantity,
				Available: t.AvailableSeats,
			})
		}
	}
	return out
}

// priceCart computes the server-side total: tier unit prices times
// quantities, minus the voucher discount when a valid code is supplied.
func (s *Service) priceCart(
	ctx context.Context,
	eventID uuid.UUID,
	lines []ItemInput,
	tiers map[uuid.UUID]domain.TicketTier,
	voucherCode string,
) (int64, string, error) {
	var subtotal int64
	for _, ln := range lines {
		subtotal += tiers[ln.TierID].UnitPrice * int64(ln.Quantity)
	}

	code := strings.ToUpper(strings.TrimSpace(voucherCode))
	if code == "" {
		return subtotal, "", nil
	}

	promo, err := s.store.Promotions().FindByCode(ctx, eventID, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, "", ErrVoucherNotFound
		}
		return 0, "", err
	}

	if promo.Status != domain.PromotionActive {
		return 0, "", ErrVoucherInactive
	}
	if !promo.ActiveAt(time.Now()) {
		return 0, "", ErrVoucherExpired
	}

	return subtotal - promo.Discount(subtotal), code, nil
}

// raceShortfall re-reads the tier that lost its reservation race so the
// rejection carries the current availability.
func (s *Service) raceShortfall(
	ctx context.Context,
	tx repository.DB,
	eventID uuid.UUID,
	ln ItemInput,
) error {
	available := 0
	if tiers, err := s.store.Events().With(tx).TiersByIDs(ctx, []uuid.UUID{ln.TierID}); err == nil && len(tiers) == 1 {
		available = tiers[0].AvailableSeats
	}

	return &InsufficientStockError{Shortfalls: []Shortfall{{
		TierID:    ln.TierID,
		Requested: ln.Quantity,
		Available: available,
	}}}
}
