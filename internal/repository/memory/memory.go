// Package memory provides an in-memory repository.Store used by service
// tests and local development. It honors the same contracts as the postgres
// implementation: conditional reserve, bounded release, guarded status
// check-and-set, and rollback of everything mutated inside a failed RunTx.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository"
)

type state struct {
	events       map[uuid.UUID]domain.Event
	tiers        map[uuid.UUID]domain.TicketTier
	transactions map[uuid.UUID]domain.Transaction
	items        map[uuid.UUID][]domain.TransactionItem
	promotions   map[uuid.UUID]domain.Promotion
}

func newState() *state {
	return &state{
		events:       make(map[uuid.UUID]domain.Event),
		tiers:        make(map[uuid.UUID]domain.TicketTier),
		transactions: make(map[uuid.UUID]domain.Transaction),
		items:        make(map[uuid.UUID][]domain.TransactionItem),
		promotions:   make(map[uuid.UUID]domain.Promotion),
	}
}

func (st *state) clone() *state {
	cp := newState()
	for k, v := range st.events {
		cp.events[k] = v
	}
	for k, v := range st.tiers {
		cp.tiers[k] = v
	}
	for k, v := range st.transactions {
		cp.transactions[k] = v
	}
	for k, v := range st.items {
		items := make([]domain.TransactionItem, len(v))
		copy(items, v)
		cp.items[k] = items
	}
	for k, v := range st.promotions {
		cp.promotions[k] = v
	}
	return cp
}

type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// inTxDB marks repos as running inside RunTx. The memory store has no SQL
// surface; repos bound to it operate on the shared state under the store
// lock held by RunTx.
type inTxDB struct{}

func (inTxDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("memory store does not execute SQL")
}

func (inTxDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("memory store does not execute SQL")
}

func (inTxDB) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("memory store does not execute SQL")
}

func (inTxDB) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("memory store does not execute SQL")
}

// RunTx serializes all transactional work behind the store mutex and rolls
// the whole state back when fn fails, mirroring a storage transaction abort.
func (s *Store) RunTx(
	ctx context.Context,
	_ *pgx.TxOptions,
	fn func(ctx context.Context, tx repository.DB) error,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, inTxDB{}); err != nil {
		s.st = snapshot
		return err
	}

	return nil
}

func (s *Store) Events() repository.EventRepo             { return &eventRepo{s: s} }
func (s *Store) Ledger() repository.LedgerRepo            { return &ledgerRepo{s: s} }
func (s *Store) Transactions() repository.TransactionRepo { return &transactionRepo{s: s} }
func (s *Store) Promotions() repository.PromotionRepo     { return &promotionRepo{s: s} }

func (s *Store) lockUnless(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// --- events ---

type eventRepo struct {
	s    *Store
	inTx bool
}

func (r *eventRepo) With(db repository.DB) repository.EventRepo {
	cp := *r
	cp.inTx = db != nil
	return &cp
}

func (r *eventRepo) Create(_ context.Context, e *domain.Event) error {
	defer r.s.lockUnless(r.inTx)()

	if _, ok := r.s.st.events[e.ID]; ok {
		return repository.ErrConflict
	}
	r.s.st.events[e.ID] = *e
	return nil
}

func (r *eventRepo) CreateTiers(_ context.Context, tiers []domain.TicketTier) error {
	defer r.s.lockUnless(r.inTx)()

	for _, t := range tiers {
		if _, ok := r.s.st.tiers[t.ID]; ok {
			return repository.ErrConflict
		}
		r.s.st.tiers[t.ID] = t
	}
	return nil
}

func (r *eventRepo) Get(_ context.Context, id uuid.UUID) (*domain.Event, error) {
	defer r.s.lockUnless(r.inTx)()

	e, ok := r.s.st.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (r *eventRepo) List(_ context.Context, limit, offset int) ([]domain.Event, error) {
	defer r.s.lockUnless(r.inTx)()

	out := make([]domain.Event, 0, len(r.s.st.events))
	for _, e := range r.s.st.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })

	return page(out, limit, offset), nil
}

func (r *eventRepo) Tiers(_ context.Context, eventID uuid.UUID) ([]domain.TicketTier, error) {
	defer r.s.lockUnless(r.inTx)()

	var out []domain.TicketTier
	for _, t := range r.s.st.tiers {
		if t.EventID == eventID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitPrice != out[j].UnitPrice {
			return out[i].UnitPrice < out[j].UnitPrice
		}
		return out[i].Name < out[j].Name
	})

	return out, nil
}

func (r *eventRepo) TiersByIDs(_ context.Context, ids []uuid.UUID) ([]domain.TicketTier, error) {
	defer r.s.lockUnless(r.inTx)()

	var out []domain.TicketTier
	for _, id := range ids {
		if t, ok := r.s.st.tiers[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- ledger ---

type ledgerRepo struct {
	s    *Store
	inTx bool
}

func (r *ledgerRepo) With(db repository.DB) repository.LedgerRepo {
	cp := *r
	cp.inTx = db != nil
	return &cp
}

func (r *ledgerRepo) Reserve(_ context.Context, eventID, tierID uuid.UUID, qty int) error {
	defer r.s.lockUnless(r.inTx)()

	t, ok := r.s.st.tiers[tierID]
	if !ok || t.EventID != eventID || t.AvailableSeats < qty {
		return repository.ErrInsufficientStock
	}
	t.AvailableSeats -= qty
	r.s.st.tiers[tierID] = t

	e := r.s.st.events[eventID]
	e.AvailableSeats -= qty
	r.s.st.events[eventID] = e

	return nil
}

func (r *ledgerRepo) Release(_ context.Context, eventID, tierID uuid.UUID, qty int) error {
	defer r.s.lockUnless(r.inTx)()

	t, ok := r.s.st.tiers[tierID]
	if !ok || t.EventID != eventID {
		return repository.ErrNotFound
	}
	t.AvailableSeats += qty
	if t.AvailableSeats > t.TotalSeats {
		t.AvailableSeats = t.TotalSeats
	}
	r.s.st.tiers[tierID] = t

	e := r.s.st.events[eventID]
	e.AvailableSeats += qty
	if e.AvailableSeats > e.Capacity {
		e.AvailableSeats = e.Capacity
	}
	r.s.st.events[eventID] = e

	return nil
}

// --- transactions ---

type transactionRepo struct {
	s    *Store
	inTx bool
}

func (r *transactionRepo) With(db repository.DB) repository.TransactionRepo {
	cp := *r
	cp.inTx = db != nil
	return &cp
}

func (r *transactionRepo) Create(_ context.Context, t *domain.Transaction) error {
	defer r.s.lockUnless(r.inTx)()

	if _, ok := r.s.st.transactions[t.ID]; ok {
		return repository.ErrConflict
	}
	r.s.st.transactions[t.ID] = *t
	return nil
}

func (r *transactionRepo) InsertItems(_ context.Context, items []domain.TransactionItem) error {
	defer r.s.lockUnless(r.inTx)()

	for _, it := range items {
		r.s.st.items[it.TransactionID] = append(r.s.st.items[it.TransactionID], it)
	}
	return nil
}

func (r *transactionRepo) Get(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	defer r.s.lockUnless(r.inTx)()

	t, ok := r.s.st.transactions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *transactionRepo) Items(_ context.Context, transactionID uuid.UUID) ([]domain.TransactionItem, error) {
	defer r.s.lockUnless(r.inTx)()

	items := r.s.st.items[transactionID]
	out := make([]domain.TransactionItem, len(items))
	copy(out, items)
	return out, nil
}

func (r *transactionRepo) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	defer r.s.lockUnless(r.inTx)()

	var out []domain.Transaction
	for _, t := range r.s.st.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return page(out, limit, offset), nil
}

func (r *transactionRepo) SetProof(_ context.Context, id uuid.UUID, proofURL string) error {
	defer r.s.lockUnless(r.inTx)()

	t, ok := r.s.st.transactions[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.ProofURL = proofURL
	t.UpdatedAt = time.Now().UTC()
	r.s.st.transactions[id] = t
	return nil
}

func (r *transactionRepo) UpdateStatusFrom(
	_ context.Context,
	id uuid.UUID,
	from []domain.TransactionStatus,
	to domain.TransactionStatus,
) (bool, error) {
	defer r.s.lockUnless(r.inTx)()

	t, ok := r.s.st.transactions[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if t.Status == f {
			t.Status = to
			t.UpdatedAt = time.Now().UTC()
			r.s.st.transactions[id] = t
			return true, nil
		}
	}
	return false, nil
}

func (r *transactionRepo) ListDeadlineElapsed(
	_ context.Context,
	statuses []domain.TransactionStatus,
	cutoff time.Time,
	limit int,
) ([]domain.Transaction, error) {
	defer r.s.lockUnless(r.inTx)()

	var out []domain.Transaction
	for _, t := range r.s.st.transactions {
		if !t.CreatedAt.Before(cutoff) {
			continue
		}
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, t)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- promotions ---

type promotionRepo struct {
	s    *Store
	inTx bool
}

func (r *promotionRepo) With(db repository.DB) repository.PromotionRepo {
	cp := *r
	cp.inTx = db != nil
	return &cp
}

func (r *promotionRepo) Create(_ context.Context, p *domain.Promotion) error {
	defer r.s.lockUnless(r.inTx)()

	for _, existing := range r.s.st.promotions {
		if existing.EventID == p.EventID && strings.EqualFold(existing.Code, p.Code) {
			return repository.ErrConflict
		}
	}
	r.s.st.promotions[p.ID] = *p
	return nil
}

func (r *promotionRepo) ListByEvent(_ context.Context, eventID uuid.UUID) ([]domain.Promotion, error) {
	defer r.s.lockUnless(r.inTx)()

	var out []domain.Promotion
	for _, p := range r.s.st.promotions {
		if p.EventID == eventID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out, nil
}

func (r *promotionRepo) FindByCode(_ context.Context, eventID uuid.UUID, code string) (*domain.Promotion, error) {
	defer r.s.lockUnless(r.inTx)()

	for _, p := range r.s.st.promotions {
		if p.EventID == eventID && strings.EqualFold(p.Code, code) {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
