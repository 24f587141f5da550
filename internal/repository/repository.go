package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gigaloka/loket-go/internal/domain"
)

// DB is the handle repositories execute statements against. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so a repo obtained via With(tx) runs
// inside the caller's transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store is the storage-access seam injected into every service. Production
// code uses the postgres implementation; tests substitute the in-memory one.
type Store interface {
	RunTx(ctx context.Context, opts *pgx.TxOptions, fn func(ctx context.Context, tx DB) error) error

	Events() EventRepo
	Ledger() LedgerRepo
	Transactions() TransactionRepo
	Promotions() PromotionRepo
}

type EventRepo interface {
	With(db DB) EventRepo

	Create(ctx context.Context, e *domain.Event) error
	CreateTiers(ctx context.Context, tiers []domain.TicketTier) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	List(ctx context.Context, limit, offset int) ([]domain.Event, error)
	Tiers(ctx context.Context, eventID uuid.UUID) ([]domain.TicketTier, error)
	TiersByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.TicketTier, error)
}

// LedgerRepo is the only writer of tier and event seat counters. Reserve and
// Release adjust the tier counter and the event aggregate together, inside
// whatever transaction the repo is bound to.
type LedgerRepo interface {
	With(db DB) LedgerRepo

	// Reserve decrements qty seats from the tier and the event aggregate as
	// a single conditional statement per counter. Returns
	// ErrInsufficientStock when the tier has fewer than qty seats left.
	Reserve(ctx context.Context, eventID, tierID uuid.UUID, qty int) error

	// Release returns qty seats to the tier and the event aggregate, bounded
	// above by the original capacity.
	Release(ctx context.Context, eventID, tierID uuid.UUID, qty int) error
}

type TransactionRepo interface {
	With(db DB) TransactionRepo

	Create(ctx context.Context, t *domain.Transaction) error
	InsertItems(ctx context.Context, items []domain.TransactionItem) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	Items(ctx context.Context, transactionID uuid.UUID) ([]domain.TransactionItem, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error)

	// SetProof stores the payment proof URL and bumps updated_at.
	SetProof(ctx context.Context, id uuid.UUID, proofURL string) error

	// UpdateStatusFrom flips the transaction to the target status only if its
	// current status is one of from. Reports whether this caller won the
	// check-and-set; a losing caller must not release seats.
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus) (bool, error)

	// ListDeadlineElapsed returns transactions still in one of the given
	// statuses created before the cutoff, oldest first.
	ListDeadlineElapsed(ctx context.Context, statuses []domain.TransactionStatus, cutoff time.Time, limit int) ([]domain.Transaction, error)
}

type PromotionRepo interface {
	With(db DB) PromotionRepo

	Create(ctx context.Context, p *domain.Promotion) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Promotion, error)

	// FindByCode looks a promotion up by event and code, case-insensitively.
	FindByCode(ctx context.Context, eventID uuid.UUID, code string) (*domain.Promotion, error)
}
