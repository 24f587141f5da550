package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigaloka/loket-go/internal/repository"
)

// LedgerRepo owns the ticket_tiers.available_seats counter and the
// events.available_seats aggregate. No other code path writes either field.
type LedgerRepo struct {
	pool *pgxpool.Pool
	db   repository.DB
}

func (r *LedgerRepo) With(db repository.DB) repository.LedgerRepo {
	cp := *r
	cp.db = db
	return &cp
}

// Reserve withholds qty seats from a tier and the owning event's aggregate.
//
// The tier decrement is a single conditional UPDATE evaluated by the storage
// engine, so two concurrent reservations for the last seat cannot both
// succeed. The aggregate is adjusted in the same transaction.
//
// Returns:
//   - error: repository.ErrInsufficientStock if the tier has fewer than qty
//     seats available.
func (r *LedgerRepo) Reserve(ctx context.Context, eventID, tierID uuid.UUID, qty int) error {
	const op = "postgres.LedgerRepo.Reserve"

	if r.db != nil {
		if err := r.reserveCore(ctx, r.db, eventID, tierID, qty); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := r.reserveCore(ctx, tx, eventID, tierID, qty); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Release returns qty seats to a tier and the owning event's aggregate.
// Bounded above by the original capacity so a stray double-release cannot
// inflate the counters past their creation-time snapshot.
func (r *LedgerRepo) Release(ctx context.Context, eventID, tierID uuid.UUID, qty int) error {
	const op = "postgres.LedgerRepo.Release"

	if r.db != nil {
		if err := r.releaseCore(ctx, r.db, eventID, tierID, qty); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := r.releaseCore(ctx, tx, eventID, tierID, qty); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *LedgerRepo) reserveCore(ctx context.Context, db repository.DB, eventID, tierID uuid.UUID, qty int) error {
	tag, err := db.Exec(ctx,
		`UPDATE ticket_tiers
			SET available_seats = available_seats - $3
		 WHERE id = $2
			AND event_id = $1
			AND available_seats >= $3`,
		eventID, tierID, qty,
	)
	if err != nil {
		return translateDBErr(err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrInsufficientStock
	}

	if _, err := db.Exec(ctx,
		`UPDATE events
			SET available_seats = available_seats - $2
		 WHERE id = $1`,
		eventID, qty,
	); err != nil {
		return translateDBErr(err)
	}

	return nil
}

func (r *LedgerRepo) releaseCore(ctx context.Context, db repository.DB, eventID, tierID uuid.UUID, qty int) error {
	tag, err := db.Exec(ctx,
		`UPDATE ticket_tiers
			SET available_seats = LEAST(available_seats + $3, total_seats)
		 WHERE id = $2
			AND event_id = $1`,
		eventID, tierID, qty,
	)
	if err != nil {
		return translateDBErr(err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if _, err := db.Exec(ctx,
		`UPDATE events
			SET available_seats = LEAST(available_seats + $2, capacity)
		 WHERE id = $1`,
		eventID, qty,
	); err != nil {
		return translateDBErr(err)
	}

	return nil
}
