package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository"
)

type EventRepo struct {
	pool *pgxpool.Pool
	db   repository.DB
}

func (r *EventRepo) With(db repository.DB) repository.EventRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *EventRepo) handle() repository.DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *EventRepo) Create(ctx context.Context, e *domain.Event) error {
	const op = "postgres.EventRepo.Create"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO events(
			id, title, description, starts_at, ends_at, location, venue,
			base_price, image_url, capacity, available_seats, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Title, e.Description, e.StartsAt, e.EndsAt, e.Location,
		e.Venue, e.BasePrice, e.ImageURL, e.Capacity, e.AvailableSeats,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *EventRepo) CreateTiers(ctx context.Context, tiers []domain.TicketTier) error {
	const op = "postgres.EventRepo.CreateTiers"

	db := r.handle()

	batch := &pgx.Batch{}
	for _, t := range tiers {
		batch.Queue(
			`INSERT INTO ticket_tiers(
				id, event_id, name, unit_price, total_seats,
				available_seats, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, t.EventID, t.Name, t.UnitPrice, t.TotalSeats,
			t.AvailableSeats, t.CreatedAt,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Get retrieves an event by its ID.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	const op = "postgres.EventRepo.Get"

	db := r.handle()

	var e domain.Event
	err := db.QueryRow(ctx,
		`SELECT id, title, description, starts_at, ends_at, location, venue,
				base_price, image_url, capacity, available_seats, created_at
		 FROM events WHERE id = $1`,
		id,
	).Scan(
		&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt, &e.Location,
		&e.Venue, &e.BasePrice, &e.ImageURL, &e.Capacity, &e.AvailableSeats,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &e, nil
}

// List lists events ordered by start time.
func (r *EventRepo) List(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "postgres.EventRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, title, description, starts_at, ends_at, location, venue,
				base_price, image_url, capacity, available_seats, created_at
		 FROM events
		 ORDER BY starts_at
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt,
			&e.Location, &e.Venue, &e.BasePrice, &e.ImageURL, &e.Capacity,
			&e.AvailableSeats, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Tiers lists all ticket tiers of an event.
func (r *EventRepo) Tiers(ctx context.Context, eventID uuid.UUID) ([]domain.TicketTier, error) {
	const op = "postgres.EventRepo.Tiers"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, event_id, name, unit_price, total_seats, available_seats, created_at
		 FROM ticket_tiers
		 WHERE event_id = $1
		 ORDER BY unit_price, name`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	return scanTiers(op, rows)
}

// TiersByIDs retrieves the tiers whose IDs are in ids. Missing IDs are
// simply absent from the result; callers detect them by comparing lengths.
func (r *EventRepo) TiersByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.TicketTier, error) {
	const op = "postgres.EventRepo.TiersByIDs"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, event_id, name, unit_price, total_seats, available_seats, created_at
		 FROM ticket_tiers
		 WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	return scanTiers(op, rows)
}

func scanTiers(op string, rows pgx.Rows) ([]domain.TicketTier, error) {
	var out []domain.TicketTier
	for rows.Next() {
		var t domain.TicketTier
		if err := rows.Scan(
			&t.ID, &t.EventID, &t.Name, &t.UnitPrice, &t.TotalSeats,
			&t.AvailableSeats, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
