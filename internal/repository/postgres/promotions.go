package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository"
)

type PromotionRepo struct {
	pool *pgxpool.Pool
	db   repository.DB
}

func (r *PromotionRepo) With(db repository.DB) repository.PromotionRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *PromotionRepo) handle() repository.DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *PromotionRepo) Create(ctx context.Context, p *domain.Promotion) error {
	const op = "postgres.PromotionRepo.Create"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO promotions(
			id, event_id, code, discount_type, discount_value,
			start_date, end_date, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.EventID, p.Code, string(p.DiscountType), p.DiscountValue,
		p.StartDate, p.EndDate, string(p.Status), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *PromotionRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Promotion, error) {
	const op = "postgres.PromotionRepo.ListByEvent"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, event_id, code, discount_type, discount_value,
				start_date, end_date, status, created_at
		 FROM promotions
		 WHERE event_id = $1
		 ORDER BY created_at DESC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Promotion
	for rows.Next() {
		p, err := scanPromotion(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// FindByCode looks a promotion up by event and code. The match is
// case-insensitive; callers normalize the input beforehand.
//
// Returns:
//   - *domain.Promotion: the promotion when found.
//   - error: repository.ErrNotFound if no promotion matches.
func (r *PromotionRepo) FindByCode(ctx context.Context, eventID uuid.UUID, code string) (*domain.Promotion, error) {
	const op = "postgres.PromotionRepo.FindByCode"

	db := r.handle()

	p, err := scanPromotion(db.QueryRow(ctx,
		`SELECT id, event_id, code, discount_type, discount_value,
				start_date, end_date, status, created_at
		 FROM promotions
		 WHERE event_id = $1
			AND lower(code) = lower($2)`,
		eventID, code,
	).Scan)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return p, nil
}

func scanPromotion(scan func(dest ...any) error) (*domain.Promotion, error) {
	var p domain.Promotion
	var discountType, status string

	if err := scan(
		&p.ID, &p.EventID, &p.Code, &discountType, &p.DiscountValue,
		&p.StartDate, &p.EndDate, &status, &p.CreatedAt,
	); err != nil {
		return nil, err
	}

	p.DiscountType = domain.DiscountType(discountType)
	p.Status = domain.PromotionStatus(status)

	return &p, nil
}
