package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository"
)

type TransactionRepo struct {
	pool *pgxpool.Pool
	db   repository.DB
}

func (r *TransactionRepo) With(db repository.DB) repository.TransactionRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TransactionRepo) handle() repository.DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *TransactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	const op = "postgres.TransactionRepo.Create"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO transactions(
			id, event_id, user_id, voucher_code, paid_amount, proof_url,
			status, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8, $9)`,
		t.ID, t.EventID, t.UserID, t.VoucherCode, t.PaidAmount, t.ProofURL,
		string(t.Status), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *TransactionRepo) InsertItems(ctx context.Context, items []domain.TransactionItem) error {
	const op = "postgres.TransactionRepo.InsertItems"

	db := r.handle()

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(
			`INSERT INTO transaction_items(id, transaction_id, tier_id, quantity)
			 VALUES ($1, $2, $3, $4)`,
			it.ID, it.TransactionID, it.TierID, it.Quantity,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Get retrieves a transaction by its ID.
//
// Returns:
//   - *domain.Transaction: the transaction when found.
//   - error: repository.ErrNotFound if the transaction is not found.
func (r *TransactionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	const op = "postgres.TransactionRepo.Get"

	db := r.handle()

	var t domain.Transaction
	var status string
	err := db.QueryRow(ctx,
		`SELECT id, event_id, user_id, COALESCE(voucher_code, ''),
				paid_amount, COALESCE(proof_url, ''), status,
				created_at, updated_at
		 FROM transactions WHERE id = $1`,
		id,
	).Scan(
		&t.ID, &t.EventID, &t.UserID, &t.VoucherCode, &t.PaidAmount,
		&t.ProofURL, &status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	t.Status = domain.TransactionStatus(status)

	return &t, nil
}

func (r *TransactionRepo) Items(ctx context.Context, transactionID uuid.UUID) ([]domain.TransactionItem, error) {
	const op = "postgres.TransactionRepo.Items"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, transaction_id, tier_id, quantity
		 FROM transaction_items
		 WHERE transaction_id = $1`,
		transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.TransactionItem
	for rows.Next() {
		var it domain.TransactionItem
		if err := rows.Scan(&it.ID, &it.TransactionID, &it.TierID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *TransactionRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	const op = "postgres.TransactionRepo.ListByUser"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, event_id, user_id, COALESCE(voucher_code, ''),
				paid_amount, COALESCE(proof_url, ''), status,
				created_at, updated_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	return scanTransactions(op, rows)
}

func (r *TransactionRepo) SetProof(ctx context.Context, id uuid.UUID, proofURL string) error {
	const op = "postgres.TransactionRepo.SetProof"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE transactions
			SET proof_url = $2, updated_at = now()
		 WHERE id = $1`,
		id, proofURL,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// UpdateStatusFrom is the guarded transition primitive: the status flips
// only when the current value is one of from, as a single conditional
// UPDATE. Of two racing writers (sweeper vs. admin) exactly one observes
// rows-affected == 1 and performs the accompanying seat release.
func (r *TransactionRepo) UpdateStatusFrom(
	ctx context.Context,
	id uuid.UUID,
	from []domain.TransactionStatus,
	to domain.TransactionStatus,
) (bool, error) {
	const op = "postgres.TransactionRepo.UpdateStatusFrom"

	db := r.handle()

	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	tag, err := db.Exec(ctx,
		`UPDATE transactions
			SET status = $3, updated_at = now()
		 WHERE id = $1
			AND status = ANY($2)`,
		id, fromStrs, string(to),
	)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected() == 1, nil
}

func (r *TransactionRepo) ListDeadlineElapsed(
	ctx context.Context,
	statuses []domain.TransactionStatus,
	cutoff time.Time,
	limit int,
) ([]domain.Transaction, error) {
	const op = "postgres.TransactionRepo.ListDeadlineElapsed"

	db := r.handle()

	statusStrs := make([]string, len(statuses))
	for i, s := range statuses {
		statusStrs[i] = string(s)
	}

	rows, err := db.Query(ctx,
		`SELECT id, event_id, user_id, COALESCE(voucher_code, ''),
				paid_amount, COALESCE(proof_url, ''), status,
				created_at, updated_at
		 FROM transactions
		 WHERE status = ANY($1)
			AND created_at < $2
		 ORDER BY created_at
		 LIMIT $3`,
		statusStrs, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	return scanTransactions(op, rows)
}

func scanTransactions(op string, rows pgx.Rows) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var status string
		if err := rows.Scan(
			&t.ID, &t.EventID, &t.UserID, &t.VoucherCode, &t.PaidAmount,
			&t.ProofURL, &status, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		t.Status = domain.TransactionStatus(status)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
