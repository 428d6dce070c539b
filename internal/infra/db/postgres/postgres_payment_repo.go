// File: internal/infra/db/postgres/postgres_payment_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"xperience-payments/internal/domain"
	"xperience-payments/internal/domain/model"
	"xperience-payments/internal/domain/ports/repository"
)

var _ repository.PaymentStore = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, plan_id, user_id, amount, currency, provider, status, metadata, created_at, updated_at, expires_at`

func (r *paymentRepo) Save(ctx context.Context, p *model.PaymentState) error {
	const q = `
INSERT INTO payments (
  id, plan_id, user_id, amount, currency, provider, status, metadata, created_at, updated_at, expires_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
) ON CONFLICT (id) DO UPDATE SET
  plan_id=$2, user_id=$3, amount=$4, currency=$5, provider=$6, status=$7, metadata=$8, updated_at=$10, expires_at=$11;`

	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, q, p.ID, p.PlanID, p.UserID, p.Amount, p.Currency, p.Provider, p.Status, meta, p.CreatedAt, p.UpdatedAt, p.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
			// Integrity violations mean bad input, not a broken store.
			return fmt.Errorf("save payment: %w", domain.ErrInvalidArgument)
		}
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) Find(ctx context.Context, id string) (*model.PaymentState, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1;`
	row := r.pool.QueryRow(ctx, q, id)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return p, nil
}

// UpdateStatus is a silent no-op for unknown ids. The monitor may attempt a
// status write after the reconciler has already purged the row.
func (r *paymentRepo) UpdateStatus(ctx context.Context, id string, status model.PaymentStatus) error {
	const q = `UPDATE payments SET status=$2, updated_at=NOW() WHERE id=$1;`
	if _, err := r.pool.Exec(ctx, q, id, status); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

func (r *paymentRepo) ListByUser(ctx context.Context, userID string) ([]*model.PaymentState, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE user_id=$1 ORDER BY created_at DESC;`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, olderThan time.Time, limit int) ([]*model.PaymentState, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE status IN ('pending','processing') AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func scanPayment(row pgx.Row) (*model.PaymentState, error) {
	p := &model.PaymentState{}
	var meta []byte
	if err := row.Scan(&p.ID, &p.PlanID, &p.UserID, &p.Amount, &p.Currency, &p.Provider, &p.Status, &meta, &p.CreatedAt, &p.UpdatedAt, &p.ExpiresAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return p, nil
}

func collectPayments(rows pgx.Rows) ([]*model.PaymentState, error) {
	var out []*model.PaymentState
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return out, nil
}
