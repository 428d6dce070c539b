// File: internal/infra/redis/payment_state_repo.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"xperience-payments/internal/domain"
	"xperience-payments/internal/domain/model"
	"xperience-payments/internal/domain/ports/repository"
)

const paymentKeyPrefix = "payments:"

var _ repository.PaymentStore = (*paymentStateRepo)(nil)

// paymentStateRepo keeps each payment as a JSON value under payments:<id>.
// List operations walk the keyspace with SCAN, which is fine at the volumes a
// single deployment sees; a busier install should use the postgres backend.
type paymentStateRepo struct {
	cli RedisClient
}

func NewPaymentStateRepo(cli RedisClient) *paymentStateRepo {
	return &paymentStateRepo{cli: cli}
}

func paymentKey(id string) string { return paymentKeyPrefix + id }

func (r *paymentStateRepo) Save(ctx context.Context, p *model.PaymentState) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payment: %w", err)
	}
	if err := r.cli.Set(ctx, paymentKey(p.ID), raw, 0); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

func (r *paymentStateRepo) Find(ctx context.Context, id string) (*model.PaymentState, error) {
	raw, err := r.cli.Get(ctx, paymentKey(id))
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	p := &model.PaymentState{}
	if err := json.Unmarshal([]byte(raw), p); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	return p, nil
}

// UpdateStatus is a silent no-op for unknown ids.
func (r *paymentStateRepo) UpdateStatus(ctx context.Context, id string, status model.PaymentStatus) error {
	p, err := r.Find(ctx, id)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil
		}
		return err
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	return r.Save(ctx, p)
}

func (r *paymentStateRepo) ListByUser(ctx context.Context, userID string) ([]*model.PaymentState, error) {
	all, err := r.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.PaymentState
	for _, p := range all {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *paymentStateRepo) ListPendingOlderThan(ctx context.Context, olderThan time.Time, limit int) ([]*model.PaymentState, error) {
	if limit <= 0 {
		limit = 100
	}
	all, err := r.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.PaymentState
	for _, p := range all {
		if p.Status.Terminal() || !p.CreatedAt.Before(olderThan) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *paymentStateRepo) scanAll(ctx context.Context) ([]*model.PaymentState, error) {
	var (
		out    []*model.PaymentState
		cursor uint64
	)
	for {
		keys, next, err := r.cli.Scan(ctx, cursor, paymentKeyPrefix+"*", 100)
		if err != nil {
			return nil, fmt.Errorf("scan payments: %w", err)
		}
		for _, key := range keys {
			raw, err := r.cli.Get(ctx, key)
			if err != nil {
				if IsNil(err) {
					continue
				}
				return nil, fmt.Errorf("read payment %s: %w", key, err)
			}
			p := &model.PaymentState{}
			if err := json.Unmarshal([]byte(raw), p); err != nil {
				// Skip malformed entries instead of failing the sweep.
				continue
			}
			out = append(out, p)
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}
