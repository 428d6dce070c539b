//go:build !integration

// File: internal/infra/redis/payment_state_repo_test.go
package redis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"xperience-payments/internal/domain"
	"xperience-payments/internal/domain/model"
)

// memRedis is an in-memory stand-in for the client interface.
type memRedis struct {
	mu   sync.RWMutex
	data map[string]string
}

func newMemRedis() *memRedis {
	return &memRedis{data: make(map[string]string)}
}

func (m *memRedis) Ping(ctx context.Context) error { return nil }

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case string:
		m.data[key] = v
	case []byte:
		m.data[key] = string(v)
	default:
		return errors.New("unsupported value type")
	}
	return nil
}

func (m *memRedis) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, 0, nil
}

func (m *memRedis) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memRedis) Close() error { return nil }

func seedPayment(id, userID string, status model.PaymentStatus, createdAt time.Time) *model.PaymentState {
	return &model.PaymentState{
		ID:        id,
		UserID:    userID,
		Provider:  model.ProviderPix,
		Status:    status,
		Amount:    100,
		Currency:  model.CurrencyBRL,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestPaymentStateRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("save and find round trip", func(t *testing.T) {
		repo := NewPaymentStateRepo(newMemRedis())
		p := seedPayment("tx-1", "user-1", model.StatusPending, time.Now())
		p.Metadata = map[string]interface{}{"external_reference": "ref-1"}

		if err := repo.Save(ctx, p); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := repo.Find(ctx, "tx-1")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.ID != "tx-1" || got.UserID != "user-1" || got.Status != model.StatusPending {
			t.Errorf("unexpected payment: %+v", got)
		}
		if got.Metadata["external_reference"] != "ref-1" {
			t.Errorf("expected metadata to survive, got %v", got.Metadata)
		}
	})

	t.Run("missing key reads as not found", func(t *testing.T) {
		repo := NewPaymentStateRepo(newMemRedis())
		_, err := repo.Find(ctx, "no-such")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("update status on a missing id is a no-op", func(t *testing.T) {
		repo := NewPaymentStateRepo(newMemRedis())
		if err := repo.UpdateStatus(ctx, "no-such", model.StatusCompleted); err != nil {
			t.Errorf("expected no-op, got: %v", err)
		}
	})

	t.Run("update status rewrites the record", func(t *testing.T) {
		repo := NewPaymentStateRepo(newMemRedis())
		_ = repo.Save(ctx, seedPayment("tx-1", "user-1", model.StatusPending, time.Now()))

		if err := repo.UpdateStatus(ctx, "tx-1", model.StatusCompleted); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, _ := repo.Find(ctx, "tx-1")
		if got.Status != model.StatusCompleted {
			t.Errorf("expected completed, got %s", got.Status)
		}
	})

	t.Run("lists a user's payments newest first", func(t *testing.T) {
		repo := NewPaymentStateRepo(newMemRedis())
		now := time.Now()
		_ = repo.Save(ctx, seedPayment("tx-old", "user-1", model.StatusPending, now.Add(-2*time.Hour)))
		_ = repo.Save(ctx, seedPayment("tx-new", "user-1", model.StatusPending, now))
		_ = repo.Save(ctx, seedPayment("tx-other", "user-2", model.StatusPending, now))

		got, err := repo.ListByUser(ctx, "user-1")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 2 || got[0].ID != "tx-new" || got[1].ID != "tx-old" {
			t.Errorf("unexpected order: %v", got)
		}
	})

	t.Run("pending sweep skips terminal and fresh payments", func(t *testing.T) {
		repo := NewPaymentStateRepo(newMemRedis())
		now := time.Now()
		_ = repo.Save(ctx, seedPayment("tx-stale", "user-1", model.StatusPending, now.Add(-time.Hour)))
		_ = repo.Save(ctx, seedPayment("tx-done", "user-1", model.StatusCompleted, now.Add(-time.Hour)))
		_ = repo.Save(ctx, seedPayment("tx-fresh", "user-1", model.StatusPending, now))

		got, err := repo.ListPendingOlderThan(ctx, now.Add(-time.Minute), 10)
		if err != nil {
			t.Fatalf("list pending: %v", err)
		}
		if len(got) != 1 || got[0].ID != "tx-stale" {
			t.Errorf("expected only tx-stale, got %v", got)
		}
	})
}
