// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"xperience-payments/internal/domain"
	"xperience-payments/internal/domain/model"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memPaymentStore is a small in-memory implementation used by unit tests.
type memPaymentStore struct {
	mu      sync.RWMutex
	store   map[string]*model.PaymentState
	saveErr error // used by tests to simulate save failures
}

func newMemPaymentStore() *memPaymentStore {
	return &memPaymentStore{store: make(map[string]*model.PaymentState)}
}

func (m *memPaymentStore) Save(ctx context.Context, p *model.PaymentState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *memPaymentStore) Find(ctx context.Context, id string) (*model.PaymentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentStore) UpdateStatus(ctx context.Context, id string, status model.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}

func (m *memPaymentStore) ListByUser(ctx context.Context, userID string) ([]*model.PaymentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PaymentState
	for _, p := range m.store {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memPaymentStore) ListPendingOlderThan(ctx context.Context, olderThan time.Time, limit int) ([]*model.PaymentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PaymentState
	for _, p := range m.store {
		if !p.Status.Terminal() && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeProvider is a configurable payment provider for orchestrator tests.
type fakeProvider struct {
	id       model.PaymentProvider
	currency model.Currency

	processFunc func(ctx context.Context, amount float64, planID, userID string) (*model.PaymentResult, error)
	verifyFunc  func(ctx context.Context, transactionID string) (model.PaymentStatus, error)
	cancelFunc  func(ctx context.Context, transactionID string) (bool, error)
}

func (f *fakeProvider) ID() model.PaymentProvider          { return f.id }
func (f *fakeProvider) Name() string                       { return string(f.id) }
func (f *fakeProvider) SettlementCurrency() model.Currency { return f.currency }

func (f *fakeProvider) Process(ctx context.Context, amount float64, planID, userID string) (*model.PaymentResult, error) {
	if f.processFunc != nil {
		return f.processFunc(ctx, amount, planID, userID)
	}
	return &model.PaymentResult{
		TransactionID: string(f.id) + "-tx-1",
		Amount:        amount,
		Currency:      f.currency,
	}, nil
}

func (f *fakeProvider) Verify(ctx context.Context, transactionID string) (model.PaymentStatus, error) {
	if f.verifyFunc != nil {
		return f.verifyFunc(ctx, transactionID)
	}
	return model.StatusPending, nil
}

func (f *fakeProvider) Cancel(ctx context.Context, transactionID string) (bool, error) {
	if f.cancelFunc != nil {
		return f.cancelFunc(ctx, transactionID)
	}
	return false, nil
}

// staticRateSource returns fixed rates and counts calls so cache tests can
// assert on oracle traffic.
type staticRateSource struct {
	mu    sync.Mutex
	rates map[string]float64
	err   error
	calls int
}

func newStaticRateSource(rates map[string]float64) *staticRateSource {
	return &staticRateSource{rates: rates}
}

func (s *staticRateSource) Rate(ctx context.Context, from, to model.Currency) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	r, ok := s.rates[string(from)+"_"+string(to)]
	if !ok {
		return 0, domain.ErrUnsupportedConversion
	}
	return r, nil
}

func (s *staticRateSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
