// File: internal/infra/payment/mocks_test.go
package payment

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"xperience-payments/internal/domain"
	"xperience-payments/internal/domain/model"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// stubConverter applies a fixed rate per pair, or fails when rates are nil.
type stubConverter struct {
	rates map[string]float64
	err   error
}

func (s *stubConverter) Convert(ctx context.Context, amount float64, from, to model.Currency) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if from == to {
		return amount, nil
	}
	r, ok := s.rates[string(from)+"_"+string(to)]
	if !ok {
		return 0, errors.New("no rate")
	}
	return amount * r, nil
}

// memReader is a minimal read-only payment lookup for verify tests.
type memReader struct {
	mu    sync.RWMutex
	store map[string]*model.PaymentState
}

func newMemReader() *memReader {
	return &memReader{store: make(map[string]*model.PaymentState)}
}

func (m *memReader) put(p *model.PaymentState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[p.ID] = p
}

func (m *memReader) Find(ctx context.Context, id string) (*model.PaymentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
