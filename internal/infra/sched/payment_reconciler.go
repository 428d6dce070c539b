// File: internal/infra/sched/payment_reconciler.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"xperience-payments/internal/domain/ports/repository"
	"xperience-payments/internal/infra/worker"
	"xperience-payments/internal/usecase"
)

// PaymentReconciler periodically scans for stale non-terminal payments and
// re-verifies them against the rails. This covers cases where a per-payment
// monitor was lost to a crash or the webhook never arrived.
type PaymentReconciler struct {
	uc         usecase.PaymentUseCase
	payments   repository.PaymentStore
	pool       *worker.Pool
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending payment must be to retry
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.PaymentUseCase, payments repository.PaymentStore, pool *worker.Pool, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &PaymentReconciler{uc: uc, payments: payments, pool: pool, interval: interval, staleAfter: staleAfter, log: logger}
}

func (w *PaymentReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.payments.ListPendingOlderThan(ctx, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: list pending failed")
		return
	}
	now := time.Now()
	for _, p := range pending {
		p := p
		task := func(ctx context.Context) error {
			if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
				return w.uc.ExpirePayment(ctx, p.ID)
			}
			_, err := w.uc.VerifyPayment(ctx, p.Provider, p.ID)
			return err
		}
		if err := w.pool.Submit(task); err != nil {
			w.log.Warn().Str("payment", p.ID).Err(err).Msg("reconciler: submit failed")
			return
		}
	}
}
