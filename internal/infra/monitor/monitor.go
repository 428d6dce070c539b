// File: internal/infra/monitor/monitor.go
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"xperience-payments/internal/domain/model"
)

// Verifier is the slice of the orchestrator a monitor needs: poll a status
// and, on its own timeout, designate the transaction expired locally.
type Verifier interface {
	VerifyPayment(ctx context.Context, provider model.PaymentProvider, transactionID string) (model.PaymentStatus, error)
	ExpirePayment(ctx context.Context, transactionID string) error
}

// Clock abstracts time so tests can drive the loop deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func RealClock() Clock { return realClock{} }

// Params are the provider-class polling parameters. They are constants per
// class, not per-request configurable, to keep provider behavior predictable.
type Params struct {
	Interval time.Duration
	Timeout  time.Duration
}

var (
	fiatParams    = Params{Interval: 3 * time.Second, Timeout: 15 * time.Minute}
	onChainParams = Params{Interval: 30 * time.Second, Timeout: time.Hour}
)

// ParamsFor returns the polling cadence for a provider: short and tight for
// instant fiat rails, long and patient for on-chain settlement.
func ParamsFor(p model.PaymentProvider) Params {
	switch p {
	case model.ProviderBitcoin, model.ProviderUsdt:
		return onChainParams
	default:
		return fiatParams
	}
}

// Monitor polls one transaction until it reaches a terminal status or its
// timeout elapses. One monitor owns one transaction id for its lifetime.
type Monitor struct {
	verifier Verifier
	provider model.PaymentProvider
	txID     string
	params   Params
	clock    Clock
	log      *zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func New(verifier Verifier, provider model.PaymentProvider, txID string, params Params, clock Clock, logger *zerolog.Logger) *Monitor {
	if clock == nil {
		clock = RealClock()
	}
	return &Monitor{
		verifier: verifier,
		provider: provider,
		txID:     txID,
		params:   params,
		clock:    clock,
		log:      logger,
		done:     make(chan struct{}),
	}
}

// Start launches the polling loop and returns a channel that yields the final
// status exactly once. The channel closes without a value when the parent
// context is cancelled first.
func (m *Monitor) Start(parent context.Context) <-chan model.PaymentStatus {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel

	// The timeout is anchored here, not in the loop goroutine, so the
	// deadline never depends on goroutine scheduling.
	deadline := m.clock.Now().Add(m.params.Timeout)

	result := make(chan model.PaymentStatus, 1)
	go m.loop(ctx, deadline, result)
	return result
}

// Stop cancels the loop and waits for it to finish. Safe to call more than
// once.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Monitor) loop(ctx context.Context, deadline time.Time, result chan<- model.PaymentStatus) {
	defer close(m.done)
	defer close(result)

	// First check runs immediately: instant rails often settle before the
	// first interval elapses.
	if st, final := m.check(ctx); final {
		result <- st
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(m.params.Interval):
			if st, final := m.check(ctx); final {
				result <- st
				return
			}
			if m.clock.Now().After(deadline) {
				// Local designation only: the rail is not told anything.
				if err := m.verifier.ExpirePayment(ctx, m.txID); err != nil {
					m.log.Warn().Str("tx", m.txID).Err(err).Msg("expire after timeout failed")
				}
				result <- model.StatusExpired
				return
			}
		}
	}
}

func (m *Monitor) check(ctx context.Context) (model.PaymentStatus, bool) {
	status, err := m.verifier.VerifyPayment(ctx, m.provider, m.txID)
	if err != nil {
		// Verification errors are retryable; the next tick tries again.
		m.log.Warn().Str("tx", m.txID).Err(err).Msg("verify tick failed")
		return "", false
	}
	return status, status.Terminal()
}
