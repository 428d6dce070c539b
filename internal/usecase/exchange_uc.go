// File: internal/usecase/exchange_uc.go
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"xperience-payments/internal/domain"
	"xperience-payments/internal/domain/model"
	"xperience-payments/internal/domain/ports/adapter"
	"xperience-payments/internal/infra/metrics"
)

// DefaultRateTTL is how long a fetched exchange rate stays usable without a
// refresh attempt.
const DefaultRateTTL = 5 * time.Minute

// warmPairs are preloaded at startup so the first conversion does not pay the
// oracle round trip.
var warmPairs = [][2]model.Currency{
	{model.CurrencyBRL, model.CurrencyBTC},
	{model.CurrencyBRL, model.CurrencyUSDT},
	{model.CurrencyBTC, model.CurrencyUSDT},
}

// Compile-time check
var _ adapter.Converter = (*ExchangeRates)(nil)

// ExchangeRates is the time-bounded exchange-rate cache. It is read-mostly
// and written by whichever caller refreshes; duplicate concurrent refreshes
// are tolerated (last writer wins, each write is individually valid).
type ExchangeRates struct {
	source adapter.RateSource
	ttl    time.Duration

	mu    sync.RWMutex
	rates map[string]model.CurrencyConversion

	log *zerolog.Logger
}

func NewExchangeRates(source adapter.RateSource, ttl time.Duration, logger *zerolog.Logger) *ExchangeRates {
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	return &ExchangeRates{
		source: source,
		ttl:    ttl,
		rates:  make(map[string]model.CurrencyConversion),
		log:    logger,
	}
}

// Convert converts amount from one currency to another. Same-currency
// conversion returns the input unchanged without touching the cache. A fresh
// cached rate is reused without an oracle call; a missing or expired entry
// triggers a refresh first. When the oracle fails, a stale entry is still
// used; with no entry at all the conversion fails with ErrConversionUnavailable.
func (e *ExchangeRates) Convert(ctx context.Context, amount float64, from, to model.Currency) (float64, error) {
	if from == to {
		return amount, nil
	}

	key := pairKey(from, to)
	conv, ok := e.lookup(key)
	if ok && !e.expired(conv) {
		metrics.IncRateLookup(key, "hit")
		return amount * conv.Rate, nil
	}

	if err := e.refresh(ctx, from, to); err != nil {
		if ok {
			// Stale entry beats no conversion at all.
			metrics.IncRateLookup(key, "stale")
			e.log.Warn().Str("pair", key).Err(err).Msg("oracle refresh failed; using stale rate")
			return amount * conv.Rate, nil
		}
		metrics.IncRateLookup(key, "unavailable")
		return 0, fmt.Errorf("convert %s: %w", key, domain.ErrConversionUnavailable)
	}

	conv, ok = e.lookup(key)
	if !ok {
		return 0, fmt.Errorf("convert %s: %w", key, domain.ErrConversionUnavailable)
	}
	metrics.IncRateLookup(key, "miss")
	return amount * conv.Rate, nil
}

// Warm preloads the known currency pairs. Failures are logged, never fatal:
// each pair loads independently so one dead quote does not block the others.
func (e *ExchangeRates) Warm(ctx context.Context) {
	for _, p := range warmPairs {
		if err := e.refresh(ctx, p[0], p[1]); err != nil {
			e.log.Warn().Str("pair", pairKey(p[0], p[1])).Err(err).Msg("rate warmup failed")
		}
	}
}

// refresh fetches a fresh rate and stores both directions of the pair.
func (e *ExchangeRates) refresh(ctx context.Context, from, to model.Currency) error {
	rate, err := e.source.Rate(ctx, from, to)
	if err != nil {
		metrics.IncOracleFetch(pairKey(from, to), "error")
		return err
	}
	if rate <= 0 {
		metrics.IncOracleFetch(pairKey(from, to), "invalid")
		return fmt.Errorf("rate %s: non-positive rate %v: %w", pairKey(from, to), rate, domain.ErrInvalidArgument)
	}
	metrics.IncOracleFetch(pairKey(from, to), "ok")

	now := time.Now()
	e.mu.Lock()
	e.rates[pairKey(from, to)] = model.CurrencyConversion{From: from, To: to, Rate: rate, Timestamp: now}
	e.rates[pairKey(to, from)] = model.CurrencyConversion{From: to, To: from, Rate: 1 / rate, Timestamp: now}
	e.mu.Unlock()
	return nil
}

func (e *ExchangeRates) lookup(key string) (model.CurrencyConversion, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	conv, ok := e.rates[key]
	return conv, ok
}

func (e *ExchangeRates) expired(conv model.CurrencyConversion) bool {
	return time.Since(conv.Timestamp) > e.ttl
}

func pairKey(from, to model.Currency) string {
	return string(from) + "_" + string(to)
}
