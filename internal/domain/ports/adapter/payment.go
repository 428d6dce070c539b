package adapter

import (
	"context"

	"xperience-payments/internal/domain/model"
)

// RateSource quotes a multiplicative exchange rate for an ordered currency
// pair (amountTo = amountFrom * rate). Failures must surface as errors so the
// caller can fall back to cached entries; a source never silently defaults.
type RateSource interface {
	Rate(ctx context.Context, from, to model.Currency) (float64, error)
}

// Converter converts amounts between currencies using whichever rate cache
// the orchestrator owns. Crypto providers use it to fix the on-chain amount
// at intent-creation time.
type Converter interface {
	Convert(ctx context.Context, amount float64, from, to model.Currency) (float64, error)
}

// PaymentProvider is the hex port for payment rails.
//
// Process allocates a new payment intent on the external rail and returns
// enough data for the caller to complete payment. A failure here must leave
// no core-visible side effect; persistence is the orchestrator's job.
//
// Verify queries the rail for the current settlement state. It is idempotent
// and safe to poll. Transport failures and unknown transaction ids both map
// to StatusFailed with a nil error; callers cannot distinguish "not found"
// from "rail outage" through this contract.
//
// Cancel attempts to void a still-pending intent. Rails with no cancellation
// concept return (false, nil).
type PaymentProvider interface {
	ID() model.PaymentProvider
	Name() string
	SettlementCurrency() model.Currency

	Process(ctx context.Context, amount float64, planID, userID string) (*model.PaymentResult, error)
	Verify(ctx context.Context, transactionID string) (model.PaymentStatus, error)
	Cancel(ctx context.Context, transactionID string) (bool, error)
}
