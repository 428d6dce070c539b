// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"xperience-payments/internal/domain"
	"xperience-payments/internal/domain/model"
	"xperience-payments/internal/domain/ports/adapter"
	"xperience-payments/internal/domain/ports/repository"
	"xperience-payments/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// Providers lists the registered providers, for presenting payment options.
	Providers() []adapter.PaymentProvider
	// ProcessPayment routes a payment to the named provider and persists the
	// initial pending record. amount is in the caller's base currency (BRL);
	// currency is the provider's settlement currency.
	ProcessPayment(ctx context.Context, provider model.PaymentProvider, amount float64, currency model.Currency, planID, userID string) (*model.PaymentResult, error)
	// VerifyPayment polls the provider for the current status and persists it.
	VerifyPayment(ctx context.Context, provider model.PaymentProvider, transactionID string) (model.PaymentStatus, error)
	// CancelPayment is best-effort: unknown providers, unsupported rails and
	// failing cancel calls all degrade to false, never an error.
	CancelPayment(ctx context.Context, provider model.PaymentProvider, transactionID string) bool
	// ConfirmPayment is the manual-confirmation side channel (webhooks,
	// operator action). It forces a terminal status through the same
	// monotonic state machine.
	ConfirmPayment(ctx context.Context, transactionID string, status model.PaymentStatus) error
	// ExpirePayment marks a still-pending transaction expired. It is the
	// monitoring loop's local timeout designation; the provider is not told.
	ExpirePayment(ctx context.Context, transactionID string) error
	GetPayment(ctx context.Context, transactionID string) (*model.PaymentState, error)
	PaymentHistory(ctx context.Context, userID string) ([]*model.PaymentState, error)
	ConvertCurrency(ctx context.Context, amount float64, from, to model.Currency) (float64, error)
}

type paymentUC struct {
	providers map[model.PaymentProvider]adapter.PaymentProvider
	rates     *ExchangeRates
	store     repository.PaymentStore
	log       *zerolog.Logger
}

// NewPaymentUseCase builds the orchestrator with its owned rate cache and
// store. Providers are registered at construction; there is no global
// registry.
func NewPaymentUseCase(rates *ExchangeRates, store repository.PaymentStore, logger *zerolog.Logger, providers ...adapter.PaymentProvider) *paymentUC {
	uc := &paymentUC{
		providers: make(map[model.PaymentProvider]adapter.PaymentProvider, len(providers)),
		rates:     rates,
		store:     store,
		log:       logger,
	}
	for _, p := range providers {
		uc.providers[p.ID()] = p
	}
	return uc
}

func (u *paymentUC) Providers() []adapter.PaymentProvider {
	out := make([]adapter.PaymentProvider, 0, len(u.providers))
	for _, p := range u.providers {
		out = append(out, p)
	}
	return out
}

func (u *paymentUC) ProcessPayment(ctx context.Context, provider model.PaymentProvider, amount float64, currency model.Currency, planID, userID string) (*model.PaymentResult, error) {
	p, ok := u.providers[provider]
	if !ok {
		return nil, &domain.PaymentError{Code: domain.CodeProviderNotFound, Provider: provider, Err: domain.ErrProviderNotFound}
	}
	if currency != p.SettlementCurrency() {
		return nil, &domain.PaymentError{
			Code:     domain.CodePaymentProcessing,
			Provider: provider,
			Err:      domain.ErrInvalidArgument,
		}
	}

	result, err := p.Process(ctx, amount, planID, userID)
	if err != nil {
		metrics.IncPayment(string(provider), "rejected")
		code := domain.CodePaymentProcessing
		if errors.Is(err, domain.ErrConversionUnavailable) {
			code = domain.CodeConversionUnavailable
		}
		return nil, &domain.PaymentError{Code: code, Provider: provider, Err: err}
	}

	now := time.Now()
	state := &model.PaymentState{
		ID:        result.TransactionID,
		PlanID:    planID,
		UserID:    userID,
		Amount:    result.Amount,
		Currency:  result.Currency,
		Provider:  provider,
		Status:    model.StatusPending,
		Metadata:  result.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: result.ExpiresAt,
	}
	if err := u.store.Save(ctx, state); err != nil {
		// The rail intent already exists; losing the local record must not
		// void the payment. Verification can still run against the rail.
		u.log.Error().Str("tx", state.ID).Err(err).Msg("save payment state failed")
	}
	metrics.IncPayment(string(provider), "initiated")
	u.log.Info().
		Str("provider", string(provider)).
		Str("tx", result.TransactionID).
		Float64("amount", result.Amount).
		Str("currency", string(result.Currency)).
		Msg("payment initiated")
	return result, nil
}

func (u *paymentUC) VerifyPayment(ctx context.Context, provider model.PaymentProvider, transactionID string) (model.PaymentStatus, error) {
	p, ok := u.providers[provider]
	if !ok {
		return "", &domain.PaymentError{
			Code:          domain.CodeProviderNotFound,
			Provider:      provider,
			TransactionID: transactionID,
			Err:           domain.ErrProviderNotFound,
		}
	}

	status, err := p.Verify(ctx, transactionID)
	if err != nil {
		metrics.IncVerification(string(provider), "error")
		return "", &domain.PaymentError{
			Code:          domain.CodePaymentVerification,
			Provider:      provider,
			TransactionID: transactionID,
			Err:           err,
		}
	}
	metrics.IncVerification(string(provider), string(status))
	u.persistStatus(ctx, transactionID, status)
	return status, nil
}

func (u *paymentUC) CancelPayment(ctx context.Context, provider model.PaymentProvider, transactionID string) bool {
	p, ok := u.providers[provider]
	if !ok {
		return false
	}
	cancelled, err := p.Cancel(ctx, transactionID)
	if err != nil {
		// Cancellation is advisory; errors degrade to false.
		u.log.Warn().Str("tx", transactionID).Err(err).Msg("cancel failed")
		return false
	}
	if cancelled {
		u.persistStatus(ctx, transactionID, model.StatusCancelled)
	}
	return cancelled
}

func (u *paymentUC) ConfirmPayment(ctx context.Context, transactionID string, status model.PaymentStatus) error {
	if !status.Terminal() {
		return domain.ErrInvalidArgument
	}
	rec, err := u.store.Find(ctx, transactionID)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		if rec.Status == status {
			return nil // idempotent re-confirmation
		}
		return domain.ErrTerminalStatus
	}
	if err := u.store.UpdateStatus(ctx, transactionID, status); err != nil {
		return err
	}
	metrics.IncPayment(string(rec.Provider), string(status))
	u.log.Info().Str("tx", transactionID).Str("status", string(status)).Msg("payment confirmed")
	return nil
}

func (u *paymentUC) ExpirePayment(ctx context.Context, transactionID string) error {
	rec, err := u.store.Find(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.Status.Terminal() {
		return nil
	}
	metrics.IncPayment(string(rec.Provider), string(model.StatusExpired))
	return u.store.UpdateStatus(ctx, transactionID, model.StatusExpired)
}

func (u *paymentUC) GetPayment(ctx context.Context, transactionID string) (*model.PaymentState, error) {
	return u.store.Find(ctx, transactionID)
}

func (u *paymentUC) PaymentHistory(ctx context.Context, userID string) ([]*model.PaymentState, error) {
	return u.store.ListByUser(ctx, userID)
}

func (u *paymentUC) ConvertCurrency(ctx context.Context, amount float64, from, to model.Currency) (float64, error) {
	return u.rates.Convert(ctx, amount, from, to)
}

// persistStatus writes a verified status through the monotonic state machine.
// A missing record is tolerated (the store is a cache, not the source of
// truth) and terminal records are never resurrected.
func (u *paymentUC) persistStatus(ctx context.Context, transactionID string, status model.PaymentStatus) {
	rec, err := u.store.Find(ctx, transactionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("tx", transactionID).Err(err).Msg("load payment state failed")
		}
		return
	}
	if rec.Status.Terminal() || rec.Status == status {
		return
	}
	if err := u.store.UpdateStatus(ctx, transactionID, status); err != nil {
		u.log.Warn().Str("tx", transactionID).Err(err).Msg("update payment status failed")
	}
}
