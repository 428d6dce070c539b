package domain

import (
	"errors"
	"fmt"

	"xperience-payments/internal/domain/model"
)

var (
	// Common domain errors
	ErrNotFound              = errors.New("payment not found")
	ErrProviderNotFound      = errors.New("payment provider not registered")
	ErrConversionUnavailable = errors.New("exchange rate unavailable")
	ErrUnsupportedConversion = errors.New("unsupported currency pair")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrTerminalStatus        = errors.New("payment already in a terminal status")
)

// Stable error codes surfaced to callers. A caller can branch on Code without
// inspecting internal causes.
const (
	CodeProviderNotFound      = "PROVIDER_NOT_FOUND"
	CodeConversionUnavailable = "CONVERSION_UNAVAILABLE"
	CodePaymentProcessing     = "PAYMENT_PROCESSING_ERROR"
	CodePaymentVerification   = "PAYMENT_VERIFICATION_ERROR"
)

// PaymentError is the single error shape the orchestrator exposes. Provider
// and transport failures are translated into it at the orchestrator boundary;
// provider-specific error types never cross into callers.
type PaymentError struct {
	Code          string
	Provider      model.PaymentProvider
	TransactionID string
	Err           error
}

func (e *PaymentError) Error() string {
	if e.TransactionID != "" {
		return fmt.Sprintf("%s: provider=%s tx=%s: %v", e.Code, e.Provider, e.TransactionID, e.Err)
	}
	return fmt.Sprintf("%s: provider=%s: %v", e.Code, e.Provider, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }
