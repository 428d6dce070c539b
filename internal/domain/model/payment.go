package model

import "time"

// PaymentProvider identifies one of the supported payment rails. The set is
// closed: routing happens over these constants, not arbitrary strings.
type PaymentProvider string

const (
	ProviderPix     PaymentProvider = "pix"
	ProviderBitcoin PaymentProvider = "bitcoin"
	ProviderUsdt    PaymentProvider = "usdt"
	ProviderGitHub  PaymentProvider = "github"
)

func (p PaymentProvider) Valid() bool {
	switch p {
	case ProviderPix, ProviderBitcoin, ProviderUsdt, ProviderGitHub:
		return true
	}
	return false
}

type Currency string

const (
	CurrencyBRL  Currency = "BRL"
	CurrencyBTC  Currency = "BTC"
	CurrencyUSDT Currency = "USDT"
	CurrencyUSD  Currency = "USD"
)

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"    // intent created; no funds observed yet
	StatusProcessing PaymentStatus = "processing" // settlement initiated / below confirmation threshold
	StatusCompleted  PaymentStatus = "completed"  // settled
	StatusFailed     PaymentStatus = "failed"     // rail rejected, or transport/metadata failure
	StatusExpired    PaymentStatus = "expired"    // time limit elapsed with no funds observed
	StatusCancelled  PaymentStatus = "cancelled"  // explicit cancel succeeded
)

// Terminal reports whether no further transitions may be persisted for a
// payment in this status. Retrying a terminal payment means creating a new
// transaction id, never mutating the old record.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// PaymentState is the persisted lifecycle record for one transaction. Only
// Status and UpdatedAt mutate after creation.
type PaymentState struct {
	ID        string                 `json:"id"`
	PlanID    string                 `json:"planId"`
	UserID    string                 `json:"userId"`
	Amount    float64                `json:"amount"`   // converted amount actually due
	Currency  Currency               `json:"currency"` // provider settlement currency
	Provider  PaymentProvider        `json:"provider"`
	Status    PaymentStatus          `json:"status"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	ExpiresAt *time.Time             `json:"expiresAt,omitempty"`
}

// PaymentResult is what a provider returns from Process: everything the
// caller needs to complete the payment on the external rail.
type PaymentResult struct {
	TransactionID  string                 `json:"transactionId"`
	PaymentURL     string                 `json:"paymentUrl,omitempty"`
	PaymentAddress string                 `json:"paymentAddress,omitempty"`
	QRCode         string                 `json:"qrCode,omitempty"`
	QRCodeBase64   string                 `json:"qrCodeBase64,omitempty"`
	Amount         float64                `json:"amount"`
	Currency       Currency               `json:"currency"`
	ExpiresAt      *time.Time             `json:"expiresAt,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// CurrencyConversion is one cached exchange-rate entry. The inverse pair is
// always cached alongside it with rate 1/Rate.
type CurrencyConversion struct {
	From      Currency
	To        Currency
	Rate      float64 // amountTo = amountFrom * Rate
	Timestamp time.Time
}
