// File: internal/infra/payment/pix.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"xperience-payments/internal/config"
	"xperience-payments/internal/domain"
	"xperience-payments/internal/domain/model"
	"xperience-payments/internal/domain/ports/adapter"
)

const (
	pixExpiry    = 15 * time.Minute
	pixMinAmount = 1.0
	pixMaxAmount = 10000.0
)

// Compile-time check
var _ adapter.PaymentProvider = (*PixProvider)(nil)

// PixProvider settles instant fiat transfers through the MercadoPago gateway.
// A payment intent is a pix-only checkout preference; the gateway reports a
// single authoritative status per charge, so there is no confirmation count.
type PixProvider struct {
	baseURL     string
	accessToken string
	webhookURL  string
	client      *http.Client
	log         *zerolog.Logger
}

func NewPixProvider(cfg config.PixConfig, logger *zerolog.Logger) *PixProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Sandbox {
			baseURL = "https://api.mercadopago.com/sandbox"
		} else {
			baseURL = "https://api.mercadopago.com"
		}
	}
	return &PixProvider{
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		webhookURL:  cfg.WebhookURL,
		client:      &http.Client{Timeout: 15 * time.Second},
		log:         logger,
	}
}

func (p *PixProvider) ID() model.PaymentProvider          { return model.ProviderPix }
func (p *PixProvider) Name() string                       { return "PIX" }
func (p *PixProvider) SettlementCurrency() model.Currency { return model.CurrencyBRL }

// mpPreference is the request body for a pix-only checkout preference.
type mpPreference struct {
	Items []mpItem `json:"items"`
	PaymentMethods struct {
		ExcludedPaymentTypes   []mpMethodID `json:"excluded_payment_types"`
		IncludedPaymentMethods []mpMethodID `json:"included_payment_methods"`
	} `json:"payment_methods"`
	ExternalReference string `json:"external_reference"`
	NotificationURL   string `json:"notification_url,omitempty"`
	Expires           bool   `json:"expires"`
	ExpirationDateTo  string `json:"expiration_date_to,omitempty"`
}

type mpItem struct {
	Title     string  `json:"title"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

type mpMethodID struct {
	ID string `json:"id"`
}

type mpPreferenceResponse struct {
	ID           string `json:"id"`
	InitPoint    string `json:"init_point"`
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
}

type mpPayment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
	DateCreated       string  `json:"date_created"`
}

type mpSearchResponse struct {
	Results []mpPayment `json:"results"`
}

func (p *PixProvider) Process(ctx context.Context, amount float64, planID, userID string) (*model.PaymentResult, error) {
	if amount < pixMinAmount || amount > pixMaxAmount {
		return nil, fmt.Errorf("pix amount %.2f outside R$%.2f..R$%.2f: %w",
			amount, pixMinAmount, pixMaxAmount, domain.ErrInvalidArgument)
	}

	externalRef := fmt.Sprintf("%s-%s-%s", userID, planID, ulid.Make().String())
	expiresAt := time.Now().Add(pixExpiry)

	pref := mpPreference{
		Items: []mpItem{{
			Title:     fmt.Sprintf("Xperience - Plano %s", planID),
			UnitPrice: amount,
			Quantity:  1,
		}},
		ExternalReference: externalRef,
		NotificationURL:   p.webhookURL,
		Expires:           true,
		ExpirationDateTo:  expiresAt.Format(time.RFC3339),
	}
	pref.PaymentMethods.ExcludedPaymentTypes = []mpMethodID{
		{ID: "credit_card"}, {ID: "debit_card"}, {ID: "ticket"},
	}
	pref.PaymentMethods.IncludedPaymentMethods = []mpMethodID{{ID: "pix"}}

	var resp mpPreferenceResponse
	if err := p.post(ctx, "/checkout/preferences", pref, &resp); err != nil {
		return nil, fmt.Errorf("create pix preference: %w", err)
	}

	return &model.PaymentResult{
		TransactionID: resp.ID,
		PaymentURL:    resp.InitPoint,
		QRCode:        resp.QRCode,
		QRCodeBase64:  resp.QRCodeBase64,
		Amount:        amount,
		Currency:      model.CurrencyBRL,
		ExpiresAt:     &expiresAt,
		Metadata: map[string]interface{}{
			"external_reference": externalRef,
			"preference_id":      resp.ID,
			"plan_id":            planID,
			"user_id":            userID,
		},
	}, nil
}

// Verify searches the gateway for payments against the preference and maps
// the most recent one onto the shared status set. No payment yet means the
// charge is still pending.
func (p *PixProvider) Verify(ctx context.Context, transactionID string) (model.PaymentStatus, error) {
	payments, err := p.searchPayments(ctx, transactionID)
	if err != nil {
		p.log.Warn().Str("tx", transactionID).Err(err).Msg("pix verify failed")
		return model.StatusFailed, nil
	}
	if len(payments) == 0 {
		return model.StatusPending, nil
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].DateCreated > payments[j].DateCreated
	})
	return mapGatewayStatus(payments[0].Status), nil
}

// Cancel: a generated pix charge cannot be voided, it can only expire.
func (p *PixProvider) Cancel(ctx context.Context, transactionID string) (bool, error) {
	return false, nil
}

// ResolveWebhook fetches the payment named by a gateway notification and
// translates it to a transaction id and status. The returned id is the
// payment's external reference when present, the gateway payment id otherwise.
func (p *PixProvider) ResolveWebhook(ctx context.Context, paymentID string) (string, model.PaymentStatus, error) {
	var pay mpPayment
	if err := p.get(ctx, "/v1/payments/"+url.PathEscape(paymentID), &pay); err != nil {
		return "", "", fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}
	txID := pay.ExternalReference
	if txID == "" {
		txID = paymentID
	}
	return txID, mapGatewayStatus(pay.Status), nil
}

func (p *PixProvider) searchPayments(ctx context.Context, preferenceID string) ([]mpPayment, error) {
	q := url.Values{}
	q.Set("preference_id", preferenceID)
	q.Set("sort", "date_created")
	q.Set("criteria", "desc")

	var resp mpSearchResponse
	if err := p.get(ctx, "/v1/payments/search?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (p *PixProvider) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, out)
}

func (p *PixProvider) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	return p.do(req, out)
}

func (p *PixProvider) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// mapGatewayStatus folds MercadoPago charge statuses onto the shared set.
func mapGatewayStatus(s string) model.PaymentStatus {
	switch s {
	case "pending":
		return model.StatusPending
	case "approved":
		return model.StatusCompleted
	case "authorized", "in_process", "in_mediation":
		return model.StatusProcessing
	case "rejected", "charged_back":
		return model.StatusFailed
	case "cancelled", "refunded":
		return model.StatusCancelled
	default:
		return model.StatusPending
	}
}
