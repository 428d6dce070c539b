// File: internal/infra/payment/pix_test.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"xperience-payments/internal/config"
	"xperience-payments/internal/domain"
	"xperience-payments/internal/domain/model"
)

func newPixProvider(baseURL string) *PixProvider {
	return NewPixProvider(config.PixConfig{
		BaseURL:     baseURL,
		AccessToken: "test-token",
		WebhookURL:  "https://example.com/api/webhooks/pix",
	}, newTestLogger())
}

func TestPixProvider_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pix-only preference", func(t *testing.T) {
		// --- Arrange ---
		var gotAuth string
		var gotPref mpPreference
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/checkout/preferences" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			gotAuth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&gotPref)
			_ = json.NewEncoder(w).Encode(mpPreferenceResponse{
				ID:           "mp-123",
				InitPoint:    "https://mercadopago.test/checkout/mp-123",
				QRCode:       "pix-copy-paste",
				QRCodeBase64: "cGl4",
			})
		}))
		defer srv.Close()
		p := newPixProvider(srv.URL)

		// --- Act ---
		result, err := p.Process(ctx, 99.90, "plan-1", "user-1")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if result.TransactionID != "mp-123" {
			t.Errorf("expected transaction id mp-123, got %s", result.TransactionID)
		}
		if result.PaymentURL == "" || result.QRCode == "" {
			t.Error("expected checkout URL and QR code")
		}
		if result.Currency != model.CurrencyBRL {
			t.Errorf("expected BRL, got %s", result.Currency)
		}
		if result.ExpiresAt == nil {
			t.Error("expected an expiry")
		}
		if gotAuth != "Bearer test-token" {
			t.Errorf("expected bearer auth, got %q", gotAuth)
		}
		if len(gotPref.PaymentMethods.IncludedPaymentMethods) != 1 ||
			gotPref.PaymentMethods.IncludedPaymentMethods[0].ID != "pix" {
			t.Error("expected pix to be the only included payment method")
		}
		if gotPref.ExternalReference == "" {
			t.Error("expected an external reference")
		}
	})

	t.Run("rejects amounts outside the allowed range", func(t *testing.T) {
		p := newPixProvider("http://unused.invalid")

		for _, amount := range []float64{0.5, 10000.01} {
			_, err := p.Process(ctx, amount, "plan-1", "user-1")
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("amount %v: expected ErrInvalidArgument, got: %v", amount, err)
			}
		}
	})

	t.Run("propagates gateway failures", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}))
		defer srv.Close()
		p := newPixProvider(srv.URL)

		if _, err := p.Process(ctx, 100, "plan-1", "user-1"); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestPixProvider_Verify(t *testing.T) {
	ctx := context.Background()

	search := func(t *testing.T, payments ...mpPayment) *httptest.Server {
		t.Helper()
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/payments/search" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.URL.Query().Get("preference_id"); got != "mp-123" {
				t.Errorf("expected preference_id mp-123, got %q", got)
			}
			_ = json.NewEncoder(w).Encode(mpSearchResponse{Results: payments})
		}))
	}

	t.Run("no payments yet reads as pending", func(t *testing.T) {
		srv := search(t)
		defer srv.Close()

		status, err := newPixProvider(srv.URL).Verify(ctx, "mp-123")
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if status != model.StatusPending {
			t.Errorf("expected pending, got %s", status)
		}
	})

	t.Run("maps gateway statuses onto the shared set", func(t *testing.T) {
		cases := map[string]model.PaymentStatus{
			"approved":     model.StatusCompleted,
			"authorized":   model.StatusProcessing,
			"in_process":   model.StatusProcessing,
			"in_mediation": model.StatusProcessing,
			"rejected":     model.StatusFailed,
			"charged_back": model.StatusFailed,
			"cancelled":    model.StatusCancelled,
			"refunded":     model.StatusCancelled,
			"pending":      model.StatusPending,
			"something":    model.StatusPending,
		}
		for gateway, want := range cases {
			srv := search(t, mpPayment{ID: 1, Status: gateway, DateCreated: "2026-01-01T00:00:00Z"})
			status, err := newPixProvider(srv.URL).Verify(ctx, "mp-123")
			srv.Close()
			if err != nil {
				t.Fatalf("%s: verify: %v", gateway, err)
			}
			if status != want {
				t.Errorf("%s: expected %s, got %s", gateway, want, status)
			}
		}
	})

	t.Run("uses the most recent payment", func(t *testing.T) {
		srv := search(t,
			mpPayment{ID: 1, Status: "rejected", DateCreated: "2026-01-01T00:00:00Z"},
			mpPayment{ID: 2, Status: "approved", DateCreated: "2026-01-02T00:00:00Z"},
		)
		defer srv.Close()

		status, err := newPixProvider(srv.URL).Verify(ctx, "mp-123")
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if status != model.StatusCompleted {
			t.Errorf("expected completed from the newest payment, got %s", status)
		}
	})

	t.Run("gateway outage reads as failed without an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer srv.Close()

		status, err := newPixProvider(srv.URL).Verify(ctx, "mp-123")
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if status != model.StatusFailed {
			t.Errorf("expected failed, got %s", status)
		}
	})
}

func TestPixProvider_Cancel(t *testing.T) {
	cancelled, err := newPixProvider("http://unused.invalid").Cancel(context.Background(), "mp-123")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cancelled {
		t.Error("pix charges cannot be voided; expected false")
	}
}

func TestPixProvider_ResolveWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves payment to external reference and status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/payments/42" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			_ = json.NewEncoder(w).Encode(mpPayment{
				ID:                42,
				Status:            "approved",
				ExternalReference: "user-1-plan-1-01ARZ",
			})
		}))
		defer srv.Close()

		txID, status, err := newPixProvider(srv.URL).ResolveWebhook(ctx, "42")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if txID != "user-1-plan-1-01ARZ" {
			t.Errorf("expected the external reference, got %q", txID)
		}
		if status != model.StatusCompleted {
			t.Errorf("expected completed, got %s", status)
		}
	})

	t.Run("falls back to the gateway payment id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(mpPayment{ID: 42, Status: "pending"})
		}))
		defer srv.Close()

		txID, _, err := newPixProvider(srv.URL).ResolveWebhook(ctx, "42")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if txID != "42" {
			t.Errorf("expected the payment id, got %q", txID)
		}
	})
}
