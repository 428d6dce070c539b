// File: internal/infra/web/handlers.go
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"xperience-payments/internal/domain"
	"xperience-payments/internal/domain/model"
	"xperience-payments/internal/infra/logging"
	"xperience-payments/internal/infra/payment"
)

var validate = validator.New()

type loginRequest struct {
	APIKey string `json:"apiKey" validate:"required"`
}

type createPaymentRequest struct {
	Provider string  `json:"provider" validate:"required,oneof=pix bitcoin usdt github"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency" validate:"required,oneof=BRL BTC USDT USD"`
	PlanID   string  `json:"planId" validate:"required"`
	UserID   string  `json:"userId" validate:"required"`
}

type confirmPaymentRequest struct {
	Status string `json:"status" validate:"required,oneof=completed cancelled failed"`
}

// Gateway notification shape: {"action":"payment.updated","data":{"id":"123"}}.
type pixWebhookRequest struct {
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (s *Server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeAndValidate(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if s.apiKey == "" || req.APIKey != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		token, err := s.auth.Mint(w)
		if err != nil {
			http.Error(w, "Failed to mint session", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

func (s *Server) logoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.auth.Clear(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) createPaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req createPaymentRequest
		if err := decodeAndValidate(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		provider := model.PaymentProvider(req.Provider)
		result, err := s.payments.ProcessPayment(ctx, provider, req.Amount, model.Currency(req.Currency), req.PlanID, req.UserID)
		if err != nil {
			s.writePaymentError(w, err)
			return
		}

		if s.launch != nil {
			s.launch(provider, result.TransactionID)
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

func (s *Server) getPaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.payments.GetPayment(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Payment not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to load payment", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) listPaymentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		if userID == "" {
			http.Error(w, "Missing user query parameter", http.StatusBadRequest)
			return
		}
		history, err := s.payments.PaymentHistory(r.Context(), userID)
		if err != nil {
			http.Error(w, "Failed to list payments", http.StatusInternalServerError)
			return
		}
		if history == nil {
			history = []*model.PaymentState{}
		}
		writeJSON(w, http.StatusOK, history)
	}
}

func (s *Server) confirmPaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmPaymentRequest
		if err := decodeAndValidate(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		id := chi.URLParam(r, "id")
		if err := s.payments.ConfirmPayment(r.Context(), id, model.PaymentStatus(req.Status)); err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				http.Error(w, "Payment not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrTerminalStatus):
				http.Error(w, "Payment already settled", http.StatusConflict)
			case errors.Is(err, domain.ErrInvalidArgument):
				http.Error(w, "Invalid status", http.StatusBadRequest)
			default:
				http.Error(w, "Failed to confirm payment", http.StatusInternalServerError)
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) cancelPaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, err := s.payments.GetPayment(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Payment not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to load payment", http.StatusInternalServerError)
			return
		}
		cancelled := s.payments.CancelPayment(r.Context(), p.Provider, id)
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
	}
}

func (s *Server) convertHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		amount, err := strconv.ParseFloat(q.Get("amount"), 64)
		if err != nil || amount <= 0 {
			http.Error(w, "Invalid amount", http.StatusBadRequest)
			return
		}
		from, to := model.Currency(q.Get("from")), model.Currency(q.Get("to"))
		converted, err := s.payments.ConvertCurrency(r.Context(), amount, from, to)
		if err != nil {
			s.writePaymentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"amount":    amount,
			"from":      from,
			"to":        to,
			"converted": converted,
		})
	}
}

// pixWebhookHandler always acks with 200 so the gateway stops retrying;
// transient failures are picked up by the reconciler sweep instead.
func (s *Server) pixWebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logging.With(ctx, s.log)

		var req pixWebhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Data.ID == "" {
			w.WriteHeader(http.StatusOK)
			return
		}

		txID, status, err := s.pix.ResolveWebhook(ctx, req.Data.ID)
		if err != nil {
			log.Warn().Str("gateway_id", req.Data.ID).Err(err).Msg("pix webhook resolve failed")
			w.WriteHeader(http.StatusOK)
			return
		}
		if status.Terminal() {
			if err := s.payments.ConfirmPayment(ctx, txID, status); err != nil {
				log.Warn().Str("tx", txID).Err(err).Msg("pix webhook confirm failed")
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) githubWebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logging.With(ctx, s.log)

		var ev payment.SponsorshipEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := validate.Struct(&ev); err != nil {
			w.WriteHeader(http.StatusOK)
			return
		}

		txID, status, amountUSD, err := s.github.TranslateWebhook(ev)
		if err != nil {
			log.Debug().Str("action", ev.Action).Err(err).Msg("ignoring sponsorship event")
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := s.payments.ConfirmPayment(ctx, txID, status); err != nil {
			log.Warn().Str("tx", txID).Float64("usd", amountUSD).Err(err).Msg("sponsorship confirm failed")
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) writePaymentError(w http.ResponseWriter, err error) {
	var pe *domain.PaymentError
	if errors.As(err, &pe) {
		status := http.StatusBadGateway
		switch pe.Code {
		case domain.CodeProviderNotFound:
			status = http.StatusBadRequest
		case domain.CodeConversionUnavailable:
			status = http.StatusServiceUnavailable
		}
		if errors.Is(err, domain.ErrInvalidArgument) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{
			"code":  pe.Code,
			"error": pe.Error(),
		})
		return
	}
	if errors.Is(err, domain.ErrConversionUnavailable) {
		http.Error(w, "Conversion unavailable", http.StatusServiceUnavailable)
		return
	}
	if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrUnsupportedConversion) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

func decodeAndValidate(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return validate.Struct(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
