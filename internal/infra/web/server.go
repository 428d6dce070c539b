// File: internal/infra/web/server.go
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"xperience-payments/internal/domain/model"
	"xperience-payments/internal/infra/logging"
	"xperience-payments/internal/infra/payment"
	"xperience-payments/internal/usecase"
)

// PixWebhookResolver maps a gateway notification to a local transaction.
type PixWebhookResolver interface {
	ResolveWebhook(ctx context.Context, paymentID string) (string, model.PaymentStatus, error)
}

// GitHubWebhookTranslator maps a sponsorship event to a local transaction.
type GitHubWebhookTranslator interface {
	TranslateWebhook(ev payment.SponsorshipEvent) (string, model.PaymentStatus, float64, error)
}

// MonitorLauncher starts a background polling loop for a freshly created
// transaction. Wired in main so the server stays transport-only.
type MonitorLauncher func(provider model.PaymentProvider, transactionID string)

type Server struct {
	payments usecase.PaymentUseCase
	pix      PixWebhookResolver
	github   GitHubWebhookTranslator
	launch   MonitorLauncher
	auth     *AuthManager
	apiKey   string
	log      *zerolog.Logger
}

func NewServer(
	payments usecase.PaymentUseCase,
	pix PixWebhookResolver,
	github GitHubWebhookTranslator,
	launch MonitorLauncher,
	auth *AuthManager,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		payments: payments,
		pix:      pix,
		github:   github,
		launch:   launch,
		auth:     auth,
		apiKey:   apiKey,
		log:      logger,
	}
}

// Router builds the full route tree. Webhooks stay outside the auth group:
// the gateways cannot present our credentials.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(traceMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/webhooks/pix", s.pixWebhookHandler())
	r.Post("/api/webhooks/github", s.githubWebhookHandler())

	r.Post("/api/v1/admin/login", s.loginHandler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/api/v1/admin/logout", s.logoutHandler())
		r.Post("/api/v1/payments", s.createPaymentHandler())
		r.Get("/api/v1/payments/{id}", s.getPaymentHandler())
		r.Get("/api/v1/payments", s.listPaymentsHandler())
		r.Post("/api/v1/payments/{id}/confirm", s.confirmPaymentHandler())
		r.Post("/api/v1/payments/{id}/cancel", s.cancelPaymentHandler())
		r.Get("/api/v1/rates/convert", s.convertHandler())
	})

	return r
}

// traceMiddleware tags every request with a trace id, echoed back to the
// caller so gateway callbacks can be correlated with our logs.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set("X-Trace-Id", traceID)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), traceID)))
	})
}

// authMiddleware accepts either the static admin API key or a minted session.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if hdr := r.Header.Get("Authorization"); hdr == "Bearer "+s.apiKey {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := s.auth.ParseFromRequest(r); err == nil {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}
