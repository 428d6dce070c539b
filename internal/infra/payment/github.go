// File: internal/infra/payment/github.go
package payment

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"xperience-payments/internal/config"
	"xperience-payments/internal/domain"
	"xperience-payments/internal/domain/model"
	"xperience-payments/internal/domain/ports/adapter"
)

const (
	// approximate BRL->USD multiplier; the sponsorship rail quotes in whole
	// dollars, so precise FX buys nothing here
	githubUsdPerBrl = 0.18
	// minimum charge the rail accepts
	githubMinimumUsd = 1.0

	githubSponsorsURL = "https://github.com/sponsors"
)

// Compile-time check
var _ adapter.PaymentProvider = (*GitHubProvider)(nil)

// GitHubProvider routes payments through a sponsorship deep link. The rail
// exposes no polling API: Verify can never observe completion on its own, so
// settlement arrives exclusively through the webhook / manual-confirmation
// side channel.
type GitHubProvider struct {
	username string
	baseURL  string
	log      *zerolog.Logger
}

func NewGitHubProvider(cfg config.GitHubConfig, logger *zerolog.Logger) *GitHubProvider {
	return &GitHubProvider{
		username: cfg.Username,
		baseURL:  githubSponsorsURL,
		log:      logger,
	}
}

func (p *GitHubProvider) ID() model.PaymentProvider          { return model.ProviderGitHub }
func (p *GitHubProvider) Name() string                       { return "GitHub Pay" }
func (p *GitHubProvider) SettlementCurrency() model.Currency { return model.CurrencyUSD }

func (p *GitHubProvider) Process(ctx context.Context, amount float64, planID, userID string) (*model.PaymentResult, error) {
	if p.username == "" {
		return nil, fmt.Errorf("github sponsor username not configured: %w", domain.ErrInvalidArgument)
	}

	usdAmount := math.Ceil(amount * githubUsdPerBrl)
	if usdAmount < githubMinimumUsd {
		usdAmount = githubMinimumUsd
	}

	externalRef := fmt.Sprintf("%s-%s-%s", userID, planID, ulid.Make().String())
	transactionID := "github-" + externalRef

	q := url.Values{}
	q.Set("sponsor", p.username)
	q.Set("frequency", "one-time")
	q.Set("amount", strconv.FormatFloat(usdAmount, 'f', -1, 64))
	q.Set("preview", "true")
	sponsorshipURL := fmt.Sprintf("%s/%s/sponsorships?%s", p.baseURL, p.username, q.Encode())

	return &model.PaymentResult{
		TransactionID: transactionID,
		PaymentURL:    sponsorshipURL,
		Amount:        usdAmount,
		Currency:      model.CurrencyUSD,
		Metadata: map[string]interface{}{
			"username":           p.username,
			"sponsorship_url":    sponsorshipURL,
			"frequency":          "one-time",
			"external_reference": externalRef,
			"original_amount":    amount,
			"original_currency":  string(model.CurrencyBRL),
			"plan_id":            planID,
			"user_id":            userID,
		},
	}, nil
}

// Verify always reports pending: the rail has nothing to poll. Completion is
// declared externally through ConfirmPayment.
func (p *GitHubProvider) Verify(ctx context.Context, transactionID string) (model.PaymentStatus, error) {
	p.log.Debug().Str("tx", transactionID).Msg("github sponsorship awaits manual confirmation")
	return model.StatusPending, nil
}

// Cancel: sponsorships are managed on the rail itself.
func (p *GitHubProvider) Cancel(ctx context.Context, transactionID string) (bool, error) {
	return false, nil
}

// SponsorshipEvent is the webhook payload the sponsorship rail delivers.
type SponsorshipEvent struct {
	Action      string       `json:"action" validate:"required"`
	Sponsorship *Sponsorship `json:"sponsorship" validate:"required"`
}

type Sponsorship struct {
	NodeID string `json:"node_id" validate:"required"`
	Tier   struct {
		MonthlyPriceInCents int64 `json:"monthly_price_in_cents"`
	} `json:"tier"`
}

// TranslateWebhook maps a sponsorship event onto a transaction id and
// terminal status. Sponsorship node ids do not map back to intents
// automatically; when no record matches, operator confirmation remains the
// authoritative path.
func (p *GitHubProvider) TranslateWebhook(ev SponsorshipEvent) (string, model.PaymentStatus, float64, error) {
	if ev.Sponsorship == nil {
		return "", "", 0, fmt.Errorf("missing sponsorship payload: %w", domain.ErrInvalidArgument)
	}
	transactionID := "github-" + ev.Sponsorship.NodeID
	amount := float64(ev.Sponsorship.Tier.MonthlyPriceInCents) / 100

	switch ev.Action {
	case "created":
		return transactionID, model.StatusCompleted, amount, nil
	case "cancelled":
		return transactionID, model.StatusCancelled, amount, nil
	default:
		return "", "", 0, fmt.Errorf("unsupported sponsorship action %q: %w", ev.Action, domain.ErrInvalidArgument)
	}
}
