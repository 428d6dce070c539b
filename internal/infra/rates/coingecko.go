// File: internal/infra/rates/coingecko.go
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"xperience-payments/internal/domain"
	"xperience-payments/internal/domain/model"
	"xperience-payments/internal/domain/ports/adapter"
)

const (
	maxRetries = 3
	retryDelay = time.Second
)

// Compile-time check
var _ adapter.RateSource = (*CoinGecko)(nil)

// CoinGecko quotes exchange rates from the CoinGecko simple-price API.
// Responses look like { "<asset>": { "<fiat>": <rate> } }.
type CoinGecko struct {
	baseURL string
	client  *http.Client
	log     *zerolog.Logger
}

func NewCoinGecko(baseURL string, logger *zerolog.Logger) *CoinGecko {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	return &CoinGecko{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     logger,
	}
}

// Rate returns the multiplicative factor for the given ordered pair. Only the
// pairs the oracle can answer are supported; anything else fails with
// ErrUnsupportedConversion so the cache never stores a made-up rate.
func (c *CoinGecko) Rate(ctx context.Context, from, to model.Currency) (float64, error) {
	switch {
	case from == model.CurrencyBRL && to == model.CurrencyBTC:
		price, err := c.price(ctx, "bitcoin", "brl")
		if err != nil {
			return 0, err
		}
		return 1 / price, nil // oracle quotes BRL per BTC; invert for BTC per BRL
	case from == model.CurrencyBTC && to == model.CurrencyBRL:
		return c.price(ctx, "bitcoin", "brl")
	case from == model.CurrencyBRL && to == model.CurrencyUSDT:
		price, err := c.price(ctx, "tether", "brl")
		if err != nil {
			return 0, err
		}
		return 1 / price, nil
	case from == model.CurrencyUSDT && to == model.CurrencyBRL:
		return c.price(ctx, "tether", "brl")
	case from == model.CurrencyBTC && to == model.CurrencyUSDT:
		// BTC in USD approximates BTC in USDT.
		return c.price(ctx, "bitcoin", "usd")
	case from == model.CurrencyUSDT && to == model.CurrencyBTC:
		price, err := c.price(ctx, "bitcoin", "usd")
		if err != nil {
			return 0, err
		}
		return 1 / price, nil
	default:
		return 0, fmt.Errorf("rate %s->%s: %w", from, to, domain.ErrUnsupportedConversion)
	}
}

// price fetches one asset/fiat quote with bounded retries. 429 responses
// honor the Retry-After header.
func (c *CoinGecko) price(ctx context.Context, assetID, vs string) (float64, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s",
		c.baseURL, url.QueryEscape(assetID), url.QueryEscape(vs))

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		price, retryAfter, err := c.fetch(ctx, endpoint, assetID, vs)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}

		delay := retryDelay * time.Duration(attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}
	return 0, fmt.Errorf("coingecko %s/%s: %w", assetID, vs, lastErr)
}

func (c *CoinGecko) fetch(ctx context.Context, endpoint, assetID, vs string) (price float64, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return 0, retryAfter, fmt.Errorf("rate limited (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, err
	}
	var payload map[string]map[string]float64
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, 0, fmt.Errorf("decode response: %w", err)
	}
	price, ok := payload[assetID][vs]
	if !ok || price <= 0 {
		return 0, 0, fmt.Errorf("no %s/%s quote in response", assetID, vs)
	}
	return price, 0, nil
}
