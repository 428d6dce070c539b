// File: internal/infra/payment/bitcoin.go
package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"xperience-payments/internal/config"
	"xperience-payments/internal/domain/model"
	"xperience-payments/internal/domain/ports/adapter"
	"xperience-payments/internal/domain/ports/repository"
)

const (
	bitcoinExpiry = time.Hour
	// one confirmation is enough to treat the transfer as final on this chain
	btcConfirmations = 1
)

var (
	satsPerBtc = decimal.New(1, 8)
	// amounts within this distance of the expected value count as a match
	btcTolerance = decimal.RequireFromString("0.00001")
)

// Compile-time check
var _ adapter.PaymentProvider = (*BitcoinProvider)(nil)

// BitcoinProvider settles on-chain BTC transfers. The fiat amount is fixed
// into BTC at intent-creation time via the shared rate cache, then Verify
// scans the receive address for a matching output. The provider holds no
// keys; it only watches an address.
type BitcoinProvider struct {
	esploraURL string
	converter  adapter.Converter
	payments   repository.PaymentReader
	client     *http.Client
	log        *zerolog.Logger
}

func NewBitcoinProvider(cfg config.BitcoinConfig, converter adapter.Converter, payments repository.PaymentReader, logger *zerolog.Logger) *BitcoinProvider {
	esplora := cfg.EsploraURL
	if esplora == "" {
		esplora = "https://blockstream.info/api"
	}
	return &BitcoinProvider{
		esploraURL: esplora,
		converter:  converter,
		payments:   payments,
		client:     &http.Client{Timeout: 15 * time.Second},
		log:        logger,
	}
}

func (p *BitcoinProvider) ID() model.PaymentProvider          { return model.ProviderBitcoin }
func (p *BitcoinProvider) Name() string                       { return "Bitcoin" }
func (p *BitcoinProvider) SettlementCurrency() model.Currency { return model.CurrencyBTC }

func (p *BitcoinProvider) Process(ctx context.Context, amount float64, planID, userID string) (*model.PaymentResult, error) {
	btcAmount, err := p.converter.Convert(ctx, amount, model.CurrencyBRL, model.CurrencyBTC)
	if err != nil {
		return nil, fmt.Errorf("convert BRL to BTC: %w", err)
	}

	id := ulid.Make().String()
	address := deriveBitcoinAddress(fmt.Sprintf("%s-%s-%s", userID, planID, id))
	transactionID := "btc-" + strings.ToLower(id)
	expiresAt := time.Now().Add(bitcoinExpiry)
	qr := fmt.Sprintf("bitcoin:%s?amount=%.8f&label=Xperience-%s", address, btcAmount, planID)

	return &model.PaymentResult{
		TransactionID:  transactionID,
		PaymentAddress: address,
		QRCode:         qr,
		Amount:         btcAmount,
		Currency:       model.CurrencyBTC,
		ExpiresAt:      &expiresAt,
		Metadata: map[string]interface{}{
			"original_amount":   amount,
			"original_currency": string(model.CurrencyBRL),
			"btc_amount":        btcAmount,
			"payment_address":   address,
			"plan_id":           planID,
			"user_id":           userID,
		},
	}, nil
}

// Verify scans the receive address for an output matching the expected amount
// at or after intent creation. An unconfirmed match is processing; a match
// mined at least btcConfirmations deep is completed. Unknown transaction ids
// and explorer outages both read as failed.
func (p *BitcoinProvider) Verify(ctx context.Context, transactionID string) (model.PaymentStatus, error) {
	rec, err := p.payments.Find(ctx, transactionID)
	if err != nil {
		return model.StatusFailed, nil
	}
	address := metaString(rec.Metadata, "payment_address")
	if address == "" {
		return model.StatusFailed, nil
	}
	expectedAmount, ok := metaFloat(rec.Metadata, "btc_amount")
	if !ok {
		expectedAmount = rec.Amount
	}
	expected := decimal.NewFromFloat(expectedAmount)

	txs, err := p.addressTxs(ctx, address)
	if err != nil {
		p.log.Warn().Str("tx", transactionID).Err(err).Msg("bitcoin verify failed")
		return model.StatusFailed, nil
	}

	for _, tx := range txs {
		received := receivedAmount(tx, address)
		if received.Sub(expected).Abs().GreaterThan(btcTolerance) {
			continue
		}
		ts := time.Now()
		if tx.Status.BlockTime > 0 {
			ts = time.Unix(tx.Status.BlockTime, 0)
		}
		if ts.Before(rec.CreatedAt) {
			continue // payment to a reused address predating this intent
		}
		if !tx.Status.Confirmed {
			return model.StatusProcessing, nil
		}
		tip, err := p.tipHeight(ctx)
		if err != nil {
			p.log.Warn().Str("tx", transactionID).Err(err).Msg("bitcoin tip height failed")
			return model.StatusFailed, nil
		}
		if tip-tx.Status.BlockHeight+1 >= btcConfirmations {
			return model.StatusCompleted, nil
		}
		return model.StatusProcessing, nil
	}
	return model.StatusPending, nil
}

// Cancel: broadcast transactions cannot be voided.
func (p *BitcoinProvider) Cancel(ctx context.Context, transactionID string) (bool, error) {
	return false, nil
}

type esploraTx struct {
	Txid   string `json:"txid"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
		BlockTime   int64 `json:"block_time"`
	} `json:"status"`
	Vout []struct {
		ScriptpubkeyAddress string `json:"scriptpubkey_address"`
		Value               int64  `json:"value"` // satoshis
	} `json:"vout"`
}

func (p *BitcoinProvider) addressTxs(ctx context.Context, address string) ([]esploraTx, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/address/%s/txs", p.esploraURL, address), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("esplora status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var txs []esploraTx
	if err := json.Unmarshal(body, &txs); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return txs, nil
}

// tipHeight reads the current chain tip so Verify can measure confirmation
// depth for a mined transaction.
func (p *BitcoinProvider) tipHeight(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.esploraURL+"/blocks/tip/height", nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("esplora status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode tip height: %w", err)
	}
	return height, nil
}

// receivedAmount sums the outputs paying the watched address, in BTC.
func receivedAmount(tx esploraTx, address string) decimal.Decimal {
	total := decimal.Zero
	for _, out := range tx.Vout {
		if out.ScriptpubkeyAddress == address {
			total = total.Add(decimal.NewFromInt(out.Value).Div(satsPerBtc))
		}
	}
	return total
}

// deriveBitcoinAddress derives a deterministic receive address from the
// intent seed. Custody stays upstream; this module never sees keys.
// TODO: derive from the configured wallet xpub instead of the seed hash.
func deriveBitcoinAddress(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return "1" + hex.EncodeToString(sum[:])[:25]
}
