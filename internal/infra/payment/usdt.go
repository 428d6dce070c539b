// File: internal/infra/payment/usdt.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"xperience-payments/internal/config"
	"xperience-payments/internal/domain/model"
	"xperience-payments/internal/domain/ports/adapter"
	"xperience-payments/internal/domain/ports/repository"
)

const (
	usdtExpiry   = time.Hour
	usdtDecimals = 6

	// Ethereum finality assumption differs from Bitcoin's: twelve blocks,
	// kept provider-local rather than shared.
	usdtConfirmations = 12

	// approximate BRL-per-USDT rate used when live quoting fails
	usdtFallbackRateBRL = 5.0
)

// amounts within one cent of the expected value count as a match
var usdtTolerance = decimal.RequireFromString("0.01")

// Compile-time check
var _ adapter.PaymentProvider = (*UsdtProvider)(nil)

// UsdtProvider settles ERC-20 USDT transfers on Ethereum. Verify scans the
// token-transfer log for the receive address and measures depth against the
// current block height.
type UsdtProvider struct {
	etherscanURL string
	etherscanKey string
	rpcURL       string
	contract     common.Address
	chainID      int64
	converter    adapter.Converter
	payments     repository.PaymentReader
	client       *http.Client
	log          *zerolog.Logger
}

func NewUsdtProvider(cfg config.UsdtConfig, converter adapter.Converter, payments repository.PaymentReader, logger *zerolog.Logger) *UsdtProvider {
	etherscan := cfg.EtherscanURL
	if etherscan == "" {
		etherscan = "https://api.etherscan.io/api"
	}
	chainID := cfg.ChainID
	if chainID == 0 {
		chainID = 1
	}
	return &UsdtProvider{
		etherscanURL: etherscan,
		etherscanKey: cfg.EtherscanKey,
		rpcURL:       cfg.RPCURL,
		contract:     common.HexToAddress(cfg.Contract),
		chainID:      chainID,
		converter:    converter,
		payments:     payments,
		client:       &http.Client{Timeout: 15 * time.Second},
		log:          logger,
	}
}

func (p *UsdtProvider) ID() model.PaymentProvider          { return model.ProviderUsdt }
func (p *UsdtProvider) Name() string                       { return "USDT (Tether)" }
func (p *UsdtProvider) SettlementCurrency() model.Currency { return model.CurrencyUSDT }

func (p *UsdtProvider) Process(ctx context.Context, amount float64, planID, userID string) (*model.PaymentResult, error) {
	usdtAmount, err := p.converter.Convert(ctx, amount, model.CurrencyBRL, model.CurrencyUSDT)
	if err != nil {
		// Stablecoin rates barely move; a documented approximation beats
		// refusing the payment outright.
		usdtAmount = amount / usdtFallbackRateBRL
		p.log.Warn().Err(err).
			Float64("amount_brl", amount).
			Float64("fallback_rate", usdtFallbackRateBRL).
			Msg("usdt live quote failed; using fallback rate")
	}

	id := ulid.Make().String()
	address := deriveEthereumAddress(fmt.Sprintf("%s-%s-%s", userID, planID, id))
	transactionID := "usdt-" + strings.ToLower(id)
	expiresAt := time.Now().Add(usdtExpiry)

	tokenValue := decimal.NewFromFloat(usdtAmount).Shift(usdtDecimals).Truncate(0)
	// EIP-681 transfer request against the token contract
	qr := fmt.Sprintf("ethereum:%s@%d/transfer?address=%s&uint256=%s",
		p.contract.Hex(), p.chainID, address.Hex(), tokenValue.String())

	return &model.PaymentResult{
		TransactionID:  transactionID,
		PaymentAddress: address.Hex(),
		QRCode:         qr,
		Amount:         usdtAmount,
		Currency:       model.CurrencyUSDT,
		ExpiresAt:      &expiresAt,
		Metadata: map[string]interface{}{
			"original_amount":   amount,
			"original_currency": string(model.CurrencyBRL),
			"usdt_amount":       usdtAmount,
			"payment_address":   address.Hex(),
			"contract_address":  p.contract.Hex(),
			"chain_id":          p.chainID,
			"plan_id":           planID,
			"user_id":           userID,
		},
	}, nil
}

// Verify scans token transfers to the receive address for a matching value
// after intent creation. Depth below the twelve-block threshold reads as
// processing; at or past it, completed.
func (p *UsdtProvider) Verify(ctx context.Context, transactionID string) (model.PaymentStatus, error) {
	rec, err := p.payments.Find(ctx, transactionID)
	if err != nil {
		return model.StatusFailed, nil
	}
	addrHex := metaString(rec.Metadata, "payment_address")
	if addrHex == "" {
		return model.StatusFailed, nil
	}
	address := common.HexToAddress(addrHex)
	expectedAmount, ok := metaFloat(rec.Metadata, "usdt_amount")
	if !ok {
		expectedAmount = rec.Amount
	}
	expected := decimal.NewFromFloat(expectedAmount)

	transfers, err := p.tokenTransfers(ctx, address)
	if err != nil {
		p.log.Warn().Str("tx", transactionID).Err(err).Msg("usdt verify failed")
		return model.StatusFailed, nil
	}
	if len(transfers) == 0 {
		return model.StatusPending, nil
	}

	currentBlock, err := p.currentBlockNumber(ctx)
	if err != nil {
		p.log.Warn().Str("tx", transactionID).Err(err).Msg("usdt block height lookup failed")
		return model.StatusFailed, nil
	}

	for _, t := range transfers {
		if common.HexToAddress(t.To) != address {
			continue
		}
		value, err := decimal.NewFromString(t.Value)
		if err != nil {
			continue
		}
		amount := value.Shift(-usdtDecimals)
		if amount.Sub(expected).Abs().GreaterThan(usdtTolerance) {
			continue
		}
		ts, _ := strconv.ParseInt(t.TimeStamp, 10, 64)
		if time.Unix(ts, 0).Before(rec.CreatedAt) {
			continue
		}
		block, _ := strconv.ParseInt(t.BlockNumber, 10, 64)
		confirmations := currentBlock - block
		switch {
		case confirmations >= usdtConfirmations:
			return model.StatusCompleted, nil
		case confirmations > 0:
			return model.StatusProcessing, nil
		default:
			return model.StatusPending, nil
		}
	}
	return model.StatusPending, nil
}

// Cancel: broadcast transfers cannot be voided.
func (p *UsdtProvider) Cancel(ctx context.Context, transactionID string) (bool, error) {
	return false, nil
}

type etherscanTransfer struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // token units, stringified big int
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
}

type etherscanResponse struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Result  []etherscanTransfer `json:"result"`
}

func (p *UsdtProvider) tokenTransfers(ctx context.Context, address common.Address) ([]etherscanTransfer, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "tokentx")
	q.Set("contractaddress", p.contract.Hex())
	q.Set("address", address.Hex())
	q.Set("page", "1")
	q.Set("offset", "100")
	q.Set("sort", "desc")
	if p.etherscanKey != "" {
		q.Set("apikey", p.etherscanKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.etherscanURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("etherscan status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var payload etherscanResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode transfers: %w", err)
	}
	if payload.Status != "1" {
		// "0" with message "No transactions found" is a normal empty result
		return nil, nil
	}
	return payload.Result, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *UsdtProvider) currentBlockNumber(ctx context.Context) (int64, error) {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: "eth_blockNumber", Params: []interface{}{}})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rpc status %d", resp.StatusCode)
	}
	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.Error != nil {
		return 0, fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	return strconv.ParseInt(strings.TrimPrefix(out.Result, "0x"), 16, 64)
}

// deriveEthereumAddress derives a deterministic receive address from the
// intent seed; key custody stays with the upstream wallet.
func deriveEthereumAddress(seed string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte(seed))[12:])
}
