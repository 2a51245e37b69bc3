// Package executor submits buy and sell instructions to the PumpPortal
// trading API on behalf of a custodial wallet.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/capwatch/internal/types"
)

// sellAll liquidates the whole position regardless of denomination.
const sellAll = "100%"

// Config contains executor options
type Config struct {
	BaseURL         string
	SlippagePercent int
	PriorityFeeSOL  decimal.Decimal
	Pool            string
	Timeout         time.Duration
}

// Executor is the trade execution gateway
type Executor struct {
	config     Config
	httpClient *http.Client
}

// New creates an executor
func New(cfg Config) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Pool == "" {
		cfg.Pool = "auto"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Executor{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// tradeRequest is the body of POST /api/trade
type tradeRequest struct {
	Action           string  `json:"action"`
	Mint             string  `json:"mint"`
	Amount           string  `json:"amount"`
	DenominatedInSol string  `json:"denominatedInSol"`
	Slippage         int     `json:"slippage"`
	PriorityFee      float64 `json:"priorityFee"`
	Pool             string  `json:"pool"`
}

type tradeResponse struct {
	Signature string   `json:"signature"`
	Error     string   `json:"error"`
	Errors    []string `json:"errors"`
}

// Buy spends amountSOL on mint.
func (e *Executor) Buy(ctx context.Context, apiKey, mint string, amountSOL decimal.Decimal) (*types.OrderResult, error) {
	if !amountSOL.IsPositive() {
		return nil, types.NewGatewayError(types.GatewayTrade, "buy", errors.New("amount must be positive"))
	}

	return e.submit(ctx, apiKey, types.OrderRequest{
		Side:             types.OrderSideBuy,
		Mint:             mint,
		Amount:           amountSOL,
		DenominatedInSOL: true,
	})
}

// Sell liquidates the whole position in mint. denominatedInSOL should be false
// when the position size is known in token units.
func (e *Executor) Sell(ctx context.Context, apiKey, mint string, denominatedInSOL bool) (*types.OrderResult, error) {
	return e.submit(ctx, apiKey, types.OrderRequest{
		Side:             types.OrderSideSell,
		Mint:             mint,
		DenominatedInSOL: denominatedInSOL,
	})
}

func (e *Executor) submit(ctx context.Context, apiKey string, order types.OrderRequest) (*types.OrderResult, error) {
	op := string(order.Side)

	sig, err := e.postTrade(ctx, apiKey, order)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"side": order.Side,
			"mint": order.Mint,
		}).WithError(err).Warn("executor: trade rejected")
		return nil, types.NewGatewayError(types.GatewayTrade, op, err)
	}

	logrus.WithFields(logrus.Fields{
		"side": order.Side,
		"mint": order.Mint,
		"tx":   sig,
	}).Info("executor: trade submitted")

	return &types.OrderResult{
		Side:      order.Side,
		Mint:      order.Mint,
		Signature: sig,
		SentAt:    time.Now(),
	}, nil
}

func (e *Executor) postTrade(ctx context.Context, apiKey string, order types.OrderRequest) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", errors.New("API key is empty")
	}

	payload := e.buildRequest(order)
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal trade: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/trade?api-key=%s", e.config.BaseURL, url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// url.Error repeats the endpoint, which carries the API key
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	return parseTradeResponse(resp.StatusCode, bodyBytes)
}

func (e *Executor) buildRequest(order types.OrderRequest) tradeRequest {
	amount := sellAll
	if order.Side == types.OrderSideBuy {
		amount = order.Amount.String()
	}

	priorityFee, _ := e.config.PriorityFeeSOL.Float64()

	return tradeRequest{
		Action:           string(order.Side),
		Mint:             order.Mint,
		Amount:           amount,
		DenominatedInSol: fmt.Sprintf("%t", order.DenominatedInSOL),
		Slippage:         e.config.SlippagePercent,
		PriorityFee:      priorityFee,
		Pool:             e.config.Pool,
	}
}

// parseTradeResponse extracts the transaction signature, or the API's
// reason for rejecting the trade.
func parseTradeResponse(status int, body []byte) (string, error) {
	var parsed tradeResponse
	jsonErr := json.Unmarshal(body, &parsed)

	if jsonErr == nil {
		if parsed.Error != "" {
			return "", fmt.Errorf("%w: %s", types.ErrRejected, parsed.Error)
		}
		if len(parsed.Errors) > 0 {
			return "", fmt.Errorf("%w: %s", types.ErrRejected, strings.Join(parsed.Errors, "; "))
		}
	}

	if status != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", status, truncate(string(body), 200))
	}

	if jsonErr != nil {
		return "", fmt.Errorf("%w: %v", types.ErrMalformedResponse, jsonErr)
	}
	if parsed.Signature == "" {
		return "", fmt.Errorf("%w: no signature in response", types.ErrMalformedResponse)
	}

	return parsed.Signature, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
