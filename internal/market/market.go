// Package market fetches token valuations and the SOL/USD reference rate.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/capwatch/internal/cache"
	"github.com/capwatch/internal/types"
)

// liquidityMultiplier approximates a valuation when no FDV is published.
const liquidityMultiplier = 10

// Config contains market client options
type Config struct {
	DexScreenerURL string
	CoinGeckoURL   string

	// RequestsPerSecond caps calls to the token endpoint across all monitors
	RequestsPerSecond float64

	// RateTTL is how long a reference rate is reused
	RateTTL time.Duration

	Timeout time.Duration
}

// Client is the market data gateway
type Client struct {
	httpClient *http.Client
	dexURL     string
	geckoURL   string
	limiter    *rate.Limiter
	rates      *cache.RateCache
	symbols    *cache.SymbolCache
}

// New creates a market client
func New(cfg Config) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		dexURL:   strings.TrimRight(cfg.DexScreenerURL, "/"),
		geckoURL: strings.TrimRight(cfg.CoinGeckoURL, "/"),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1),
		rates:    cache.NewRateCache(cfg.RateTTL),
		symbols:  cache.NewSymbolCache(),
	}
}

// Close releases background resources
func (c *Client) Close() {
	c.rates.Close()
	c.symbols.Close()
}

type dexResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  string   `json:"priceUsd"`
	FDV       *float64 `json:"fdv"`
	Liquidity *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// TokenInfo returns the current symbol, unit price and valuation of a token.
// Returns types.ErrNotFound when the market has no pair for the mint.
func (c *Client) TokenInfo(ctx context.Context, mint string) (*types.TokenInfo, error) {
	info, err := c.tokenInfo(ctx, mint)
	if err != nil {
		return nil, types.NewGatewayError(types.GatewayMarket, "token info", err)
	}
	return info, nil
}

func (c *Client) tokenInfo(ctx context.Context, mint string) (*types.TokenInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/latest/dex/tokens/%s", c.dexURL, url.PathEscape(mint))

	var body dexResponse
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}

	if len(body.Pairs) == 0 {
		return nil, types.ErrNotFound
	}

	// The first pair is the most liquid one
	pair := body.Pairs[0]

	price, err := strconv.ParseFloat(pair.PriceUSD, 64)
	if err != nil || price <= 0 {
		return nil, fmt.Errorf("%w: priceUsd %q", types.ErrMalformedResponse, pair.PriceUSD)
	}

	var valuation float64
	switch {
	case pair.FDV != nil && *pair.FDV > 0:
		valuation = *pair.FDV
	case pair.Liquidity != nil && pair.Liquidity.USD > 0:
		valuation = pair.Liquidity.USD * liquidityMultiplier
	default:
		return nil, fmt.Errorf("%w: no fdv or liquidity", types.ErrMalformedResponse)
	}

	info := &types.TokenInfo{
		Mint:      mint,
		Symbol:    pair.BaseToken.Symbol,
		PriceUSD:  price,
		MarketCap: valuation,
		FetchedAt: time.Now(),
	}
	if info.Symbol != "" {
		c.symbols.Set(mint, info.Symbol)
	} else if sym, ok := c.symbols.Get(mint); ok {
		info.Symbol = sym
	}

	logrus.WithFields(logrus.Fields{
		"mint":       mint,
		"symbol":     info.Symbol,
		"market_cap": valuation,
	}).Debug("market: token info")

	return info, nil
}

// ReferenceRate returns the SOL/USD rate, reusing a recent value when available.
func (c *Client) ReferenceRate(ctx context.Context) (float64, error) {
	if usd, ok := c.rates.Get("solana"); ok {
		return usd, nil
	}

	endpoint := fmt.Sprintf("%s/simple/price?ids=solana&vs_currencies=usd", c.geckoURL)

	var body map[string]map[string]float64
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return 0, types.NewGatewayError(types.GatewayMarket, "reference rate", err)
	}

	usd := body["solana"]["usd"]
	if usd <= 0 {
		return 0, types.NewGatewayError(types.GatewayMarket, "reference rate", types.ErrMalformedResponse)
	}

	c.rates.Set("solana", usd)
	return usd, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(bodyBytes), 200))
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
