package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// TokenInfo is a market snapshot for a token, as reported by the market data gateway.
type TokenInfo struct {
	Mint      string  // Token mint address (base58)
	Symbol    string  // Ticker symbol, may be empty
	PriceUSD  float64 // Unit price in USD
	MarketCap float64 // Total valuation in USD (fully diluted, or liquidity-derived)
	FetchedAt time.Time
}

// OrderSide represents the side of a trade instruction
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderRequest is a trade instruction sent to the execution gateway.
type OrderRequest struct {
	Side OrderSide
	Mint string

	// Amount is the SOL amount for buys. Sells always liquidate the whole position.
	Amount decimal.Decimal

	// DenominatedInSOL tells the gateway how to read the amount.
	DenominatedInSOL bool
}

// OrderResult is the outcome of an accepted trade instruction.
type OrderResult struct {
	Side      OrderSide
	Mint      string
	Signature string // On-chain transaction reference
	SentAt    time.Time
}

// Wallet is a freshly provisioned custodial wallet.
type Wallet struct {
	Address   string // Public address (base58)
	SecretKey string // Signing secret (base58, 64-byte keypair)
	APIKey    string // Trading API credential bound to this wallet
}

// FeeQuote is the service fee charged on a liquidation.
type FeeQuote struct {
	ProceedsUSD decimal.Decimal
	FeeUSD      decimal.Decimal
	FeeSOL      decimal.Decimal
	Lamports    uint64
}

// IsZero reports whether there is nothing to transfer.
func (f FeeQuote) IsZero() bool {
	return f.Lamports == 0
}
