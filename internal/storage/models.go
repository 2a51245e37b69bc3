// Package storage persists users, trade records and audit logs in SQLite.
package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// UserCredentials is the sealed part of a user profile.
// It is serialized to JSON, encrypted, and stored in the users table.
type UserCredentials struct {
	// WalletSecret is the base58-encoded 64-byte keypair of the custodial wallet
	WalletSecret string `json:"wallet_secret"`

	// APIKey authenticates trade instructions for this wallet
	APIKey string `json:"api_key"`
}

// Validate checks if all required fields are present
func (c *UserCredentials) Validate() error {
	if c.WalletSecret == "" {
		return ErrMissingWalletSecret
	}
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// ToJSON serializes credentials to JSON bytes
func (c *UserCredentials) ToJSON() ([]byte, error) {
	return json.Marshal(c)
}

// UserCredentialsFromJSON deserializes credentials from JSON bytes
func UserCredentialsFromJSON(data []byte) (*UserCredentials, error) {
	var creds UserCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// User is a registered Telegram user and their custodial wallet
type User struct {
	TelegramID    int64  `db:"telegram_id"`
	Username      string `db:"username"`
	WalletAddress string `db:"wallet_address"`

	// Salt and EncryptedCredentials are written once at registration
	Salt                 []byte `db:"salt"`
	EncryptedCredentials string `db:"encrypted_credentials"`

	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastActiveAt time.Time `db:"last_active_at"`
}

// TradeStatus represents the status of a trade record
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusFailed    TradeStatus = "failed"
)

// Trade is one buy-then-sell cycle. It is created pending when the buy
// is confirmed and completed once the position has been liquidated.
type Trade struct {
	ID              string          `db:"id"`
	TelegramID      int64           `db:"telegram_id"`
	TokenAddress    string          `db:"token_address"`
	TokenSymbol     string          `db:"token_symbol"`
	SpendAmount     decimal.Decimal `db:"spend_amount"` // SOL
	TargetValuation float64         `db:"target_valuation"`
	BuyTx           string          `db:"buy_tx"`
	TokenAmount     *float64        `db:"token_amount"` // estimate, nil when unknown
	Status          TradeStatus     `db:"status"`
	FinalValuation  *float64        `db:"final_valuation"`
	SellTx          string          `db:"sell_tx"`
	FeeTx           string          `db:"fee_tx"`
	CreatedAt       time.Time       `db:"created_at"`
	CompletedAt     *time.Time      `db:"completed_at"`
}

// Completion holds the fields written when a trade is finalized.
type Completion struct {
	FinalValuation float64
	SellTx         string
	FeeTx          string // empty when no fee was collected
}

// TradeStats contains per-user trade counts
type TradeStats struct {
	TotalCount     int             `json:"total_count"`
	CompletedCount int             `json:"completed_count"`
	PendingCount   int             `json:"pending_count"`
	FailedCount    int             `json:"failed_count"`
	CompletedSpend decimal.Decimal `json:"completed_spend"`
}

// AuditAction represents the type of audited action
type AuditAction string

const (
	AuditActionRegister     AuditAction = "REGISTER"
	AuditActionSecretReveal AuditAction = "SECRET_REVEAL"
	AuditActionTradeBuy     AuditAction = "TRADE_BUY"
	AuditActionTradeSell    AuditAction = "TRADE_SELL"
	AuditActionTradeAborted AuditAction = "TRADE_ABORTED"
	AuditActionFeeFailed    AuditAction = "FEE_FAILED"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID         int64
	TelegramID int64
	Action     AuditAction
	Success    bool

	// Details never carries secrets; see sanitizeDetails
	Details   map[string]interface{}
	CreatedAt time.Time
}
