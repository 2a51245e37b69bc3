package storage

import "errors"

// Validation errors
var (
	ErrMissingWalletSecret = errors.New("wallet secret is required")
	ErrMissingAPIKey       = errors.New("API key is required")
	ErrMissingWallet       = errors.New("wallet address is required")
	ErrInvalidTrade        = errors.New("invalid trade record")
)

// Database errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserExists        = errors.New("user already exists")
	ErrTradeNotFound     = errors.New("trade not found")
	ErrTradeNotPending   = errors.New("trade is not pending")
	ErrDuplicateBuyTx    = errors.New("trade with this buy transaction already exists")
	ErrDatabaseClosed    = errors.New("database connection closed")
	ErrInvalidTelegramID = errors.New("invalid telegram ID")
	ErrCredentialsSealed = errors.New("stored credentials could not be opened")
)
