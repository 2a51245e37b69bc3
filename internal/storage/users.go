package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/capwatch/internal/crypto"
	"github.com/capwatch/internal/types"
)

// UserRepository handles user data operations
type UserRepository struct {
	db    *Database
	vault *crypto.Vault
}

// NewUserRepository creates a new user repository that seals credentials with vault
func NewUserRepository(db *Database, vault *crypto.Vault) *UserRepository {
	return &UserRepository{db: db, vault: vault}
}

// Create registers a user with a freshly provisioned wallet.
// The wallet secret and API key are sealed; only the address is stored in clear.
func (r *UserRepository) Create(ctx context.Context, telegramID int64, username string, wallet *types.Wallet) error {
	if telegramID <= 0 {
		return ErrInvalidTelegramID
	}
	if wallet == nil || wallet.Address == "" {
		return ErrMissingWallet
	}

	creds := &UserCredentials{WalletSecret: wallet.SecretKey, APIKey: wallet.APIKey}
	if err := creds.Validate(); err != nil {
		return err
	}

	credsJSON, err := creds.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}
	defer crypto.SecureZero(credsJSON)

	salt, sealed, err := r.vault.Seal(telegramID, credsJSON)
	if err != nil {
		return fmt.Errorf("failed to seal credentials: %w", err)
	}

	db, err := r.db.conn()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, `
		INSERT INTO users (
			telegram_id, username, wallet_address, salt, encrypted_credentials,
			created_at, updated_at, last_active_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, telegramID, username, wallet.Address, salt, sealed, now, now, now)

	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByTelegramID retrieves a user by their Telegram ID
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	if telegramID <= 0 {
		return nil, ErrInvalidTelegramID
	}

	db, err := r.db.conn()
	if err != nil {
		return nil, err
	}

	user := &User{}
	err = db.GetContext(ctx, user, `
		SELECT telegram_id, username, wallet_address, salt, encrypted_credentials,
			   created_at, updated_at, last_active_at
		FROM users
		WHERE telegram_id = ?
	`, telegramID)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// Credentials opens the sealed wallet secret and API key of a user.
// Callers must not log or persist the result.
func (r *UserRepository) Credentials(ctx context.Context, telegramID int64) (*UserCredentials, error) {
	user, err := r.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	plain, err := r.vault.Open(telegramID, user.Salt, user.EncryptedCredentials)
	if err != nil {
		return nil, ErrCredentialsSealed
	}
	defer crypto.SecureZero(plain)

	creds, err := UserCredentialsFromJSON(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return creds, nil
}

// UpdateLastActive updates the user's last active timestamp
func (r *UserRepository) UpdateLastActive(ctx context.Context, telegramID int64) error {
	db, err := r.db.conn()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `
		UPDATE users SET last_active_at = ?, updated_at = ? WHERE telegram_id = ?
	`, now, now, telegramID)
	if err != nil {
		return fmt.Errorf("failed to update last active: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

// Count returns the number of registered users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	db, err := r.db.conn()
	if err != nil {
		return 0, err
	}

	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}

	return count, nil
}
