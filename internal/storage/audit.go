package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AuditRepository handles audit log operations
type AuditRepository struct {
	db *Database
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *Database) *AuditRepository {
	return &AuditRepository{db: db}
}

// Log creates a new audit log entry
// IMPORTANT: Never include sensitive data (secrets, keys, API keys) in details
func (r *AuditRepository) Log(ctx context.Context, telegramID int64, action AuditAction, success bool, details map[string]interface{}) error {
	var detailsJSON sql.NullString
	if details != nil {
		data, err := json.Marshal(sanitizeDetails(details))
		if err == nil {
			detailsJSON = sql.NullString{String: string(data), Valid: true}
		}
	}

	db, err := r.db.conn()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_logs (telegram_id, action, success, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, telegramID, action, success, detailsJSON, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

// GetByUser retrieves audit logs for a user, newest first
func (r *AuditRepository) GetByUser(ctx context.Context, telegramID int64, limit int) ([]*AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	db, err := r.db.conn()
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID         int64          `db:"id"`
		TelegramID sql.NullInt64  `db:"telegram_id"`
		Action     AuditAction    `db:"action"`
		Success    bool           `db:"success"`
		Details    sql.NullString `db:"details"`
		CreatedAt  time.Time      `db:"created_at"`
	}
	err = db.SelectContext(ctx, &rows, `
		SELECT id, telegram_id, action, success, details, created_at
		FROM audit_logs
		WHERE telegram_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}

	logs := make([]*AuditLog, 0, len(rows))
	for _, row := range rows {
		entry := &AuditLog{
			ID:        row.ID,
			Action:    row.Action,
			Success:   row.Success,
			CreatedAt: row.CreatedAt,
		}
		if row.TelegramID.Valid {
			entry.TelegramID = row.TelegramID.Int64
		}
		if row.Details.Valid {
			json.Unmarshal([]byte(row.Details.String), &entry.Details)
		}
		logs = append(logs, entry)
	}

	return logs, nil
}

// sanitizeDetails removes any potentially sensitive keys from details
func sanitizeDetails(details map[string]interface{}) map[string]interface{} {
	sensitiveKeys := map[string]bool{
		"secret":        true,
		"wallet_secret": true,
		"private_key":   true,
		"key":           true,
		"api_key":       true,
		"passphrase":    true,
		"token":         true,
		"credential":    true,
	}

	sanitized := make(map[string]interface{})
	for k, v := range details {
		if sensitiveKeys[k] {
			sanitized[k] = "[REDACTED]"
		} else {
			sanitized[k] = v
		}
	}
	return sanitized
}

// LogRegister logs a user registration
func (r *AuditRepository) LogRegister(ctx context.Context, telegramID int64, walletAddress string) error {
	return r.Log(ctx, telegramID, AuditActionRegister, true, map[string]interface{}{
		"wallet": walletAddress,
	})
}

// LogSecretReveal logs a request to display the wallet secret
func (r *AuditRepository) LogSecretReveal(ctx context.Context, telegramID int64) error {
	return r.Log(ctx, telegramID, AuditActionSecretReveal, true, nil)
}

// LogTradeBuy logs an accepted buy
func (r *AuditRepository) LogTradeBuy(ctx context.Context, telegramID int64, mint, buyTx, spend string) error {
	return r.Log(ctx, telegramID, AuditActionTradeBuy, true, map[string]interface{}{
		"mint":   mint,
		"tx":     buyTx,
		"amount": spend,
	})
}

// LogTradeSell logs a liquidation
func (r *AuditRepository) LogTradeSell(ctx context.Context, telegramID int64, mint, sellTx string, valuation float64) error {
	return r.Log(ctx, telegramID, AuditActionTradeSell, true, map[string]interface{}{
		"mint":      mint,
		"tx":        sellTx,
		"valuation": valuation,
	})
}

// LogTradeAborted logs a monitoring run that ended without a sale
func (r *AuditRepository) LogTradeAborted(ctx context.Context, telegramID int64, mint, reason string) error {
	return r.Log(ctx, telegramID, AuditActionTradeAborted, false, map[string]interface{}{
		"mint":   mint,
		"reason": reason,
	})
}

// LogFeeFailed logs a fee transfer that did not go through
func (r *AuditRepository) LogFeeFailed(ctx context.Context, telegramID int64, lamports uint64, reason string) error {
	return r.Log(ctx, telegramID, AuditActionFeeFailed, false, map[string]interface{}{
		"lamports": lamports,
		"reason":   reason,
	})
}
