package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeRepository handles trade data operations
type TradeRepository struct {
	db *Database
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *Database) *TradeRepository {
	return &TradeRepository{db: db}
}

const tradeColumns = `
	id, telegram_id, token_address, COALESCE(token_symbol, '') AS token_symbol,
	spend_amount, target_valuation, buy_tx, token_amount, status, final_valuation,
	COALESCE(sell_tx, '') AS sell_tx, COALESCE(fee_tx, '') AS fee_tx,
	created_at, completed_at`

// Add appends a pending trade record. ID and CreatedAt are filled in when empty.
func (r *TradeRepository) Add(ctx context.Context, trade *Trade) error {
	if trade.TelegramID <= 0 {
		return ErrInvalidTelegramID
	}
	if trade.TokenAddress == "" || trade.BuyTx == "" ||
		!trade.SpendAmount.IsPositive() || trade.TargetValuation <= 0 {
		return ErrInvalidTrade
	}

	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now().UTC()
	}
	if trade.Status == "" {
		trade.Status = TradeStatusPending
	}

	db, err := r.db.conn()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO trades (
			id, telegram_id, token_address, token_symbol, spend_amount,
			target_valuation, buy_tx, token_amount, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trade.ID,
		trade.TelegramID,
		trade.TokenAddress,
		nullString(trade.TokenSymbol),
		trade.SpendAmount.String(),
		trade.TargetValuation,
		trade.BuyTx,
		trade.TokenAmount,
		trade.Status,
		trade.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateBuyTx
		}
		return fmt.Errorf("failed to create trade: %w", err)
	}

	return nil
}

// GetByBuyTx retrieves a trade by its buy transaction reference
func (r *TradeRepository) GetByBuyTx(ctx context.Context, buyTx string) (*Trade, error) {
	db, err := r.db.conn()
	if err != nil {
		return nil, err
	}

	trade := &Trade{}
	err = db.GetContext(ctx, trade, `SELECT `+tradeColumns+` FROM trades WHERE buy_tx = ?`, buyTx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}

	return trade, nil
}

// GetByUser returns a user's most recent trades, newest first, truncated
// to limit. A non-positive limit means 10.
func (r *TradeRepository) GetByUser(ctx context.Context, telegramID int64, limit int) ([]*Trade, error) {
	if limit <= 0 {
		limit = 10
	}

	db, err := r.db.conn()
	if err != nil {
		return nil, err
	}

	var trades []*Trade
	err = db.SelectContext(ctx, &trades, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE telegram_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}

	return trades, nil
}

// Complete marks the pending trade identified by buyTx as completed.
// A record is completed at most once.
func (r *TradeRepository) Complete(ctx context.Context, buyTx string, c Completion) error {
	db, err := r.db.conn()
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, `
		UPDATE trades
		SET status = ?, final_valuation = ?, sell_tx = ?, fee_tx = ?, completed_at = ?
		WHERE buy_tx = ? AND status = ?
	`,
		TradeStatusCompleted,
		c.FinalValuation,
		nullString(c.SellTx),
		nullString(c.FeeTx),
		time.Now().UTC(),
		buyTx,
		TradeStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to complete trade: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 1 {
		return nil
	}

	// Distinguish a missing record from one that was already finalized
	if _, err := r.GetByBuyTx(ctx, buyTx); err != nil {
		return err
	}
	return ErrTradeNotPending
}

// CountPending returns the number of trades still awaiting liquidation
func (r *TradeRepository) CountPending(ctx context.Context) (int, error) {
	db, err := r.db.conn()
	if err != nil {
		return 0, err
	}

	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM trades WHERE status = ?`, TradeStatusPending); err != nil {
		return 0, fmt.Errorf("failed to count pending trades: %w", err)
	}

	return count, nil
}

// GetStats returns trade statistics for a user
func (r *TradeRepository) GetStats(ctx context.Context, telegramID int64) (*TradeStats, error) {
	db, err := r.db.conn()
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Status TradeStatus `db:"status"`
		Spend  string      `db:"spend_amount"`
	}
	err = db.SelectContext(ctx, &rows, `
		SELECT status, spend_amount FROM trades WHERE telegram_id = ?
	`, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade stats: %w", err)
	}

	stats := &TradeStats{CompletedSpend: decimal.Zero}
	for _, row := range rows {
		switch row.Status {
		case TradeStatusCompleted:
			stats.CompletedCount++
			// spend_amount is TEXT, so the sum is taken in decimal
			if spend, err := decimal.NewFromString(row.Spend); err == nil {
				stats.CompletedSpend = stats.CompletedSpend.Add(spend)
			}
		case TradeStatusPending:
			stats.PendingCount++
		case TradeStatusFailed:
			stats.FailedCount++
		}
	}
	stats.TotalCount = len(rows)

	return stats, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
