package storage

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/capwatch/internal/crypto"
	"github.com/capwatch/internal/types"
)

// testDB creates a temporary database for testing
func testDB(t *testing.T) (*Database, func()) {
	t.Helper()

	f, err := os.CreateTemp("", "capwatch_test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	f.Close()

	cfg := Config{
		Path:            f.Name(),
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}

	db, err := Open(cfg)
	if err != nil {
		os.Remove(f.Name())
		t.Fatalf("Failed to open database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(f.Name())
		os.Remove(f.Name() + "-wal")
		os.Remove(f.Name() + "-shm")
	}

	return db, cleanup
}

func testVault(t *testing.T) *crypto.Vault {
	t.Helper()
	v, err := crypto.NewVault("operator passphrase 1")
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	return v
}

func testWallet(suffix string) *types.Wallet {
	return &types.Wallet{
		Address:   "Wallet" + suffix,
		SecretKey: "secret-" + suffix,
		APIKey:    "api-" + suffix,
	}
}

func mustCreateUser(t *testing.T, repo *UserRepository, id int64) {
	t.Helper()
	if err := repo.Create(context.Background(), id, "user", testWallet(strconv.FormatInt(id, 10))); err != nil {
		t.Fatalf("Create user %d failed: %v", id, err)
	}
}

func pendingTrade(userID int64, buyTx string) *Trade {
	amount := 1234.5
	return &Trade{
		TelegramID:      userID,
		TokenAddress:    "So11111111111111111111111111111111111111112",
		TokenSymbol:     "PEPE",
		SpendAmount:     decimal.RequireFromString("0.5"),
		TargetValuation: 300000,
		BuyTx:           buyTx,
		TokenAmount:     &amount,
	}
}

func TestDatabaseOpen(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	var count int
	if err := db.db.Get(&count, "SELECT COUNT(*) FROM migrations"); err != nil {
		t.Fatalf("Failed to query migrations: %v", err)
	}

	if count != 3 {
		t.Errorf("Expected 3 migrations, got %d", count)
	}
}

func TestDatabaseClosed(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	db.Close()

	_, err := NewTradeRepository(db).CountPending(context.Background())
	if !errors.Is(err, ErrDatabaseClosed) {
		t.Errorf("Expected ErrDatabaseClosed, got %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestUserRepository_Create(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	repo := NewUserRepository(db, testVault(t))
	ctx := context.Background()

	wallet := testWallet("A")
	if err := repo.Create(ctx, 12345, "testuser", wallet); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if count, err := repo.Count(ctx); err != nil || count != 1 {
		t.Errorf("Count() = %d, %v; want 1", count, err)
	}

	user, err := repo.GetByTelegramID(ctx, 12345)
	if err != nil {
		t.Fatalf("GetByTelegramID failed: %v", err)
	}
	if user.WalletAddress != wallet.Address {
		t.Errorf("WalletAddress = %q, want %q", user.WalletAddress, wallet.Address)
	}
	if user.EncryptedCredentials == "" || len(user.Salt) != crypto.SaltSize {
		t.Error("credentials should be sealed with a per-user salt")
	}

	if err := repo.Create(ctx, 12345, "testuser", testWallet("B")); err != ErrUserExists {
		t.Errorf("Expected ErrUserExists, got: %v", err)
	}
}

func TestUserRepository_CreateValidation(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	repo := NewUserRepository(db, testVault(t))
	ctx := context.Background()

	tests := []struct {
		name    string
		id      int64
		wallet  *types.Wallet
		wantErr error
	}{
		{"zero id", 0, testWallet("A"), ErrInvalidTelegramID},
		{"nil wallet", 1, nil, ErrMissingWallet},
		{"missing secret", 1, &types.Wallet{Address: "W", APIKey: "k"}, ErrMissingWalletSecret},
		{"missing api key", 1, &types.Wallet{Address: "W", SecretKey: "s"}, ErrMissingAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Create(ctx, tt.id, "u", tt.wallet); err != tt.wantErr {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUserRepository_Credentials(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	repo := NewUserRepository(db, testVault(t))
	ctx := context.Background()

	wallet := testWallet("A")
	repo.Create(ctx, 12345, "testuser", wallet)

	creds, err := repo.Credentials(ctx, 12345)
	if err != nil {
		t.Fatalf("Credentials failed: %v", err)
	}
	if creds.WalletSecret != wallet.SecretKey || creds.APIKey != wallet.APIKey {
		t.Errorf("Credentials = %+v, want secret/api of %+v", creds, wallet)
	}

	// A different operator passphrase cannot open the record
	other, _ := crypto.NewVault("another passphrase 2")
	if _, err := NewUserRepository(db, other).Credentials(ctx, 12345); err != ErrCredentialsSealed {
		t.Errorf("Expected ErrCredentialsSealed, got %v", err)
	}

	if _, err := repo.Credentials(ctx, 99999); err != ErrUserNotFound {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestUserRepository_UpdateLastActive(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	repo := NewUserRepository(db, testVault(t))
	ctx := context.Background()

	repo.Create(ctx, 12345, "testuser", testWallet("A"))
	before, _ := repo.GetByTelegramID(ctx, 12345)

	time.Sleep(10 * time.Millisecond)
	if err := repo.UpdateLastActive(ctx, 12345); err != nil {
		t.Fatalf("UpdateLastActive failed: %v", err)
	}

	after, _ := repo.GetByTelegramID(ctx, 12345)
	if !after.LastActiveAt.After(before.LastActiveAt) {
		t.Errorf("LastActiveAt not advanced: before=%v after=%v", before.LastActiveAt, after.LastActiveAt)
	}

	if err := repo.UpdateLastActive(ctx, 99999); err != ErrUserNotFound {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestTradeRepository_AddAndGet(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	users := NewUserRepository(db, testVault(t))
	repo := NewTradeRepository(db)
	ctx := context.Background()

	mustCreateUser(t, users, 12345)

	trade := pendingTrade(12345, "buyTx1")
	if err := repo.Add(ctx, trade); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if trade.ID == "" {
		t.Error("Add should assign an ID")
	}

	got, err := repo.GetByBuyTx(ctx, "buyTx1")
	if err != nil {
		t.Fatalf("GetByBuyTx failed: %v", err)
	}

	if got.Status != TradeStatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
	if !got.SpendAmount.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("SpendAmount = %s, want 0.5", got.SpendAmount)
	}
	if got.TokenAmount == nil || *got.TokenAmount != 1234.5 {
		t.Errorf("TokenAmount = %v, want 1234.5", got.TokenAmount)
	}
	if got.FinalValuation != nil || got.CompletedAt != nil {
		t.Error("pending trade should have no final valuation or completion time")
	}
	if got.TokenSymbol != "PEPE" {
		t.Errorf("TokenSymbol = %q, want PEPE", got.TokenSymbol)
	}

	if err := repo.Add(ctx, pendingTrade(12345, "buyTx1")); err != ErrDuplicateBuyTx {
		t.Errorf("Expected ErrDuplicateBuyTx, got %v", err)
	}
}

func TestTradeRepository_AddNullables(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	users := NewUserRepository(db, testVault(t))
	repo := NewTradeRepository(db)
	ctx := context.Background()

	mustCreateUser(t, users, 12345)

	trade := pendingTrade(12345, "buyTx1")
	trade.TokenSymbol = ""
	trade.TokenAmount = nil
	if err := repo.Add(ctx, trade); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, _ := repo.GetByBuyTx(ctx, "buyTx1")
	if got.TokenSymbol != "" || got.TokenAmount != nil {
		t.Errorf("expected empty symbol and nil amount, got %q / %v", got.TokenSymbol, got.TokenAmount)
	}
}

func TestTradeRepository_AddValidation(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	repo := NewTradeRepository(db)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(tr *Trade)
		want   error
	}{
		{"zero user", func(tr *Trade) { tr.TelegramID = 0 }, ErrInvalidTelegramID},
		{"zero spend", func(tr *Trade) { tr.SpendAmount = decimal.Zero }, ErrInvalidTrade},
		{"negative target", func(tr *Trade) { tr.TargetValuation = -5 }, ErrInvalidTrade},
		{"missing buy tx", func(tr *Trade) { tr.BuyTx = "" }, ErrInvalidTrade},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := pendingTrade(1, "tx")
			tt.mutate(tr)
			if err := repo.Add(ctx, tr); err != tt.want {
				t.Errorf("Add() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTradeRepository_GetByUserOrderAndLimit(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	users := NewUserRepository(db, testVault(t))
	repo := NewTradeRepository(db)
	ctx := context.Background()

	mustCreateUser(t, users, 1)
	mustCreateUser(t, users, 2)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		tr := pendingTrade(1, "u1-tx-"+string(rune('a'+i)))
		tr.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Add(ctx, tr); err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
	}
	repo.Add(ctx, pendingTrade(2, "u2-tx"))

	trades, err := repo.GetByUser(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}

	if len(trades) != 10 {
		t.Fatalf("Expected 10 trades, got %d", len(trades))
	}
	if trades[0].BuyTx != "u1-tx-l" {
		t.Errorf("newest trade first: got %s, want u1-tx-l", trades[0].BuyTx)
	}
	for i := 1; i < len(trades); i++ {
		if trades[i].CreatedAt.After(trades[i-1].CreatedAt) {
			t.Errorf("trades not newest-first at index %d", i)
		}
	}
	for _, tr := range trades {
		if tr.TelegramID != 1 {
			t.Errorf("trade %s belongs to user %d", tr.BuyTx, tr.TelegramID)
		}
	}

	other, _ := repo.GetByUser(ctx, 2, 10)
	if len(other) != 1 || other[0].BuyTx != "u2-tx" {
		t.Errorf("user 2 should see only their trade, got %d", len(other))
	}

	none, err := repo.GetByUser(ctx, 3, 10)
	if err != nil || len(none) != 0 {
		t.Errorf("user without trades: got %d trades, err %v", len(none), err)
	}

	defaulted, _ := repo.GetByUser(ctx, 1, 0)
	if len(defaulted) != 10 {
		t.Errorf("limit 0 should default to 10, got %d", len(defaulted))
	}
}

func TestTradeRepository_GetByUserLargeLimit(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	users := NewUserRepository(db, testVault(t))
	repo := NewTradeRepository(db)
	ctx := context.Background()

	mustCreateUser(t, users, 1)
	for i := 0; i < 105; i++ {
		if err := repo.Add(ctx, pendingTrade(1, "tx-"+strconv.Itoa(i))); err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
	}

	all, err := repo.GetByUser(ctx, 1, 150)
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(all) != 105 {
		t.Errorf("limit 150 should return all 105 trades, got %d", len(all))
	}

	some, _ := repo.GetByUser(ctx, 1, 101)
	if len(some) != 101 {
		t.Errorf("limit 101 should return 101 trades, got %d", len(some))
	}
}

func TestTradeRepository_Complete(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	users := NewUserRepository(db, testVault(t))
	repo := NewTradeRepository(db)
	ctx := context.Background()

	mustCreateUser(t, users, 12345)
	repo.Add(ctx, pendingTrade(12345, "buyTx1"))

	err := repo.Complete(ctx, "buyTx1", Completion{FinalValuation: 310000, SellTx: "sellTx1"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, _ := repo.GetByBuyTx(ctx, "buyTx1")
	if got.Status != TradeStatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if got.FinalValuation == nil || *got.FinalValuation != 310000 {
		t.Errorf("FinalValuation = %v, want 310000", got.FinalValuation)
	}
	if got.SellTx != "sellTx1" || got.FeeTx != "" {
		t.Errorf("SellTx/FeeTx = %q/%q", got.SellTx, got.FeeTx)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}

	if err := repo.Complete(ctx, "buyTx1", Completion{FinalValuation: 1}); err != ErrTradeNotPending {
		t.Errorf("second Complete: expected ErrTradeNotPending, got %v", err)
	}
	if err := repo.Complete(ctx, "missing", Completion{FinalValuation: 1}); err != ErrTradeNotFound {
		t.Errorf("Complete unknown: expected ErrTradeNotFound, got %v", err)
	}
}

func TestTradeRepository_CountPendingAndStats(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	users := NewUserRepository(db, testVault(t))
	repo := NewTradeRepository(db)
	ctx := context.Background()

	mustCreateUser(t, users, 12345)
	repo.Add(ctx, pendingTrade(12345, "tx1"))
	repo.Add(ctx, pendingTrade(12345, "tx2"))
	repo.Add(ctx, pendingTrade(12345, "tx3"))
	repo.Complete(ctx, "tx2", Completion{FinalValuation: 400000, SellTx: "s2", FeeTx: "f2"})

	pending, err := repo.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending failed: %v", err)
	}
	if pending != 2 {
		t.Errorf("CountPending = %d, want 2", pending)
	}

	stats, err := repo.GetStats(ctx, 12345)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalCount != 3 || stats.CompletedCount != 1 || stats.PendingCount != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.CompletedSpend.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("CompletedSpend = %s, want 0.5", stats.CompletedSpend)
	}
}

func TestAuditRepository(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	ctx := context.Background()

	if err := repo.LogRegister(ctx, 12345, "WalletA"); err != nil {
		t.Fatalf("LogRegister failed: %v", err)
	}
	repo.LogSecretReveal(ctx, 12345)
	repo.Log(ctx, 12345, AuditActionTradeBuy, true, map[string]interface{}{
		"mint":          "M",
		"wallet_secret": "should-not-be-stored",
	})
	repo.LogRegister(ctx, 999, "WalletB")

	logs, err := repo.GetByUser(ctx, 12345, 10)
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("Expected 3 logs, got %d", len(logs))
	}

	newest := logs[0]
	if newest.Action != AuditActionTradeBuy {
		t.Errorf("newest action = %s, want TRADE_BUY", newest.Action)
	}
	if newest.Details["wallet_secret"] != "[REDACTED]" {
		t.Errorf("wallet_secret should be redacted, got %v", newest.Details["wallet_secret"])
	}
	if newest.Details["mint"] != "M" {
		t.Errorf("mint detail = %v", newest.Details["mint"])
	}
}

func TestSanitizeDetails(t *testing.T) {
	in := map[string]interface{}{
		"api_key": "abc",
		"secret":  "def",
		"mint":    "ghi",
	}

	out := sanitizeDetails(in)

	if out["api_key"] != "[REDACTED]" || out["secret"] != "[REDACTED]" {
		t.Errorf("sensitive keys not redacted: %v", out)
	}
	if out["mint"] != "ghi" {
		t.Errorf("mint should pass through, got %v", out["mint"])
	}
}
