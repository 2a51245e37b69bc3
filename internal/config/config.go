package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultFeeAddress receives the service fee when FEE_ADDRESS is not set.
const DefaultFeeAddress = "52rG3pPMbZETgbdfvdF69BoYLQF1zeFKrfkUdJvG5iV4"

// MinPassphraseLength mirrors the key derivation minimum.
const MinPassphraseLength = 12

// Config holds all configuration for the trader bot
type Config struct {
	// Telegram
	TelegramToken   string
	WorkerPoolSize  int
	UpdateQueueSize int
	Debug           bool

	// Custodial secret sealing
	VaultPassphrase string

	// Storage
	DatabasePath string

	// External endpoints
	SolanaRPCURL   string
	PumpPortalURL  string
	DexScreenerURL string
	CoinGeckoURL   string

	// Trading
	FeePercent      decimal.Decimal // Percent of proceeds, e.g. 0.25
	FeeAddress      string
	SlippagePercent int
	PriorityFeeSOL  decimal.Decimal
	Pool            string

	// Monitoring cadence
	NearPollInterval time.Duration
	FarPollInterval  time.Duration
	MarketRateLimit  float64 // requests per second against the market data API

	// UI
	HistoryLimit     int
	SecretMessageTTL time.Duration

	// Observability
	MetricsAddr string
	LogLevel    string
	LogFormat   string
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Environment variables win over .env; a missing file is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not parse .env file")
	}

	cfg := &Config{
		TelegramToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		VaultPassphrase: getEnv("VAULT_PASSPHRASE", ""),
		DatabasePath:    getEnv("DATABASE_PATH", "./capwatch.db"),
		SolanaRPCURL:    getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		PumpPortalURL:   getEnv("PUMPPORTAL_URL", "https://pumpportal.fun"),
		DexScreenerURL:  getEnv("DEXSCREENER_URL", "https://api.dexscreener.com"),
		CoinGeckoURL:    getEnv("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		FeeAddress:      getEnv("FEE_ADDRESS", DefaultFeeAddress),
		Pool:            getEnv("TRADE_POOL", "auto"),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
	}

	var err error

	if cfg.FeePercent, err = decimal.NewFromString(getEnv("TRADE_FEE_PERCENT", "0.25")); err != nil {
		return nil, fmt.Errorf("invalid TRADE_FEE_PERCENT: %w", err)
	}
	if cfg.PriorityFeeSOL, err = decimal.NewFromString(getEnv("PRIORITY_FEE_SOL", "0.00005")); err != nil {
		return nil, fmt.Errorf("invalid PRIORITY_FEE_SOL: %w", err)
	}
	if cfg.SlippagePercent, err = strconv.Atoi(getEnv("SLIPPAGE_PERCENT", "10")); err != nil {
		return nil, fmt.Errorf("invalid SLIPPAGE_PERCENT: %w", err)
	}

	if cfg.NearPollInterval, err = time.ParseDuration(getEnv("NEAR_POLL_INTERVAL", "2s")); err != nil {
		return nil, fmt.Errorf("invalid NEAR_POLL_INTERVAL: %w", err)
	}
	if cfg.FarPollInterval, err = time.ParseDuration(getEnv("FAR_POLL_INTERVAL", "5s")); err != nil {
		return nil, fmt.Errorf("invalid FAR_POLL_INTERVAL: %w", err)
	}
	if cfg.MarketRateLimit, err = strconv.ParseFloat(getEnv("MARKET_RATE_LIMIT", "5"), 64); err != nil {
		return nil, fmt.Errorf("invalid MARKET_RATE_LIMIT: %w", err)
	}

	if cfg.HistoryLimit, err = strconv.Atoi(getEnv("HISTORY_LIMIT", "10")); err != nil {
		return nil, fmt.Errorf("invalid HISTORY_LIMIT: %w", err)
	}
	if cfg.SecretMessageTTL, err = time.ParseDuration(getEnv("SECRET_MESSAGE_TTL", "60s")); err != nil {
		return nil, fmt.Errorf("invalid SECRET_MESSAGE_TTL: %w", err)
	}

	if cfg.WorkerPoolSize, err = strconv.Atoi(getEnv("WORKER_POOL_SIZE", "50")); err != nil {
		return nil, fmt.Errorf("invalid WORKER_POOL_SIZE: %w", err)
	}
	if cfg.UpdateQueueSize, err = strconv.Atoi(getEnv("UPDATE_QUEUE_SIZE", "500")); err != nil {
		return nil, fmt.Errorf("invalid UPDATE_QUEUE_SIZE: %w", err)
	}

	debug := strings.ToLower(getEnv("DEBUG", "false"))
	cfg.Debug = debug == "true" || debug == "1"

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set and valid
func (c *Config) Validate() error {
	var errs []string

	if c.TelegramToken == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN is required")
	}

	if c.VaultPassphrase == "" {
		errs = append(errs, "VAULT_PASSPHRASE is required")
	} else if len(c.VaultPassphrase) < MinPassphraseLength {
		errs = append(errs, fmt.Sprintf("VAULT_PASSPHRASE must be at least %d characters", MinPassphraseLength))
	}

	if c.DatabasePath == "" {
		errs = append(errs, "DATABASE_PATH is required")
	}

	endpoints := []struct{ name, raw string }{
		{"SOLANA_RPC_URL", c.SolanaRPCURL},
		{"PUMPPORTAL_URL", c.PumpPortalURL},
		{"DEXSCREENER_URL", c.DexScreenerURL},
		{"COINGECKO_URL", c.CoinGeckoURL},
	}
	for _, ep := range endpoints {
		if !isHTTPURL(ep.raw) {
			errs = append(errs, ep.name+" must be an http(s) URL")
		}
	}

	if !IsValidAddress(c.FeeAddress) {
		errs = append(errs, "FEE_ADDRESS must be a valid Solana address")
	}

	if c.FeePercent.IsNegative() || c.FeePercent.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, "TRADE_FEE_PERCENT must be between 0 and 100")
	}

	if c.SlippagePercent < 0 || c.SlippagePercent > 100 {
		errs = append(errs, "SLIPPAGE_PERCENT must be between 0 and 100")
	}

	if c.PriorityFeeSOL.IsNegative() {
		errs = append(errs, "PRIORITY_FEE_SOL must not be negative")
	}

	if c.NearPollInterval <= 0 || c.FarPollInterval <= 0 {
		errs = append(errs, "poll intervals must be positive")
	}

	if c.MarketRateLimit <= 0 {
		errs = append(errs, "MARKET_RATE_LIMIT must be greater than 0")
	}

	if c.HistoryLimit < 1 || c.HistoryLimit > 100 {
		errs = append(errs, "HISTORY_LIMIT must be between 1 and 100")
	}

	if c.SecretMessageTTL < 0 {
		errs = append(errs, "SECRET_MESSAGE_TTL must not be negative")
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, "LOG_LEVEL must be a logrus level (debug, info, warn, error)")
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsValidAddress checks that a string decodes to a 32-byte Solana public key.
func IsValidAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	_, err := solana.PublicKeyFromBase58(addr)
	return err == nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
