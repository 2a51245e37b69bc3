package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/capwatch/internal/config"
	"github.com/capwatch/internal/crypto"
	"github.com/capwatch/internal/executor"
	"github.com/capwatch/internal/ledger"
	"github.com/capwatch/internal/market"
	"github.com/capwatch/internal/metrics"
	"github.com/capwatch/internal/provision"
	"github.com/capwatch/internal/storage"
	"github.com/capwatch/internal/telegram"
	"github.com/capwatch/internal/trader"
)

func main() {
	checkConfigFlag := flag.Bool("check-config", false, "Validate configuration and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Config error: %v", err)
	}
	setupLogging(cfg)

	if *checkConfigFlag {
		logrus.Info("Configuration OK")
		return
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := storage.DefaultConfig()
	dbCfg.Path = cfg.DatabasePath
	db, err := storage.Open(dbCfg)
	if err != nil {
		logrus.Fatalf("Database error: %v", err)
	}
	defer db.Close()

	vault, err := crypto.NewVault(cfg.VaultPassphrase)
	if err != nil {
		logrus.Fatalf("Vault error: %v", err)
	}

	marketClient := market.New(market.Config{
		DexScreenerURL:    cfg.DexScreenerURL,
		CoinGeckoURL:      cfg.CoinGeckoURL,
		RequestsPerSecond: cfg.MarketRateLimit,
	})
	defer marketClient.Close()

	orders := executor.New(executor.Config{
		BaseURL:         cfg.PumpPortalURL,
		SlippagePercent: cfg.SlippagePercent,
		PriorityFeeSOL:  cfg.PriorityFeeSOL,
		Pool:            cfg.Pool,
	})

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:           cfg.TelegramToken,
		Debug:           cfg.Debug,
		WorkerPoolSize:  cfg.WorkerPoolSize,
		UpdateQueueSize: cfg.UpdateQueueSize,
	})
	if err != nil {
		logrus.Fatalf("Telegram error: %v", err)
	}

	engine := trader.New(trader.Config{
		FeePercent:   cfg.FeePercent,
		FeeAddress:   cfg.FeeAddress,
		Cadence:      trader.Cadence{Near: cfg.NearPollInterval, Far: cfg.FarPollInterval},
		HistoryLimit: cfg.HistoryLimit,
		SecretTTL:    cfg.SecretMessageTTL,
	}, trader.Deps{
		Users:       storage.NewUserRepository(db, vault),
		Trades:      storage.NewTradeRepository(db),
		Audit:       storage.NewAuditRepository(db),
		Market:      marketClient,
		Orders:      orders,
		Ledger:      ledger.New(ledger.Config{RPCURL: cfg.SolanaRPCURL}),
		Provisioner: provision.New(cfg.PumpPortalURL),
		Notifier:    bot,
	})
	bot.SetHandler(engine)

	if err := engine.Reconcile(ctx); err != nil {
		logrus.WithError(err).Warn("could not check for pending trades")
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				logrus.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	logrus.WithFields(logrus.Fields{
		"fee_percent": cfg.FeePercent.String(),
		"near_poll":   cfg.NearPollInterval,
		"far_poll":    cfg.FarPollInterval,
	}).Info("Starting capwatch")

	botErr := make(chan error, 1)
	go func() {
		botErr <- bot.Start(ctx)
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logrus.Info("Shutdown signal received | Stopping...")
	case err := <-botErr:
		logrus.WithError(err).Error("bot stopped unexpectedly")
	}

	// Graceful shutdown: stop taking updates, then let liquidations finish
	cancel()
	bot.Stop()

	done := make(chan struct{})
	go func() {
		engine.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Minute):
		logrus.Warn("timed out waiting for monitors to stop")
	}

	logrus.Info("Shutdown complete")
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if cfg.Debug {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
}
