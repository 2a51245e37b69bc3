// Package trader runs the trade lifecycle: per-user intake sessions, the
// valuation monitor and the liquidation sequence.
package trader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/capwatch/internal/config"
	"github.com/capwatch/internal/metrics"
	"github.com/capwatch/internal/storage"
	"github.com/capwatch/internal/types"
)

// MarketData reads token valuations and the SOL/USD rate
type MarketData interface {
	TokenInfo(ctx context.Context, mint string) (*types.TokenInfo, error)
	ReferenceRate(ctx context.Context) (float64, error)
}

// OrderExecutor places market orders through the trading API
type OrderExecutor interface {
	Buy(ctx context.Context, apiKey, mint string, amountSOL decimal.Decimal) (*types.OrderResult, error)
	Sell(ctx context.Context, apiKey, mint string, denominatedInSOL bool) (*types.OrderResult, error)
}

// Ledger moves fees and reads token balances on chain
type Ledger interface {
	Transfer(ctx context.Context, secretBase58, dest string, lamports uint64) (string, error)
	TokenBalance(ctx context.Context, owner, mint string) (float64, error)
}

// WalletProvisioner creates custodial wallets for new users
type WalletProvisioner interface {
	CreateWallet(ctx context.Context) (*types.Wallet, error)
}

// UserStore persists user profiles
type UserStore interface {
	Create(ctx context.Context, telegramID int64, username string, wallet *types.Wallet) error
	GetByTelegramID(ctx context.Context, telegramID int64) (*storage.User, error)
	Credentials(ctx context.Context, telegramID int64) (*storage.UserCredentials, error)
	UpdateLastActive(ctx context.Context, telegramID int64) error
	Count(ctx context.Context) (int, error)
}

// TradeStore persists trade records
type TradeStore interface {
	Add(ctx context.Context, trade *storage.Trade) error
	GetByUser(ctx context.Context, telegramID int64, limit int) ([]*storage.Trade, error)
	Complete(ctx context.Context, buyTx string, c storage.Completion) error
	CountPending(ctx context.Context) (int, error)
	GetStats(ctx context.Context, telegramID int64) (*storage.TradeStats, error)
}

// Auditor records security relevant events
type Auditor interface {
	LogRegister(ctx context.Context, telegramID int64, walletAddress string) error
	LogSecretReveal(ctx context.Context, telegramID int64) error
	LogTradeBuy(ctx context.Context, telegramID int64, mint, buyTx, spend string) error
	LogTradeSell(ctx context.Context, telegramID int64, mint, sellTx string, valuation float64) error
	LogTradeAborted(ctx context.Context, telegramID int64, mint, reason string) error
	LogFeeFailed(ctx context.Context, telegramID int64, lamports uint64, reason string) error
}

// Notifier delivers replies to a user
type Notifier interface {
	Send(userID int64, text string)
	// SendEphemeral sends a message that is removed after ttl
	SendEphemeral(userID int64, text string, ttl time.Duration)
}

// Config tunes the engine
type Config struct {
	FeePercent         decimal.Decimal
	FeeAddress         string
	Cadence            Cadence
	HistoryLimit       int
	SecretTTL          time.Duration
	LiquidationTimeout time.Duration
}

// Deps are the collaborators the engine drives
type Deps struct {
	Users       UserStore
	Trades      TradeStore
	Audit       Auditor
	Market      MarketData
	Orders      OrderExecutor
	Ledger      Ledger
	Provisioner WalletProvisioner
	Notifier    Notifier
}

// Engine owns every user's session and monitor
type Engine struct {
	cfg      Config
	users    UserStore
	trades   TradeStore
	audit    Auditor
	market   MarketData
	orders   OrderExecutor
	ledger   Ledger
	wallets  WalletProvisioner
	notifier Notifier

	sessions *registry

	// ctx parents every monitor; cancelled by Shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine. Zero config values fall back to defaults.
func New(cfg Config, deps Deps) *Engine {
	if cfg.Cadence.Near <= 0 || cfg.Cadence.Far <= 0 {
		cfg.Cadence = DefaultCadence()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.LiquidationTimeout <= 0 {
		cfg.LiquidationTimeout = 2 * time.Minute
	}
	if cfg.FeeAddress == "" {
		cfg.FeeAddress = config.DefaultFeeAddress
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:      cfg,
		users:    deps.Users,
		trades:   deps.Trades,
		audit:    deps.Audit,
		market:   deps.Market,
		orders:   deps.Orders,
		ledger:   deps.Ledger,
		wallets:  deps.Provisioner,
		notifier: deps.Notifier,
		sessions: newRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Reconcile reports trade records left pending by a previous run. Their
// monitors were lost with the process and are not resumed.
func (e *Engine) Reconcile(ctx context.Context) error {
	pending, err := e.trades.CountPending(ctx)
	if err != nil {
		return err
	}
	users, err := e.users.Count(ctx)
	if err != nil {
		return err
	}

	log := logrus.WithFields(logrus.Fields{
		"users":   users,
		"pending": pending,
	})
	if pending > 0 {
		log.Warn("trade records left pending by a previous run need manual reconciliation")
		return nil
	}
	log.Info("store checked")
	return nil
}

// Shutdown stops every monitor and waits for in-flight liquidations.
// Sessions are not reset; their records stay pending.
func (e *Engine) Shutdown() {
	e.cancel()
	e.wg.Wait()
}

// State returns the current state of a user's session
func (e *Engine) State(userID int64) State {
	s, ok := e.sessions.lookup(userID)
	if !ok {
		return StateIdle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveMonitors returns the number of sessions being monitored
func (e *Engine) ActiveMonitors() int {
	return e.sessions.monitoring()
}

func (e *Engine) send(userID int64, text string) {
	e.notifier.Send(userID, text)
}

// touch refreshes the user's last active timestamp
func (e *Engine) touch(ctx context.Context, userID int64) {
	err := e.users.UpdateLastActive(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		logrus.WithError(err).WithField("user_id", userID).Warn("could not refresh last active")
	}
}

func (e *Engine) auditErr(err error, userID int64, action string) {
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"action":  action,
		}).Warn("audit log write failed")
	}
}

// Start onboards a new user by provisioning a custodial wallet, or greets a
// returning one.
func (e *Engine) Start(ctx context.Context, userID int64, username string) {
	_, err := e.users.GetByTelegramID(ctx, userID)
	if err == nil {
		e.touch(ctx, userID)
		e.send(userID, msgWelcomeBack)
		return
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		logrus.WithError(err).WithField("user_id", userID).Error("user lookup failed")
		e.send(userID, msgStorageError)
		return
	}

	e.send(userID, msgCreatingWallet)

	wallet, err := e.wallets.CreateWallet(ctx)
	if err != nil {
		metrics.ObserveError(err)
		logrus.WithError(err).WithField("user_id", userID).Error("wallet provisioning failed")
		e.send(userID, msgWalletFailed)
		return
	}

	if err := e.users.Create(ctx, userID, username, wallet); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			e.send(userID, msgWelcomeBack)
			return
		}
		logrus.WithError(err).WithField("user_id", userID).Error("could not save new user")
		e.send(userID, msgWalletFailed)
		return
	}

	e.auditErr(e.audit.LogRegister(ctx, userID, wallet.Address), userID, "register")
	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"wallet":  wallet.Address,
	}).Info("user registered")

	e.send(userID, msgWelcome(wallet.Address))
}

// Help sends usage instructions
func (e *Engine) Help(ctx context.Context, userID int64) {
	e.touch(ctx, userID)
	e.send(userID, msgHelp(e.cfg.FeeAddress))
}

// ShowAddress sends the user's deposit address
func (e *Engine) ShowAddress(ctx context.Context, userID int64) {
	user, err := e.users.GetByTelegramID(ctx, userID)
	if err != nil {
		e.replyUserError(userID, err)
		return
	}
	e.touch(ctx, userID)
	e.send(userID, msgAddress(user.WalletAddress))
}

// ShowSecret sends the wallet secret in a message that deletes itself
func (e *Engine) ShowSecret(ctx context.Context, userID int64) {
	creds, err := e.users.Credentials(ctx, userID)
	if err != nil {
		e.replyUserError(userID, err)
		return
	}
	e.touch(ctx, userID)
	e.auditErr(e.audit.LogSecretReveal(ctx, userID), userID, "secret_reveal")
	e.notifier.SendEphemeral(userID, msgSecret(creds.WalletSecret, e.cfg.SecretTTL), e.cfg.SecretTTL)
}

// History lists the user's most recent trades
func (e *Engine) History(ctx context.Context, userID int64) {
	e.touch(ctx, userID)
	trades, err := e.trades.GetByUser(ctx, userID, e.cfg.HistoryLimit)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("trade history lookup failed")
		e.send(userID, msgStorageError)
		return
	}
	if len(trades) == 0 {
		e.send(userID, msgNoHistory)
		return
	}
	e.send(userID, msgHistory(trades))
}

// Stats summarizes the user's trade log
func (e *Engine) Stats(ctx context.Context, userID int64) {
	e.touch(ctx, userID)
	stats, err := e.trades.GetStats(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("trade stats lookup failed")
		e.send(userID, msgStorageError)
		return
	}
	if stats.TotalCount == 0 {
		e.send(userID, msgNoHistory)
		return
	}
	e.send(userID, msgStats(stats))
}

func (e *Engine) replyUserError(userID int64, err error) {
	if errors.Is(err, storage.ErrUserNotFound) {
		e.send(userID, msgNoWallet)
		return
	}
	logrus.WithError(err).WithField("user_id", userID).Error("user lookup failed")
	if errors.Is(err, storage.ErrCredentialsSealed) {
		e.send(userID, msgWalletBroken)
		return
	}
	e.send(userID, msgStorageError)
}

// Status reports on the trade being monitored with a fresh valuation and
// the wallet's token balance. Each field degrades to unknown on its own.
func (e *Engine) Status(ctx context.Context, userID int64) {
	e.touch(ctx, userID)

	s := e.sessions.get(userID)
	s.mu.Lock()
	if s.state != StateMonitoring {
		s.mu.Unlock()
		e.send(userID, msgNoMonitoring)
		return
	}
	view := statusView{
		name:   s.displayName(),
		spend:  s.spend,
		target: s.target,
		since:  s.boughtAt,
	}
	mint := s.mint
	last := s.lastInfo
	s.mu.Unlock()

	var (
		wg      sync.WaitGroup
		info    *types.TokenInfo
		infoErr error
		balance *float64
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		info, infoErr = e.market.TokenInfo(ctx, mint)
	}()

	if user, err := e.users.GetByTelegramID(ctx, userID); err == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bal, err := e.ledger.TokenBalance(ctx, user.WalletAddress, mint)
			if err != nil {
				logrus.WithError(err).WithField("user_id", userID).Debug("token balance unavailable")
				return
			}
			balance = &bal
		}()
	}
	wg.Wait()

	switch {
	case infoErr == nil:
		view.valuation = &info.MarketCap
		view.price = &info.PriceUSD
	case last != nil:
		view.valuation = &last.valuation
		view.price = &last.price
		view.checkedAt = last.at
	default:
		metrics.ObserveError(infoErr)
		e.send(userID, msgStatusUnavailable)
		return
	}
	view.balance = balance

	e.send(userID, msgStatus(view))
}

// Cancel aborts whatever the user is doing, stopping a running monitor.
// Calling it repeatedly is harmless.
func (e *Engine) Cancel(ctx context.Context, userID int64) {
	e.touch(ctx, userID)

	s := e.sessions.get(userID)
	s.mu.Lock()
	if s.state == StateMonitoring {
		e.auditErr(e.audit.LogTradeAborted(ctx, userID, s.mint, "cancelled"), userID, "trade_aborted")
		metrics.IncTrade(metrics.TradeAborted)
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"mint":    s.mint,
			"buy_tx":  s.buyTx,
		}).Info("monitoring cancelled by user")
	}
	s.reset()
	s.mu.Unlock()

	e.send(userID, msgCancelled)
}

// HandleText feeds free text into the user's intake flow. Commands are
// never treated as input.
func (e *Engine) HandleText(ctx context.Context, userID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, "/") {
		return
	}
	e.touch(ctx, userID)

	s := e.sessions.get(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		e.acceptToken(ctx, s, text)
	case StateAwaitingAmount:
		e.acceptAmount(s, text)
	case StateAwaitingTarget:
		e.acceptTarget(s, text)
	case StateMonitoring:
		e.send(s.userID, msgBusyMonitoring)
	}
}

func (e *Engine) acceptToken(ctx context.Context, s *session, text string) {
	if len(text) != TokenAddressLength {
		e.send(s.userID, msgUsageHint)
		return
	}
	if !IsTokenAddress(text) {
		e.send(s.userID, msgInvalidAddress)
		return
	}

	s.reset()
	s.mint = text
	s.state = StateAwaitingAmount

	info, err := e.market.TokenInfo(ctx, text)
	if err != nil {
		logrus.WithError(err).WithField("mint", text).Debug("token lookup failed, continuing without details")
		e.send(s.userID, msgAskAmount)
		return
	}

	s.symbol = info.Symbol
	e.send(s.userID, msgTokenDetected(info.Symbol, info.MarketCap))
}

func (e *Engine) acceptAmount(s *session, text string) {
	amount, err := ParseAmount(text)
	if err != nil {
		e.replyValidation(s.userID, err)
		return
	}
	s.spend = amount
	s.state = StateAwaitingTarget
	e.send(s.userID, msgAskTarget)
}

func (e *Engine) acceptTarget(s *session, text string) {
	target, err := ParseTarget(text)
	if err != nil {
		e.replyValidation(s.userID, err)
		return
	}
	s.target = target
	e.send(s.userID, msgSummary(s.displayName(), s.spend, s.target))
}

func (e *Engine) replyValidation(userID int64, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		e.send(userID, verr.Message)
		return
	}
	e.send(userID, msgUsageHint)
}

// Confirm executes the buy for a fully specified trade, records it as
// pending and starts monitoring.
func (e *Engine) Confirm(ctx context.Context, userID int64) {
	e.touch(ctx, userID)

	s := e.sessions.get(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingTarget || s.target <= 0 {
		e.send(userID, msgNothingToConfirm)
		return
	}

	creds, err := e.users.Credentials(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			e.send(userID, msgWalletBroken)
			return
		}
		e.replyUserError(userID, err)
		return
	}

	log := logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"mint":    s.mint,
		"amount":  s.spend.String(),
	})

	e.send(userID, msgExecutingBuy)

	order, err := e.orders.Buy(ctx, creds.APIKey, s.mint, s.spend)
	if err != nil {
		metrics.ObserveError(err)
		metrics.IncTrade(metrics.TradeBuyFailed)
		log.WithError(err).Warn("buy failed")
		e.send(userID, msgBuyFailed(err))
		s.reset()
		return
	}

	s.buyTx = order.Signature
	s.boughtAt = order.SentAt
	s.quantity = e.estimateQuantity(ctx, s)
	log = log.WithField("buy_tx", s.buyTx)

	trade := &storage.Trade{
		TelegramID:      userID,
		TokenAddress:    s.mint,
		TokenSymbol:     s.symbol,
		SpendAmount:     s.spend,
		TargetValuation: s.target,
		BuyTx:           s.buyTx,
		TokenAmount:     s.quantity,
		Status:          storage.TradeStatusPending,
	}
	if err := e.trades.Add(ctx, trade); err != nil {
		log.WithError(err).Error("bought but could not record trade, monitoring not started")
		e.auditErr(e.audit.LogTradeAborted(ctx, userID, s.mint, "record not saved"), userID, "trade_aborted")
		metrics.IncTrade(metrics.TradeAborted)
		e.send(userID, msgRecordFailed(s.buyTx))
		s.reset()
		return
	}

	e.auditErr(e.audit.LogTradeBuy(ctx, userID, s.mint, s.buyTx, s.spend.String()), userID, "trade_buy")
	metrics.IncTrade(metrics.TradeBought)
	log.WithField("target", s.target).Info("buy executed, monitoring")

	s.state = StateMonitoring
	e.send(userID, msgBuyExecuted(s.displayName(), s.quantity, s.buyTx, s.target))
	e.startMonitor(s)
}

// estimateQuantity approximates tokens bought as spend × SOL/USD ÷ price.
// Returns nil when either rate is unavailable.
func (e *Engine) estimateQuantity(ctx context.Context, s *session) *float64 {
	info, err := e.market.TokenInfo(ctx, s.mint)
	if err != nil || info.PriceUSD <= 0 {
		logrus.WithError(err).WithField("mint", s.mint).Debug("token price unavailable, quantity unknown")
		return nil
	}
	if s.symbol == "" {
		s.symbol = info.Symbol
	}

	rate, err := e.market.ReferenceRate(ctx)
	if err != nil || rate <= 0 {
		logrus.WithError(err).Debug("SOL price unavailable, quantity unknown")
		return nil
	}

	qty := s.spend.InexactFloat64() * rate / info.PriceUSD
	return &qty
}
