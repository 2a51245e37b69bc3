package trader

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/capwatch/internal/metrics"
	"github.com/capwatch/internal/storage"
	"github.com/capwatch/internal/types"
)

// startMonitor launches the valuation monitor for s. Caller holds s.mu and
// has already moved s to StateMonitoring.
func (e *Engine) startMonitor(s *session) {
	ctx, cancel := context.WithCancel(e.ctx)
	s.stopMonitor = cancel
	run := s.run

	e.wg.Add(1)
	metrics.MonitorStarted()
	go e.monitor(ctx, s, run)
}

// monitor checks the valuation until the target is reached or the run is
// torn down. The timer is re-armed only after a check has fully resolved,
// so checks for one session never overlap.
func (e *Engine) monitor(ctx context.Context, s *session, run uint64) {
	defer e.wg.Done()
	defer metrics.MonitorStopped()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next, done := e.tick(ctx, s, run)
		if done {
			return
		}
		timer.Reset(next)
	}
}

// tick performs one valuation check. The fetch runs without the session
// lock; the decision is taken under it, and only if the session is still
// on the same run.
func (e *Engine) tick(ctx context.Context, s *session, run uint64) (time.Duration, bool) {
	s.mu.Lock()
	mint := s.mint
	s.mu.Unlock()

	metrics.IncTick()
	info, err := e.market.TokenInfo(ctx, mint)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil || s.run != run || s.state != StateMonitoring {
		return 0, true
	}

	log := logrus.WithFields(logrus.Fields{
		"user_id": s.userID,
		"mint":    s.mint,
		"buy_tx":  s.buyTx,
	})

	if err != nil {
		metrics.ObserveError(err)
		metrics.IncTrade(metrics.TradeAborted)
		log.WithError(err).Warn("valuation check failed, monitoring aborted")
		e.auditErr(e.audit.LogTradeAborted(ctx, s.userID, s.mint, err.Error()), s.userID, "trade_aborted")
		e.send(s.userID, msgMonitoringError(err))
		s.reset()
		return 0, true
	}

	s.lastInfo = &observation{valuation: info.MarketCap, price: info.PriceUSD, at: time.Now()}
	log.WithFields(logrus.Fields{
		"valuation": info.MarketCap,
		"target":    s.target,
	}).Debug("valuation checked")

	if TargetReached(s.target, info.MarketCap) {
		e.liquidate(s, info)
		return 0, true
	}

	return e.cfg.Cadence.Next(s.target, info.MarketCap), false
}

// liquidate sells the whole position, collects the service fee and
// finalizes the trade record, in that order. Caller holds s.mu.
//
// It runs detached from the monitor's context so that shutdown cannot
// interrupt a sale that has been decided.
func (e *Engine) liquidate(s *session, info *types.TokenInfo) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), e.cfg.LiquidationTimeout)
	defer cancel()

	log := logrus.WithFields(logrus.Fields{
		"user_id":   s.userID,
		"mint":      s.mint,
		"buy_tx":    s.buyTx,
		"valuation": info.MarketCap,
	})
	log.Info("target reached, liquidating")
	e.send(s.userID, msgTargetReached(info.MarketCap, s.target))

	creds, err := e.users.Credentials(ctx, s.userID)
	if err != nil {
		e.abortLiquidation(ctx, s, log, err)
		return
	}

	order, err := e.orders.Sell(ctx, creds.APIKey, s.mint, s.quantity == nil)
	if err != nil {
		e.abortLiquidation(ctx, s, log, err)
		return
	}
	log = log.WithField("sell_tx", order.Signature)

	feeTx := e.collectFee(ctx, s, creds.WalletSecret, info, log)

	err = e.trades.Complete(ctx, s.buyTx, storage.Completion{
		FinalValuation: info.MarketCap,
		SellTx:         order.Signature,
		FeeTx:          feeTx,
	})
	if err != nil {
		log.WithError(err).Error("sold but could not finalize trade record")
	}

	e.auditErr(e.audit.LogTradeSell(ctx, s.userID, s.mint, order.Signature, info.MarketCap), s.userID, "trade_sell")
	metrics.IncTrade(metrics.TradeCompleted)
	log.Info("trade completed")

	e.send(s.userID, msgSellExecuted(order.Signature))
	s.reset()
}

func (e *Engine) abortLiquidation(ctx context.Context, s *session, log *logrus.Entry, err error) {
	metrics.ObserveError(err)
	metrics.IncTrade(metrics.TradeAborted)
	log.WithError(err).Error("sell failed, trade left pending")
	e.auditErr(e.audit.LogTradeAborted(ctx, s.userID, s.mint, err.Error()), s.userID, "trade_aborted")
	e.send(s.userID, msgSellFailed(err))
	s.reset()
}

// collectFee transfers the service fee to the operator. A failure is
// reported but never blocks finalization. Returns the transfer signature,
// empty when nothing was sent.
func (e *Engine) collectFee(ctx context.Context, s *session, secret string, info *types.TokenInfo, log *logrus.Entry) string {
	rate, err := e.market.ReferenceRate(ctx)
	if err != nil {
		log.WithError(err).Warn("SOL price unavailable, fee not sized")
		rate = 0
	}

	quote := QuoteFee(s.quantity, info.PriceUSD, e.cfg.FeePercent, rate)
	if quote.IsZero() {
		metrics.IncFeeTransfer(metrics.FeeSkipped)
		log.WithField("proceeds_usd", quote.ProceedsUSD.String()).Info("no fee to collect")
		return ""
	}

	sig, err := e.ledger.Transfer(ctx, secret, e.cfg.FeeAddress, quote.Lamports)
	if err != nil {
		metrics.ObserveError(err)
		metrics.IncFeeTransfer(metrics.FeeFailed)
		log.WithError(err).WithField("lamports", quote.Lamports).Error("fee transfer failed")
		e.auditErr(e.audit.LogFeeFailed(ctx, s.userID, quote.Lamports, err.Error()), s.userID, "fee_failed")
		e.send(s.userID, msgFeeFailed)
		// An unconfirmed transfer still has a signature worth recording
		return sig
	}

	metrics.IncFeeTransfer(metrics.FeeSent)
	log.WithFields(logrus.Fields{
		"lamports": quote.Lamports,
		"fee_tx":   sig,
	}).Info("fee collected")
	return sig
}
