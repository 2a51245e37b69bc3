// Package metrics exposes Prometheus instruments for the trade orchestrator.
//
//   - capwatch_trades_total{result}          trades by result (bought|completed|aborted|buy_failed)
//   - capwatch_monitor_ticks_total           valuation checks performed by monitors
//   - capwatch_active_monitors               monitors currently running
//   - capwatch_fee_transfers_total{result}   fee transfers by result (sent|failed|skipped)
//   - capwatch_gateway_errors_total{gateway} gateway failures by gateway
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/capwatch/internal/types"
)

// Trade results
const (
	TradeBought    = "bought"
	TradeCompleted = "completed"
	TradeAborted   = "aborted"
	TradeBuyFailed = "buy_failed"
)

// Fee transfer results
const (
	FeeSent    = "sent"
	FeeFailed  = "failed"
	FeeSkipped = "skipped"
)

var (
	mtxTrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capwatch_trades_total",
			Help: "Trades counted by result.",
		},
		[]string{"result"},
	)

	mtxTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "capwatch_monitor_ticks_total",
			Help: "Valuation checks performed by monitoring loops.",
		},
	)

	mtxActiveMonitors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "capwatch_active_monitors",
			Help: "Monitoring loops currently running.",
		},
	)

	mtxFeeTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capwatch_fee_transfers_total",
			Help: "Service fee transfers by result.",
		},
		[]string{"result"},
	)

	mtxGatewayErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capwatch_gateway_errors_total",
			Help: "Gateway failures by gateway.",
		},
		[]string{"gateway"},
	)
)

func init() {
	prometheus.MustRegister(mtxTrades, mtxTicks, mtxActiveMonitors)
	prometheus.MustRegister(mtxFeeTransfers, mtxGatewayErrors)
}

func IncTrade(result string)       { mtxTrades.WithLabelValues(result).Inc() }
func IncTick()                     { mtxTicks.Inc() }
func MonitorStarted()              { mtxActiveMonitors.Inc() }
func MonitorStopped()              { mtxActiveMonitors.Dec() }
func IncFeeTransfer(result string) { mtxFeeTransfers.WithLabelValues(result).Inc() }

// ObserveError counts err against its gateway. Errors that did not come from
// a gateway are ignored.
func ObserveError(err error) {
	if err == nil {
		return
	}
	if g := types.GatewayOf(err); g != "" {
		mtxGatewayErrors.WithLabelValues(g).Inc()
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logrus.WithField("addr", addr).Info("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
