package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// ServerMode runs the HTTP API server and, if configured, starts monitoring
// the boot tickers. It blocks until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Deps) error {
	if deps.Server == nil {
		return errors.New("app: server mode requires server.enabled = true")
	}

	a.startBootTickers(ctx, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- deps.Server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := deps.Server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("server shutdown", slog.String("error", err.Error()))
	}
	deps.Manager.EmergencyDisconnectAll()
	return ctx.Err()
}

// MonitorMode runs headless: it starts monitoring the configured tickers and
// logs every significant opportunity change until ctx is cancelled.
func (a *App) MonitorMode(ctx context.Context, deps *Deps) error {
	a.startBootTickers(ctx, deps)

	var unsubs []func()
	for _, raw := range a.cfg.Monitor.Tickers {
		ticker := domain.NormalizeTicker(raw)
		if ticker == "" {
			continue
		}
		unsubs = append(unsubs, deps.Store.Subscribe(ticker, func(t string, opps []domain.ArbitrageOpportunity) {
			if len(opps) == 0 {
				a.logger.Info("opportunities cleared", slog.String("ticker", t))
				return
			}
			top := opps[0]
			a.logger.Info("arbitrage opportunity",
				slog.String("ticker", t),
				slog.String("buy", top.Buy.Venue),
				slog.Float64("buy_price", top.Buy.Price),
				slog.String("sell", top.Sell.Venue),
				slog.Float64("sell_price", top.Sell.Price),
				slog.Float64("spread_percent", top.SpreadPercent),
				slog.Int("total", len(opps)),
			)
		}))
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	<-ctx.Done()
	deps.Manager.EmergencyDisconnectAll()
	return ctx.Err()
}

// startBootTickers starts auto-configured monitoring for every ticker named
// in the config. Failures are logged, not fatal; the API can retry later.
func (a *App) startBootTickers(ctx context.Context, deps *Deps) {
	for _, raw := range a.cfg.Monitor.Tickers {
		ticker := domain.NormalizeTicker(raw)
		if ticker == "" {
			continue
		}
		if err := deps.Manager.StartMonitoringAuto(ctx, ticker, a.cfg.Monitor.DefaultThresholdPercent); err != nil {
			a.logger.Error("boot ticker failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		}
	}
}
