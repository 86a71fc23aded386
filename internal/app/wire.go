package app

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/MaksymDeneka/arbitrage-hub/internal/config"
	"github.com/MaksymDeneka/arbitrage-hub/internal/discovery"
	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange/binance"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange/bitget"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange/gateio"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange/mexc"
	"github.com/MaksymDeneka/arbitrage-hub/internal/manager"
	"github.com/MaksymDeneka/arbitrage-hub/internal/notify"
	"github.com/MaksymDeneka/arbitrage-hub/internal/onchain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/pricestore"
	"github.com/MaksymDeneka/arbitrage-hub/internal/server"
	"github.com/MaksymDeneka/arbitrage-hub/internal/server/handler"
	"github.com/MaksymDeneka/arbitrage-hub/internal/server/ws"
)

// Deps bundles the application's wired components.
type Deps struct {
	Store     *pricestore.Store
	Manager   *manager.Manager
	Discovery *discovery.Service
	Notifier  *notify.Notifier
	Hub       *ws.Hub
	Server    *server.Server
	Chains    []onchain.Chain
}

// Wire constructs every component in dependency order and returns a cleanup
// function that tears them down.
func Wire(cfg *config.Config, logger *slog.Logger) (*Deps, func(), error) {
	store := pricestore.New(logger)

	chains := onchain.DefaultChains()
	for i := range chains {
		if strings.TrimSpace(os.Getenv(chains[i].RPCEnvVar)) != "" {
			continue
		}
		if url, ok := cfg.Chains.RPCURLs[chains[i].Name]; ok && url != "" {
			chains[i].RPCURL = url
		}
	}

	endpoints := manager.VenueEndpoints{
		Binance: binance.Config{
			SpotWS:     cfg.Exchanges.Binance.SpotWS,
			FuturesWS:  cfg.Exchanges.Binance.FuturesWS,
			SpotAPI:    cfg.Exchanges.Binance.SpotAPI,
			FuturesAPI: cfg.Exchanges.Binance.FuturesAPI,
		},
		MEXC: mexc.Config{
			SpotWS:     cfg.Exchanges.MEXC.SpotWS,
			FuturesWS:  cfg.Exchanges.MEXC.FuturesWS,
			SpotAPI:    cfg.Exchanges.MEXC.SpotAPI,
			FuturesAPI: cfg.Exchanges.MEXC.FuturesAPI,
		},
		Gateio: gateio.Config{
			SpotWS:    cfg.Exchanges.Gateio.SpotWS,
			FuturesWS: cfg.Exchanges.Gateio.FuturesWS,
			API:       cfg.Exchanges.Gateio.API,
		},
		Bitget: bitget.Config{
			WS:  cfg.Exchanges.Bitget.WS,
			API: cfg.Exchanges.Bitget.API,
		},
	}

	factory := manager.NewFactory(endpoints, chains, logger)
	disc := discovery.New(factory.Listers(), chains, logger)
	mgr := manager.New(store, disc, factory, logger)

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, ""))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscord(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)
	detachAlerts := attachAlerts(store, mgr, notifier)

	hub := ws.NewHub(store, mgr, logger)

	var srv *server.Server
	if cfg.Server.Enabled {
		handlers := server.Handlers{
			Health: handler.NewHealthHandler(mgr),
			Monitoring: handler.NewMonitoringHandler(
				mgr, store, cfg.Monitor.DefaultThresholdPercent, logger),
			Token:     handler.NewTokenHandler(disc, cfg.Monitor.DefaultThresholdPercent, logger),
			Exchanges: handler.NewExchangesHandler(chains),
		}
		srv = server.NewServer(server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
		}, handlers, hub, logger)
	}

	deps := &Deps{
		Store:     store,
		Manager:   mgr,
		Discovery: disc,
		Notifier:  notifier,
		Hub:       hub,
		Server:    srv,
		Chains:    chains,
	}

	cleanup := func() {
		detachAlerts()
		hub.Close()
		mgr.EmergencyDisconnectAll()
	}
	return deps, cleanup, nil
}

// attachAlerts bridges store and manager events into the notifier: the top
// opportunity of every significant change and every terminal session error.
// New tickers are picked up from the manager's status stream, so alerts
// follow monitoring regardless of how it was started.
func attachAlerts(store *pricestore.Store, mgr *manager.Manager, notifier *notify.Notifier) func() {
	var mu sync.Mutex
	tracked := make(map[string]func())

	unsubStatus := mgr.OnStatusUpdate(func(update domain.StatusUpdate) {
		if update.Status == domain.StatusError && update.Error != "" {
			notifier.Notify(context.Background(), notify.EventSessionError,
				"session error",
				update.Ticker+" "+update.Venue+"/"+string(update.Market)+": "+update.Error)
		}

		mu.Lock()
		defer mu.Unlock()
		if _, ok := tracked[update.Ticker]; ok {
			return
		}
		tracked[update.Ticker] = store.Subscribe(update.Ticker, func(ticker string, opps []domain.ArbitrageOpportunity) {
			if len(opps) == 0 {
				return
			}
			top := opps[0]
			notifier.Notify(context.Background(), notify.EventArbDetected,
				"arbitrage opportunity",
				notify.FormatOpportunity(ticker, top.Buy.Venue, top.Buy.Price,
					top.Sell.Venue, top.Sell.Price, top.SpreadPercent))
		})
	})

	return func() {
		unsubStatus()
		mu.Lock()
		defer mu.Unlock()
		for ticker, unsub := range tracked {
			unsub()
			delete(tracked, ticker)
		}
	}
}
