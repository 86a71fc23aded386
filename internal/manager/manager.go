// Package manager owns the active adapter set for every monitored ticker.
// It resolves monitoring specs into running adapters, tracks per-session
// state, and exposes the start/stop/reconnect/status surface the HTTP layer
// wraps.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MaksymDeneka/arbitrage-hub/internal/discovery"
	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
	"github.com/MaksymDeneka/arbitrage-hub/internal/pricestore"
)

// AdapterFactory builds adapters for the manager. The default factory wires
// the real venue packages; tests substitute stubs.
type AdapterFactory interface {
	NewStreamAdapter(venue string, market domain.MarketKind, ticker string, emit exchange.SampleSink) (exchange.Adapter, error)
	NewPoolAdapter(pool domain.PoolSpec, ticker string, emit exchange.SampleSink) (exchange.Adapter, error)
}

// Health is the aggregate health snapshot.
type Health struct {
	Status        string `json:"status"`
	ActiveTickers int    `json:"activeTickers"`
	Sessions      int    `json:"sessions"`
	Connected     int    `json:"connected"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// TickerInfo summarizes one monitored ticker.
type TickerInfo struct {
	Ticker           string                `json:"ticker"`
	ThresholdPercent float64               `json:"thresholdPercent"`
	Sessions         []domain.SessionState `json:"sessions"`
}

// Manager is the connection lifecycle controller.
type Manager struct {
	store     *pricestore.Store
	discovery *discovery.Service
	factory   AdapterFactory
	logger    *slog.Logger
	started   time.Time

	mu         sync.Mutex
	adapters   map[string]exchange.Adapter
	sessions   map[string]*domain.SessionState
	specs      map[string]domain.MonitoringSpec
	statusSubs map[string]exchange.StatusFunc
}

// New creates a Manager.
func New(store *pricestore.Store, disc *discovery.Service, factory AdapterFactory, logger *slog.Logger) *Manager {
	return &Manager{
		store:      store,
		discovery:  disc,
		factory:    factory,
		logger:     logger.With(slog.String("component", "manager")),
		started:    time.Now(),
		adapters:   make(map[string]exchange.Adapter),
		sessions:   make(map[string]*domain.SessionState),
		specs:      make(map[string]domain.MonitoringSpec),
		statusSubs: make(map[string]exchange.StatusFunc),
	}
}

// sink feeds adapter samples into the price store and refreshes the
// last-update stamp of the originating sessions.
func (m *Manager) sink() exchange.SampleSink {
	return func(ticker string, sample domain.PriceSample) {
		now := time.Now().UnixMilli()
		m.mu.Lock()
		for key, session := range m.sessions {
			if domain.KeyHasTicker(key, ticker) && session.Venue == sample.Venue {
				session.LastUpdateMs = now
			}
		}
		m.mu.Unlock()
		m.store.UpdatePrice(ticker, sample)
	}
}

// StartMonitoringAuto discovers the venues listing the ticker and starts
// monitoring the result. It fails when discovery finds nothing.
func (m *Manager) StartMonitoringAuto(ctx context.Context, ticker string, thresholdPercent float64) error {
	result, err := m.discovery.Discover(ctx, ticker, thresholdPercent)
	if err != nil {
		return fmt.Errorf("manager: discover %s: %w", ticker, err)
	}
	return m.StartMonitoring(ctx, result.Spec)
}

// StartMonitoring sets the ticker threshold and brings up one adapter per
// (venue, market) plus one polling adapter per on-chain pool. Adapter starts
// run in parallel; individual failures are recorded in session state without
// aborting the rest. Already-running sessions are reused.
func (m *Manager) StartMonitoring(ctx context.Context, spec domain.MonitoringSpec) error {
	ticker := domain.NormalizeTicker(spec.Ticker)
	if ticker == "" {
		return domain.ErrTickerMissing
	}
	for _, vm := range spec.Venues {
		if !exchange.KnownVenue(vm.Venue) {
			return fmt.Errorf("%w: %s", domain.ErrUnknownVenue, vm.Venue)
		}
	}

	m.store.SetThreshold(ticker, spec.ThresholdPercent)
	m.mu.Lock()
	m.specs[ticker] = spec
	m.mu.Unlock()

	type pending struct {
		key     string
		adapter exchange.Adapter
	}
	var starts []pending

	m.mu.Lock()
	for _, vm := range spec.Venues {
		for _, market := range vm.Markets {
			key := domain.SessionKey(ticker, vm.Venue, market)
			if _, ok := m.adapters[key]; ok {
				continue // at most one adapter per (ticker, venue, market)
			}
			adapter, err := m.factory.NewStreamAdapter(vm.Venue, market, ticker, m.sink())
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("manager: create %s adapter: %w", key, err)
			}
			m.registerLocked(key, ticker, adapter)
			starts = append(starts, pending{key: key, adapter: adapter})
		}
	}
	for _, pool := range spec.Pools {
		adapter, err := m.factory.NewPoolAdapter(pool, ticker, m.sink())
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("manager: create pool adapter %s/%s: %w", pool.Chain, pool.PairAddress, err)
		}
		key := domain.SessionKey(ticker, adapter.Venue(), domain.MarketDEX)
		if _, ok := m.adapters[key]; ok {
			continue
		}
		m.registerLocked(key, ticker, adapter)
		starts = append(starts, pending{key: key, adapter: adapter})
	}
	m.mu.Unlock()

	g, startCtx := errgroup.WithContext(ctx)
	for _, p := range starts {
		p := p
		g.Go(func() error {
			if err := p.adapter.Connect(startCtx); err != nil {
				m.logger.Error("adapter start failed",
					slog.String("key", p.key),
					slog.String("error", err.Error()),
				)
				m.mu.Lock()
				if session, ok := m.sessions[p.key]; ok {
					session.Status = domain.StatusError
					session.Error = err.Error()
				}
				m.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Info("monitoring started",
		slog.String("ticker", ticker),
		slog.Int("adapters", len(starts)),
	)
	return nil
}

// registerLocked books an adapter and its session state. Caller holds m.mu.
func (m *Manager) registerLocked(key, ticker string, adapter exchange.Adapter) {
	m.adapters[key] = adapter
	m.sessions[key] = &domain.SessionState{
		Ticker: ticker,
		Venue:  adapter.Venue(),
		Market: adapter.Market(),
		Status: domain.StatusConnecting,
	}
	adapter.OnStatus(m.handleStatus(key))
}

// handleStatus mirrors adapter status events into session state and fans
// them out to OnStatusUpdate subscribers.
func (m *Manager) handleStatus(key string) exchange.StatusFunc {
	return func(update domain.StatusUpdate) {
		m.mu.Lock()
		if session, ok := m.sessions[key]; ok {
			session.Status = update.Status
			session.Error = update.Error
			session.ReconnectAttempts = update.Attempts
			session.LastUpdateMs = update.Time.UnixMilli()
		}
		subs := make([]exchange.StatusFunc, 0, len(m.statusSubs))
		for _, fn := range m.statusSubs {
			subs = append(subs, fn)
		}
		m.mu.Unlock()

		for _, fn := range subs {
			fn(update)
		}
	}
}

// StopMonitoring disconnects every adapter belonging to the ticker and
// clears the ticker from the price store. Only the affected markets close;
// the per-market adapter granularity means a venue shared by several markets
// fully closes exactly when its last market for the ticker is stopped.
func (m *Manager) StopMonitoring(ticker string) error {
	ticker = domain.NormalizeTicker(ticker)
	if ticker == "" {
		return domain.ErrTickerMissing
	}

	m.mu.Lock()
	var closing []exchange.Adapter
	for key, adapter := range m.adapters {
		if !domain.KeyHasTicker(key, ticker) {
			continue
		}
		closing = append(closing, adapter)
		delete(m.adapters, key)
		delete(m.sessions, key)
	}
	_, known := m.specs[ticker]
	delete(m.specs, ticker)
	m.mu.Unlock()

	if len(closing) == 0 && !known {
		return domain.ErrNotMonitored
	}

	for _, adapter := range closing {
		adapter.Disconnect()
	}
	m.store.ClearTicker(ticker)

	m.logger.Info("monitoring stopped",
		slog.String("ticker", ticker),
		slog.Int("adapters", len(closing)),
	)
	return nil
}

// ReconnectExchange forces a fresh connection attempt for one session,
// resetting its reconnect budget. This is the only way out of a terminal
// error state.
func (m *Manager) ReconnectExchange(ctx context.Context, ticker, venue string, market domain.MarketKind) error {
	key := domain.SessionKey(domain.NormalizeTicker(ticker), venue, market)

	m.mu.Lock()
	adapter, ok := m.adapters[key]
	if ok {
		if session, found := m.sessions[key]; found {
			session.ReconnectAttempts = 0
			session.Error = ""
		}
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotMonitored, key)
	}
	return adapter.Reconnect(ctx)
}

// GetConnectionStatus returns session snapshots, filtered to one ticker when
// it is non-empty.
func (m *Manager) GetConnectionStatus(ticker string) []domain.SessionState {
	ticker = domain.NormalizeTicker(ticker)

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SessionState, 0, len(m.sessions))
	for key, session := range m.sessions {
		if ticker != "" && !domain.KeyHasTicker(key, ticker) {
			continue
		}
		out = append(out, *session)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		if out[i].Venue != out[j].Venue {
			return out[i].Venue < out[j].Venue
		}
		return out[i].Market < out[j].Market
	})
	return out
}

// ActiveTickers returns the monitored tickers in sorted order.
func (m *Manager) ActiveTickers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.specs))
	for ticker := range m.specs {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

// HealthCheck aggregates adapter health.
func (m *Manager) HealthCheck() Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	connected := 0
	for _, session := range m.sessions {
		if session.Status == domain.StatusConnected {
			connected++
		}
	}
	status := "ok"
	if len(m.sessions) > 0 && connected == 0 {
		status = "degraded"
	}
	return Health{
		Status:        status,
		ActiveTickers: len(m.specs),
		Sessions:      len(m.sessions),
		Connected:     connected,
		UptimeSeconds: int64(time.Since(m.started).Seconds()),
	}
}

// GetMonitoringInfo returns a per-ticker summary of the active sessions.
func (m *Manager) GetMonitoringInfo() []TickerInfo {
	m.mu.Lock()
	specs := make(map[string]domain.MonitoringSpec, len(m.specs))
	for ticker, spec := range m.specs {
		specs[ticker] = spec
	}
	m.mu.Unlock()

	tickers := make([]string, 0, len(specs))
	for ticker := range specs {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	out := make([]TickerInfo, 0, len(tickers))
	for _, ticker := range tickers {
		out = append(out, TickerInfo{
			Ticker:           ticker,
			ThresholdPercent: specs[ticker].ThresholdPercent,
			Sessions:         m.GetConnectionStatus(ticker),
		})
	}
	return out
}

// OnStatusUpdate fans every adapter status change out to fn and returns an
// unsubscribe handle.
func (m *Manager) OnStatusUpdate(fn exchange.StatusFunc) (unsubscribe func()) {
	id := uuid.NewString()
	m.mu.Lock()
	m.statusSubs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.statusSubs, id)
	}
}

// EmergencyDisconnectAll stops monitoring for every active ticker. It is
// idempotent: a second call finds nothing to stop and does nothing.
func (m *Manager) EmergencyDisconnectAll() {
	for _, ticker := range m.ActiveTickers() {
		if err := m.StopMonitoring(ticker); err != nil {
			m.logger.Warn("emergency stop failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Keys returns the active adapter keys, sorted. Exposed for tests and
// debugging; keys are opaque to API consumers.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.adapters))
	for key := range m.adapters {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// String renders the manager state for debug logs.
func (m *Manager) String() string {
	return fmt.Sprintf("manager(%s)", strings.Join(m.Keys(), ","))
}
