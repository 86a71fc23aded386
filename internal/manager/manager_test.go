package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaksymDeneka/arbitrage-hub/internal/discovery"
	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
	"github.com/MaksymDeneka/arbitrage-hub/internal/pricestore"
)

// stubAdapter is a scripted adapter for manager tests.
type stubAdapter struct {
	venue  string
	market domain.MarketKind

	mu         sync.Mutex
	statusFn   exchange.StatusFunc
	connected  bool
	connectErr error
	connects   int
	reconnects int
}

func (a *stubAdapter) Venue() string                   { return a.venue }
func (a *stubAdapter) Market() domain.MarketKind       { return a.market }
func (a *stubAdapter) OnStatus(fn exchange.StatusFunc) { a.mu.Lock(); a.statusFn = fn; a.mu.Unlock() }

func (a *stubAdapter) Connect(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connects++
	if a.connectErr != nil {
		return a.connectErr
	}
	a.connected = true
	return nil
}

func (a *stubAdapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
}

func (a *stubAdapter) Reconnect(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reconnects++
	a.connected = true
	return nil
}

func (a *stubAdapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *stubAdapter) pushStatus(u domain.StatusUpdate) {
	a.mu.Lock()
	fn := a.statusFn
	a.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

// stubFactory hands out stub adapters and remembers them by key.
type stubFactory struct {
	mu       sync.Mutex
	adapters map[string]*stubAdapter
	sinks    map[string]exchange.SampleSink
	failFor  string // venue whose adapters fail to connect
}

func newStubFactory() *stubFactory {
	return &stubFactory{
		adapters: make(map[string]*stubAdapter),
		sinks:    make(map[string]exchange.SampleSink),
	}
}

func (f *stubFactory) NewStreamAdapter(venue string, market domain.MarketKind, ticker string, emit exchange.SampleSink) (exchange.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &stubAdapter{venue: venue, market: market}
	if venue == f.failFor {
		a.connectErr = errors.New("dial failed")
	}
	key := domain.SessionKey(ticker, venue, market)
	f.adapters[key] = a
	f.sinks[key] = emit
	return a, nil
}

func (f *stubFactory) NewPoolAdapter(pool domain.PoolSpec, ticker string, emit exchange.SampleSink) (exchange.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &stubAdapter{venue: "dex-" + pool.Chain, market: domain.MarketDEX}
	key := domain.SessionKey(ticker, a.venue, domain.MarketDEX)
	f.adapters[key] = a
	f.sinks[key] = emit
	return a, nil
}

func (f *stubFactory) adapter(key string) *stubAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adapters[key]
}

func (f *stubFactory) sink(key string) exchange.SampleSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[key]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSpec() domain.MonitoringSpec {
	return domain.MonitoringSpec{
		Ticker:           "BTC",
		ThresholdPercent: 1.5,
		Venues: []domain.VenueMarkets{
			{Venue: exchange.VenueBinance, Markets: []domain.MarketKind{domain.MarketSpot, domain.MarketFutures}},
			{Venue: exchange.VenueGateio, Markets: []domain.MarketKind{domain.MarketSpot}},
		},
		Pools: []domain.PoolSpec{
			{Chain: "ethereum", PairAddress: "0x0d4a11d5EEaaC28EC3F61d100daf4d40471f1852"},
		},
	}
}

func newTestManager(factory AdapterFactory) (*Manager, *pricestore.Store) {
	logger := testLogger()
	store := pricestore.New(logger)
	disc := discovery.New(nil, nil, logger)
	return New(store, disc, factory, logger), store
}

func TestStartMonitoringCreatesAdapters(t *testing.T) {
	factory := newStubFactory()
	m, store := newTestManager(factory)

	require.NoError(t, m.StartMonitoring(context.Background(), testSpec()))

	assert.Equal(t, []string{
		"BTC|binance|futures",
		"BTC|binance|spot",
		"BTC|dex-ethereum|dex",
		"BTC|gateio|spot",
	}, m.Keys())
	assert.Equal(t, 1.5, store.Threshold("BTC"))
	assert.True(t, factory.adapter("BTC|binance|spot").IsConnected())
}

func TestStartMonitoringIsIdempotentPerSession(t *testing.T) {
	factory := newStubFactory()
	m, _ := newTestManager(factory)

	require.NoError(t, m.StartMonitoring(context.Background(), testSpec()))
	first := factory.adapter("BTC|binance|spot")
	require.NoError(t, m.StartMonitoring(context.Background(), testSpec()))

	assert.Equal(t, 1, first.connects, "existing session must be reused")
	assert.Len(t, m.Keys(), 4)
}

func TestStartMonitoringRejectsUnknownVenue(t *testing.T) {
	factory := newStubFactory()
	m, _ := newTestManager(factory)

	err := m.StartMonitoring(context.Background(), domain.MonitoringSpec{
		Ticker: "BTC",
		Venues: []domain.VenueMarkets{{Venue: "kraken", Markets: []domain.MarketKind{domain.MarketSpot}}},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)
}

func TestStartMonitoringRecordsIndividualFailures(t *testing.T) {
	factory := newStubFactory()
	factory.failFor = exchange.VenueGateio
	m, _ := newTestManager(factory)

	require.NoError(t, m.StartMonitoring(context.Background(), testSpec()))

	var gateio domain.SessionState
	for _, s := range m.GetConnectionStatus("BTC") {
		if s.Venue == exchange.VenueGateio {
			gateio = s
		}
	}
	assert.Equal(t, domain.StatusError, gateio.Status)
	assert.Equal(t, "dial failed", gateio.Error)
	// The failing venue must not prevent others from connecting.
	assert.True(t, factory.adapter("BTC|binance|spot").IsConnected())
}

func TestStopMonitoringClearsEverything(t *testing.T) {
	factory := newStubFactory()
	m, store := newTestManager(factory)

	require.NoError(t, m.StartMonitoring(context.Background(), testSpec()))
	sink := factory.sink("BTC|binance|spot")
	sink("BTC", domain.PriceSample{Venue: "binance", Price: 100, Market: domain.MarketSpot})

	require.NoError(t, m.StopMonitoring("btc"))

	assert.Empty(t, m.Keys(), "no adapter key may begin with the ticker")
	assert.Empty(t, store.GetPrices("BTC"))
	assert.False(t, factory.adapter("BTC|binance|spot").IsConnected())

	assert.ErrorIs(t, m.StopMonitoring("BTC"), domain.ErrNotMonitored)
}

func TestStartStopStartIsEquivalentToSingleStart(t *testing.T) {
	factory := newStubFactory()
	m, store := newTestManager(factory)
	spec := testSpec()

	require.NoError(t, m.StartMonitoring(context.Background(), spec))
	require.NoError(t, m.StopMonitoring("BTC"))
	require.NoError(t, m.StartMonitoring(context.Background(), spec))

	assert.Len(t, m.Keys(), 4)
	assert.Equal(t, spec.ThresholdPercent, store.Threshold("BTC"))
	assert.Equal(t, []string{"BTC"}, m.ActiveTickers())
}

func TestSinkUpdatesStoreAndSessionStamp(t *testing.T) {
	factory := newStubFactory()
	m, store := newTestManager(factory)
	require.NoError(t, m.StartMonitoring(context.Background(), testSpec()))

	sink := factory.sink("BTC|gateio|spot")
	sink("BTC", domain.PriceSample{Venue: "gateio", Symbol: "BTC_USDT", Price: 42000, Timestamp: 1, Market: domain.MarketSpot})

	prices := store.GetPrices("BTC")
	require.Contains(t, prices, "gateio")
	assert.Equal(t, 42000.0, prices["gateio"].Price)

	for _, s := range m.GetConnectionStatus("BTC") {
		if s.Venue == "gateio" {
			assert.Positive(t, s.LastUpdateMs)
		}
	}
}

func TestReconnectExchange(t *testing.T) {
	factory := newStubFactory()
	m, _ := newTestManager(factory)
	require.NoError(t, m.StartMonitoring(context.Background(), testSpec()))

	require.NoError(t, m.ReconnectExchange(context.Background(), "BTC", exchange.VenueBinance, domain.MarketSpot))
	assert.Equal(t, 1, factory.adapter("BTC|binance|spot").reconnects)

	err := m.ReconnectExchange(context.Background(), "ETH", exchange.VenueBinance, domain.MarketSpot)
	assert.ErrorIs(t, err, domain.ErrNotMonitored)
}

func TestStatusFanOut(t *testing.T) {
	factory := newStubFactory()
	m, _ := newTestManager(factory)
	require.NoError(t, m.StartMonitoring(context.Background(), testSpec()))

	var mu sync.Mutex
	var got []domain.StatusUpdate
	unsub := m.OnStatusUpdate(func(u domain.StatusUpdate) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, u)
	})

	factory.adapter("BTC|binance|spot").pushStatus(domain.StatusUpdate{
		Ticker: "BTC", Venue: "binance", Market: domain.MarketSpot,
		Status: domain.StatusDisconnected, Time: time.Now(),
	})

	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, domain.StatusDisconnected, got[0].Status)
	mu.Unlock()

	// The mirrored session state reflects the update.
	for _, s := range m.GetConnectionStatus("BTC") {
		if s.Venue == "binance" && s.Market == domain.MarketSpot {
			assert.Equal(t, domain.StatusDisconnected, s.Status)
		}
	}

	unsub()
	factory.adapter("BTC|binance|spot").pushStatus(domain.StatusUpdate{Status: domain.StatusConnected})
	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()
}

func TestEmergencyDisconnectAllIsIdempotent(t *testing.T) {
	factory := newStubFactory()
	m, _ := newTestManager(factory)

	require.NoError(t, m.StartMonitoring(context.Background(), testSpec()))
	eth := testSpec()
	eth.Ticker = "ETH"
	require.NoError(t, m.StartMonitoring(context.Background(), eth))

	m.EmergencyDisconnectAll()
	assert.Empty(t, m.Keys())
	assert.Empty(t, m.ActiveTickers())

	m.EmergencyDisconnectAll() // second call is a no-op
	assert.Empty(t, m.Keys())
}

func TestHealthCheck(t *testing.T) {
	factory := newStubFactory()
	m, _ := newTestManager(factory)
	require.NoError(t, m.StartMonitoring(context.Background(), testSpec()))

	// Mark one session connected via its status stream.
	factory.adapter("BTC|binance|spot").pushStatus(domain.StatusUpdate{
		Ticker: "BTC", Venue: "binance", Market: domain.MarketSpot,
		Status: domain.StatusConnected, Time: time.Now(),
	})

	h := m.HealthCheck()
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 1, h.ActiveTickers)
	assert.Equal(t, 4, h.Sessions)
	assert.GreaterOrEqual(t, h.Connected, 1)
}
