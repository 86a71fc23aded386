package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaksymDeneka/arbitrage-hub/internal/discovery"
	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
	"github.com/MaksymDeneka/arbitrage-hub/internal/manager"
	"github.com/MaksymDeneka/arbitrage-hub/internal/onchain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/pricestore"
)

// nopAdapter satisfies exchange.Adapter without touching the network.
type nopAdapter struct {
	venue  string
	market domain.MarketKind

	mu        sync.Mutex
	connected bool
}

func (a *nopAdapter) Venue() string                { return a.venue }
func (a *nopAdapter) Market() domain.MarketKind    { return a.market }
func (a *nopAdapter) OnStatus(exchange.StatusFunc) {}
func (a *nopAdapter) Connect(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	return nil
}
func (a *nopAdapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
}
func (a *nopAdapter) Reconnect(context.Context) error { return a.Connect(context.Background()) }
func (a *nopAdapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

type nopFactory struct{}

func (nopFactory) NewStreamAdapter(venue string, market domain.MarketKind, _ string, _ exchange.SampleSink) (exchange.Adapter, error) {
	return &nopAdapter{venue: venue, market: market}, nil
}

func (nopFactory) NewPoolAdapter(pool domain.PoolSpec, _ string, _ exchange.SampleSink) (exchange.Adapter, error) {
	return &nopAdapter{venue: "dex-" + pool.Chain, market: domain.MarketDEX}, nil
}

type stubLister struct {
	venue   string
	listing domain.Listing
}

func (s stubLister) Venue() string                                       { return s.venue }
func (s stubLister) CheckListing(context.Context, string) domain.Listing { return s.listing }

type fixture struct {
	store      *pricestore.Store
	manager    *manager.Manager
	monitoring *MonitoringHandler
	token      *TokenHandler
}

func newFixture(t *testing.T, listers []exchange.Lister) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := pricestore.New(logger)
	disc := discovery.New(listers, nil, logger)
	m := manager.New(store, disc, nopFactory{}, logger)
	return &fixture{
		store:      store,
		manager:    m,
		monitoring: NewMonitoringHandler(m, store, 1.0, logger),
		token:      NewTokenHandler(disc, 1.0, logger),
	}
}

func postJSON(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestStartRequiresTicker(t *testing.T) {
	f := newFixture(t, nil)
	rec := postJSON(f.monitoring.Start, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartWithCustomConfig(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"ticker":"btc","thresholdPercent":2,"useAutoConfig":false,"customConfig":{` +
		`"ticker":"BTC","venues":[{"venue":"binance","markets":["spot"]}]}}`
	rec := postJSON(f.monitoring.Start, body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Equal(t, []string{"BTC|binance|spot"}, f.manager.Keys())
	assert.Equal(t, 2.0, f.store.Threshold("BTC"))
}

func TestStartWithNeitherAutoNorCustom(t *testing.T) {
	f := newFixture(t, nil)
	rec := postJSON(f.monitoring.Start, `{"ticker":"BTC","useAutoConfig":false}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartAutoFailsWhenNothingListed(t *testing.T) {
	f := newFixture(t, []exchange.Lister{stubLister{venue: exchange.VenueBinance}})
	rec := postJSON(f.monitoring.Start, `{"ticker":"BTC"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStartAutoUsesDiscovery(t *testing.T) {
	f := newFixture(t, []exchange.Lister{
		stubLister{venue: exchange.VenueBinance, listing: domain.Listing{Spot: true, Futures: true, Symbol: "BTCUSDT"}},
	})
	rec := postJSON(f.monitoring.Start, `{"ticker":"btc"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"BTC|binance|futures", "BTC|binance|spot"}, f.manager.Keys())
}

func TestStartIgnoresUnknownFields(t *testing.T) {
	f := newFixture(t, []exchange.Lister{
		stubLister{venue: exchange.VenueBinance, listing: domain.Listing{Spot: true}},
	})
	rec := postJSON(f.monitoring.Start, `{"ticker":"BTC","bogus":123,"extra":{"a":1}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStopLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.StartMonitoring(context.Background(), domain.MonitoringSpec{
		Ticker:           "BTC",
		ThresholdPercent: 1,
		Venues:           []domain.VenueMarkets{{Venue: "binance", Markets: []domain.MarketKind{domain.MarketSpot}}},
	}))

	rec := postJSON(f.monitoring.Stop, `{"ticker":"BTC"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.manager.Keys())

	rec = postJSON(f.monitoring.Stop, `{"ticker":"BTC"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "stopping an unmonitored ticker is a client error")

	rec = postJSON(f.monitoring.Stop, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusWithTicker(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.StartMonitoring(context.Background(), domain.MonitoringSpec{
		Ticker:           "BTC",
		ThresholdPercent: 1,
		Venues:           []domain.VenueMarkets{{Venue: "binance", Markets: []domain.MarketKind{domain.MarketSpot}}},
	}))
	f.store.UpdatePrice("BTC", domain.PriceSample{Venue: "binance", Price: 42000, Market: domain.MarketSpot})

	req := httptest.NewRequest(http.MethodGet, "/api/monitoring/status?ticker=btc", nil)
	rec := httptest.NewRecorder()
	f.monitoring.Status(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"connections"`)
	assert.Contains(t, body, `"prices"`)
	assert.Contains(t, body, `"opportunities"`)
	assert.Contains(t, body, `"binance"`)
}

func TestTokenDiscover(t *testing.T) {
	f := newFixture(t, []exchange.Lister{
		stubLister{venue: exchange.VenueGateio, listing: domain.Listing{Spot: true, Symbol: "BTC_USDT"}},
	})

	rec := postJSON(f.token.Discover, `{"ticker":"BTC"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"gateio"`)

	rec = postJSON(f.token.Discover, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenRecommendConfig(t *testing.T) {
	f := newFixture(t, []exchange.Lister{
		stubLister{venue: exchange.VenueGateio, listing: domain.Listing{Spot: true, Symbol: "BTC_USDT"}},
	})

	rec := postJSON(f.token.RecommendConfig, `{"ticker":"BTC"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"config"`)
	assert.Contains(t, body, `"thresholdPercent":1`)
}

func TestExchangesSupported(t *testing.T) {
	h := NewExchangesHandler(onchain.DefaultChains())
	req := httptest.NewRequest(http.MethodGet, "/api/exchanges/supported", nil)
	rec := httptest.NewRecorder()
	h.Supported(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"total":8`)
	for _, venue := range []string{"binance", "mexc", "gateio", "bitget", "dex-ethereum"} {
		assert.Contains(t, body, venue)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	h := NewHealthHandler(f.manager)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
