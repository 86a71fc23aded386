package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
)

func TestTickerParser(t *testing.T) {
	parse := tickerParser(domain.MarketSpot)

	in, err := parse(1, []byte(`{"e":"24hrTicker","E":1700000000123,"s":"BTCUSDT","c":"42000.5","v":"1234.5"}`))
	require.NoError(t, err)
	require.NotNil(t, in.Sample)
	assert.Equal(t, "binance", in.Sample.Venue)
	assert.Equal(t, "BTCUSDT", in.Sample.Symbol)
	assert.Equal(t, 42000.5, in.Sample.Price)
	assert.Equal(t, int64(1700000000123), in.Sample.Timestamp)
	assert.Equal(t, domain.MarketSpot, in.Sample.Market)
	assert.Equal(t, 1234.5, in.Sample.Volume24h)
}

func TestTickerParserDropsOtherEvents(t *testing.T) {
	parse := tickerParser(domain.MarketSpot)

	in, err := parse(1, []byte(`{"e":"depthUpdate","s":"BTCUSDT"}`))
	require.NoError(t, err)
	assert.Nil(t, in.Sample)
}

func TestTickerParserRejectsMalformedJSON(t *testing.T) {
	parse := tickerParser(domain.MarketFutures)
	_, err := parse(1, []byte(`{`))
	assert.Error(t, err)
}

func TestStreamNameIsLowercase(t *testing.T) {
	assert.Equal(t, "btcusdt@ticker", streamName("BTC"))
	assert.Equal(t, "BTCUSDT", Symbol("btc"))
}

func TestCheckListing(t *testing.T) {
	spot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BTCUSDT" {
			w.Write([]byte(`{"symbol":"BTCUSDT","price":"42000.5"}`))
			return
		}
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer spot.Close()

	futures := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "", http.StatusBadRequest)
	}))
	defer futures.Close()

	c := NewClient(Config{SpotAPI: spot.URL, FuturesAPI: futures.URL})

	listing := c.CheckListing(context.Background(), "BTC")
	assert.True(t, listing.Spot)
	assert.False(t, listing.Futures)
	assert.Equal(t, "BTCUSDT", listing.Symbol)

	listing = c.CheckListing(context.Background(), "NOPE")
	assert.False(t, listing.Listed())
}

func TestCheckListingSurvivesUnreachableAPI(t *testing.T) {
	c := NewClient(Config{SpotAPI: "http://127.0.0.1:1", FuturesAPI: "http://127.0.0.1:1"})
	listing := c.CheckListing(context.Background(), "BTC")
	assert.False(t, listing.Spot)
	assert.False(t, listing.Futures)
}
