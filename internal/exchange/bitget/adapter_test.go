package bitget

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
)

func TestTickerParserPush(t *testing.T) {
	parse := tickerParser("BTCUSDT", domain.MarketFutures)

	frame := `{"action":"snapshot","arg":{"instType":"USDT-FUTURES","channel":"ticker","instId":"BTCUSDT"},` +
		`"data":[{"instId":"BTCUSDT","lastPr":"42002.5","ts":"1700000000456","baseVolume":"55.5"}]}`
	in, err := parse(1, []byte(frame))
	require.NoError(t, err)
	require.NotNil(t, in.Sample)
	assert.Equal(t, "bitget", in.Sample.Venue)
	assert.Equal(t, 42002.5, in.Sample.Price)
	assert.Equal(t, int64(1700000000456), in.Sample.Timestamp)
	assert.Equal(t, domain.MarketFutures, in.Sample.Market)
}

func TestTickerParserAnswersOpPing(t *testing.T) {
	parse := tickerParser("BTCUSDT", domain.MarketSpot)

	in, err := parse(1, []byte(`{"op":"ping"}`))
	require.NoError(t, err)
	assert.Nil(t, in.Sample)
	assert.JSONEq(t, `{"op":"pong"}`, string(in.Reply))
}

func TestTickerParserDropsAckAndPong(t *testing.T) {
	parse := tickerParser("BTCUSDT", domain.MarketSpot)

	in, err := parse(1, []byte(`{"event":"subscribe","arg":{"instType":"SPOT","channel":"ticker","instId":"BTCUSDT"}}`))
	require.NoError(t, err)
	assert.Nil(t, in.Sample)

	in, err = parse(1, []byte("pong"))
	require.NoError(t, err)
	assert.Nil(t, in.Sample)
}

func TestCheckListingUsesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BTCUSDT" {
			w.Write([]byte(`{"code":"00000","data":[{"instId":"BTCUSDT"}]}`))
			return
		}
		// Unknown symbols still answer 200 with an empty data array.
		w.Write([]byte(`{"code":"00000","data":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{API: srv.URL})

	listing := c.CheckListing(context.Background(), "BTC")
	assert.True(t, listing.Spot)
	assert.True(t, listing.Futures)

	listing = c.CheckListing(context.Background(), "NOPE")
	assert.False(t, listing.Listed())
}
