// Package gateio implements the Gate.io venue adapter. Subscriptions use the
// venue's time/channel/event triple; spot and USDT-futures tickers are JSON.
package gateio

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
)

// Config holds the Gate.io endpoints. Zero fields fall back to production.
type Config struct {
	SpotWS    string
	FuturesWS string
	API       string

	Dialer exchange.Dialer
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.SpotWS == "" {
		c.SpotWS = "wss://api.gateio.ws/ws/v4/"
	}
	if c.FuturesWS == "" {
		c.FuturesWS = "wss://fx-ws.gateio.ws/v4/ws/usdt"
	}
	if c.API == "" {
		c.API = "https://api.gateio.ws"
	}
}

// Symbol returns the Gate.io pair symbol, e.g. BTC_USDT. Spot and futures
// use the same shape.
func Symbol(ticker string) string {
	return strings.ToUpper(ticker) + "_USDT"
}

// subscribeFrame builds the venue's time/channel/event subscription triple.
func subscribeFrame(channel, symbol string) []byte {
	frame, _ := json.Marshal(map[string]any{
		"time":    time.Now().Unix(),
		"channel": channel,
		"event":   "subscribe",
		"payload": []string{symbol},
	})
	return frame
}

// NewSpotAdapter creates the spot websocket adapter for ticker.
func NewSpotAdapter(cfg Config, ticker string, emit exchange.SampleSink) *exchange.Session {
	cfg.applyDefaults()
	symbol := Symbol(ticker)
	return exchange.NewSession(exchange.SessionConfig{
		Ticker:          ticker,
		Venue:           exchange.VenueGateio,
		Market:          domain.MarketSpot,
		URL:             cfg.SpotWS,
		SubscribeFrames: [][]byte{subscribeFrame("spot.tickers", symbol)},
		Parse:           spotParser(symbol),
		Emit:            emit,
		Dialer:          cfg.Dialer,
		Logger:          cfg.Logger,
	})
}

// NewFuturesAdapter creates the USDT-perpetual websocket adapter for ticker.
func NewFuturesAdapter(cfg Config, ticker string, emit exchange.SampleSink) *exchange.Session {
	cfg.applyDefaults()
	symbol := Symbol(ticker)
	return exchange.NewSession(exchange.SessionConfig{
		Ticker:          ticker,
		Venue:           exchange.VenueGateio,
		Market:          domain.MarketFutures,
		URL:             cfg.FuturesWS,
		SubscribeFrames: [][]byte{subscribeFrame("futures.tickers", symbol)},
		Parse:           futuresParser(symbol),
		Emit:            emit,
		Dialer:          cfg.Dialer,
		Logger:          cfg.Logger,
	})
}

// envelope is the common wrapper of every Gate.io stream message. Result is
// kept raw because spot carries an object and futures an array.
type envelope struct {
	Time    int64           `json:"time"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Result  json.RawMessage `json:"result"`
}

type spotTicker struct {
	CurrencyPair string `json:"currency_pair"`
	Last         string `json:"last"`
	BaseVolume   string `json:"base_volume"`
}

func spotParser(symbol string) exchange.Parser {
	return func(_ int, data []byte) (exchange.Inbound, error) {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return exchange.Inbound{}, fmt.Errorf("gateio: decode frame: %w", err)
		}
		// Subscription acks and other control events carry event values
		// other than "update".
		if env.Event != "update" || env.Channel != "spot.tickers" {
			return exchange.Inbound{}, nil
		}
		var tick spotTicker
		if err := json.Unmarshal(env.Result, &tick); err != nil {
			return exchange.Inbound{}, fmt.Errorf("gateio: decode ticker: %w", err)
		}
		price, err := strconv.ParseFloat(tick.Last, 64)
		if err != nil {
			return exchange.Inbound{}, fmt.Errorf("gateio: parse price %q: %w", tick.Last, err)
		}
		volume, _ := strconv.ParseFloat(tick.BaseVolume, 64)
		return exchange.Inbound{Sample: &domain.PriceSample{
			Venue:     exchange.VenueGateio,
			Symbol:    symbol,
			Price:     price,
			Timestamp: env.Time * 1000,
			Market:    domain.MarketSpot,
			Volume24h: volume,
		}}, nil
	}
}

type futuresTicker struct {
	Contract string `json:"contract"`
	Last     string `json:"last"`
	Volume   string `json:"volume_24h_base"`
}

func futuresParser(symbol string) exchange.Parser {
	return func(_ int, data []byte) (exchange.Inbound, error) {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return exchange.Inbound{}, fmt.Errorf("gateio: decode frame: %w", err)
		}
		if env.Event != "update" || env.Channel != "futures.tickers" {
			return exchange.Inbound{}, nil
		}
		// The futures channel pushes a batch; only the subscribed
		// contract matters.
		var ticks []futuresTicker
		if err := json.Unmarshal(env.Result, &ticks); err != nil {
			return exchange.Inbound{}, fmt.Errorf("gateio: decode tickers: %w", err)
		}
		for _, tick := range ticks {
			if tick.Contract != symbol {
				continue
			}
			price, err := strconv.ParseFloat(tick.Last, 64)
			if err != nil {
				return exchange.Inbound{}, fmt.Errorf("gateio: parse price %q: %w", tick.Last, err)
			}
			volume, _ := strconv.ParseFloat(tick.Volume, 64)
			return exchange.Inbound{Sample: &domain.PriceSample{
				Venue:     exchange.VenueGateio,
				Symbol:    symbol,
				Price:     price,
				Timestamp: env.Time * 1000,
				Market:    domain.MarketFutures,
				Volume24h: volume,
			}}, nil
		}
		return exchange.Inbound{}, nil
	}
}
