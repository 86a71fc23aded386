// Package binance implements the Binance venue adapter. Both the spot and
// the USDT-margined futures streams carry the whole subscription in the URL,
// so no subscribe frame is sent; frames are plain JSON 24h-ticker events.
package binance

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
)

// Config holds the Binance endpoints. Zero fields fall back to production.
type Config struct {
	SpotWS     string
	FuturesWS  string
	SpotAPI    string
	FuturesAPI string

	// Dialer and Logger are injected by the adapter factory; tests
	// substitute stubs.
	Dialer exchange.Dialer
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.SpotWS == "" {
		c.SpotWS = "wss://stream.binance.com:9443/ws"
	}
	if c.FuturesWS == "" {
		c.FuturesWS = "wss://fstream.binance.com/ws"
	}
	if c.SpotAPI == "" {
		c.SpotAPI = "https://api.binance.com"
	}
	if c.FuturesAPI == "" {
		c.FuturesAPI = "https://fapi.binance.com"
	}
}

// Symbol returns the Binance pair symbol for a ticker. Spot and futures use
// the same shape.
func Symbol(ticker string) string {
	return strings.ToUpper(ticker) + "USDT"
}

// streamName is the lowercase URL path segment selecting the ticker stream.
func streamName(ticker string) string {
	return strings.ToLower(ticker) + "usdt@ticker"
}

// NewSpotAdapter creates the spot websocket adapter for ticker.
func NewSpotAdapter(cfg Config, ticker string, emit exchange.SampleSink) *exchange.Session {
	cfg.applyDefaults()
	return exchange.NewSession(exchange.SessionConfig{
		Ticker: ticker,
		Venue:  exchange.VenueBinance,
		Market: domain.MarketSpot,
		URL:    fmt.Sprintf("%s/%s", cfg.SpotWS, streamName(ticker)),
		Parse:  tickerParser(domain.MarketSpot),
		Emit:   emit,
		Dialer: cfg.Dialer,
		Logger: cfg.Logger,
	})
}

// NewFuturesAdapter creates the USDT-perpetual websocket adapter for ticker.
func NewFuturesAdapter(cfg Config, ticker string, emit exchange.SampleSink) *exchange.Session {
	cfg.applyDefaults()
	return exchange.NewSession(exchange.SessionConfig{
		Ticker: ticker,
		Venue:  exchange.VenueBinance,
		Market: domain.MarketFutures,
		URL:    fmt.Sprintf("%s/%s", cfg.FuturesWS, streamName(ticker)),
		Parse:  tickerParser(domain.MarketFutures),
		Emit:   emit,
		Dialer: cfg.Dialer,
		Logger: cfg.Logger,
	})
}

// tickerEvent is the subset of the 24hrTicker payload we consume.
type tickerEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	Volume    string `json:"v"`
}

func tickerParser(market domain.MarketKind) exchange.Parser {
	return func(_ int, data []byte) (exchange.Inbound, error) {
		var ev tickerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return exchange.Inbound{}, fmt.Errorf("binance: decode frame: %w", err)
		}
		if ev.Event != "24hrTicker" || ev.LastPrice == "" {
			return exchange.Inbound{}, nil
		}
		price, err := strconv.ParseFloat(ev.LastPrice, 64)
		if err != nil {
			return exchange.Inbound{}, fmt.Errorf("binance: parse price %q: %w", ev.LastPrice, err)
		}
		volume, _ := strconv.ParseFloat(ev.Volume, 64)
		return exchange.Inbound{Sample: &domain.PriceSample{
			Venue:     exchange.VenueBinance,
			Symbol:    ev.Symbol,
			Price:     price,
			Timestamp: ev.EventTime,
			Market:    market,
			Volume24h: volume,
		}}, nil
	}
}
