// Package bitget implements the Bitget venue adapter. Spot and USDT-futures
// share one public websocket endpoint; markets are selected through the
// instType field of the op/args subscribe command.
package bitget

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
)

// Config holds the Bitget endpoints. Zero fields fall back to production.
type Config struct {
	WS  string
	API string

	Dialer exchange.Dialer
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.WS == "" {
		c.WS = "wss://ws.bitget.com/v2/ws/public"
	}
	if c.API == "" {
		c.API = "https://api.bitget.com"
	}
}

// Symbol returns the Bitget pair symbol, e.g. BTCUSDT. Spot and futures use
// the same shape; the instType field distinguishes the market.
func Symbol(ticker string) string {
	return strings.ToUpper(ticker) + "USDT"
}

const (
	instTypeSpot    = "SPOT"
	instTypeFutures = "USDT-FUTURES"
)

type subArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

func subscribeFrame(instType, symbol string) []byte {
	frame, _ := json.Marshal(map[string]any{
		"op":   "subscribe",
		"args": []subArg{{InstType: instType, Channel: "ticker", InstID: symbol}},
	})
	return frame
}

// NewSpotAdapter creates the spot websocket adapter for ticker.
func NewSpotAdapter(cfg Config, ticker string, emit exchange.SampleSink) *exchange.Session {
	return newAdapter(cfg, ticker, domain.MarketSpot, instTypeSpot, emit)
}

// NewFuturesAdapter creates the USDT-perpetual websocket adapter for ticker.
func NewFuturesAdapter(cfg Config, ticker string, emit exchange.SampleSink) *exchange.Session {
	return newAdapter(cfg, ticker, domain.MarketFutures, instTypeFutures, emit)
}

func newAdapter(cfg Config, ticker string, market domain.MarketKind, instType string, emit exchange.SampleSink) *exchange.Session {
	cfg.applyDefaults()
	symbol := Symbol(ticker)
	return exchange.NewSession(exchange.SessionConfig{
		Ticker:          ticker,
		Venue:           exchange.VenueBitget,
		Market:          market,
		URL:             cfg.WS,
		SubscribeFrames: [][]byte{subscribeFrame(instType, symbol)},
		Parse:           tickerParser(symbol, market),
		Emit:            emit,
		Dialer:          cfg.Dialer,
		Logger:          cfg.Logger,
	})
}

// pushMessage covers subscription acks, pings, and ticker pushes.
type pushMessage struct {
	Op     string `json:"op"`
	Event  string `json:"event"`
	Action string `json:"action"`
	Data   []struct {
		InstID string `json:"instId"`
		LastPr string `json:"lastPr"`
		Ts     string `json:"ts"`
		BaseV  string `json:"baseVolume"`
	} `json:"data"`
}

func tickerParser(symbol string, market domain.MarketKind) exchange.Parser {
	return func(_ int, data []byte) (exchange.Inbound, error) {
		// The venue answers protocol keepalive with a bare "pong" text.
		if string(data) == "pong" {
			return exchange.Inbound{}, nil
		}
		var msg pushMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return exchange.Inbound{}, fmt.Errorf("bitget: decode frame: %w", err)
		}
		if msg.Op == "ping" {
			reply, _ := json.Marshal(map[string]string{"op": "pong"})
			return exchange.Inbound{Reply: reply}, nil
		}
		// event != "" means a subscription ack or error notice.
		if msg.Event != "" || len(msg.Data) == 0 {
			return exchange.Inbound{}, nil
		}
		tick := msg.Data[0]
		price, err := strconv.ParseFloat(tick.LastPr, 64)
		if err != nil {
			return exchange.Inbound{}, fmt.Errorf("bitget: parse price %q: %w", tick.LastPr, err)
		}
		ts, _ := strconv.ParseInt(tick.Ts, 10, 64)
		volume, _ := strconv.ParseFloat(tick.BaseV, 64)
		return exchange.Inbound{Sample: &domain.PriceSample{
			Venue:     exchange.VenueBitget,
			Symbol:    symbol,
			Price:     price,
			Timestamp: ts,
			Market:    market,
			Volume24h: volume,
		}}, nil
	}
}
