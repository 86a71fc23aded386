package mexc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
)

// Config holds the MEXC endpoints. Zero fields fall back to production.
type Config struct {
	SpotWS     string
	FuturesWS  string
	SpotAPI    string
	FuturesAPI string

	Dialer exchange.Dialer
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.SpotWS == "" {
		c.SpotWS = "wss://wbs-api.mexc.com/ws"
	}
	if c.FuturesWS == "" {
		c.FuturesWS = "wss://contract.mexc.com/edge"
	}
	if c.SpotAPI == "" {
		c.SpotAPI = "https://api.mexc.com"
	}
	if c.FuturesAPI == "" {
		c.FuturesAPI = "https://contract.mexc.com"
	}
}

// SpotSymbol returns the spot pair symbol, e.g. BTCUSDT.
func SpotSymbol(ticker string) string {
	return strings.ToUpper(ticker) + "USDT"
}

// FuturesSymbol returns the perpetual contract symbol, e.g. BTC_USDT.
func FuturesSymbol(ticker string) string {
	return strings.ToUpper(ticker) + "_USDT"
}

// spotSubscription is the aggregated-deals channel for a symbol. The stream
// pushes protobuf wire-format frames decoded by deals.go.
func spotSubscription(symbol string) string {
	return "spot@public.aggre.deals.v3.api.pb@100ms@" + symbol
}

// NewSpotAdapter creates the spot websocket adapter. The spot stream is the
// venue's compressed binary deals channel.
func NewSpotAdapter(cfg Config, ticker string, emit exchange.SampleSink) *exchange.Session {
	cfg.applyDefaults()
	symbol := SpotSymbol(ticker)

	sub, _ := json.Marshal(map[string]any{
		"method": "SUBSCRIPTION",
		"params": []string{spotSubscription(symbol)},
	})

	return exchange.NewSession(exchange.SessionConfig{
		Ticker:          ticker,
		Venue:           exchange.VenueMEXC,
		Market:          domain.MarketSpot,
		URL:             cfg.SpotWS,
		SubscribeFrames: [][]byte{sub},
		Parse:           spotParser(symbol),
		Emit:            emit,
		Dialer:          cfg.Dialer,
		Logger:          cfg.Logger,
	})
}

// spotParser decodes binary deals frames; text frames on this stream are
// subscription acks and keepalive responses, dropped silently.
func spotParser(symbol string) exchange.Parser {
	return func(messageType int, data []byte) (exchange.Inbound, error) {
		if messageType != websocket.BinaryMessage {
			return exchange.Inbound{}, nil
		}
		deal := DecodeFirstDeal(data)
		if deal == nil {
			return exchange.Inbound{}, nil
		}
		price, err := strconv.ParseFloat(deal.Price, 64)
		if err != nil {
			return exchange.Inbound{}, fmt.Errorf("mexc: parse deal price %q: %w", deal.Price, err)
		}
		return exchange.Inbound{Sample: &domain.PriceSample{
			Venue:     exchange.VenueMEXC,
			Symbol:    symbol,
			Price:     price,
			Timestamp: deal.Time,
			Market:    domain.MarketSpot,
		}}, nil
	}
}

// NewFuturesAdapter creates the perpetual websocket adapter. The contract
// stream is JSON with an explicit sub.ticker command and in-band ping/pong.
func NewFuturesAdapter(cfg Config, ticker string, emit exchange.SampleSink) *exchange.Session {
	cfg.applyDefaults()
	symbol := FuturesSymbol(ticker)

	sub, _ := json.Marshal(map[string]any{
		"method": "sub.ticker",
		"param":  map[string]string{"symbol": symbol},
	})

	return exchange.NewSession(exchange.SessionConfig{
		Ticker:          ticker,
		Venue:           exchange.VenueMEXC,
		Market:          domain.MarketFutures,
		URL:             cfg.FuturesWS,
		SubscribeFrames: [][]byte{sub},
		Parse:           futuresParser(symbol),
		Emit:            emit,
		Dialer:          cfg.Dialer,
		Logger:          cfg.Logger,
	})
}

// futuresMessage covers every inbound shape on the contract stream.
type futuresMessage struct {
	Channel string `json:"channel"`
	Method  string `json:"method"`
	Data    struct {
		Symbol    string  `json:"symbol"`
		LastPrice float64 `json:"lastPrice"`
		Volume24  float64 `json:"volume24"`
		Timestamp int64   `json:"timestamp"`
	} `json:"data"`
}

func futuresParser(symbol string) exchange.Parser {
	return func(_ int, data []byte) (exchange.Inbound, error) {
		var msg futuresMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return exchange.Inbound{}, fmt.Errorf("mexc: decode contract frame: %w", err)
		}
		if msg.Method == "ping" {
			reply, _ := json.Marshal(map[string]string{"method": "pong"})
			return exchange.Inbound{Reply: reply}, nil
		}
		if msg.Channel != "push.ticker" || msg.Data.LastPrice <= 0 {
			return exchange.Inbound{}, nil
		}
		return exchange.Inbound{Sample: &domain.PriceSample{
			Venue:     exchange.VenueMEXC,
			Symbol:    symbol,
			Price:     msg.Data.LastPrice,
			Timestamp: msg.Data.Timestamp,
			Market:    domain.MarketFutures,
			Volume24h: msg.Data.Volume24,
		}}, nil
	}
}
