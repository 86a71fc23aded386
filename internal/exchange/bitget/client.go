package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
)

// Client probes the Bitget REST API for ticker availability.
type Client struct {
	api        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a listing client. An empty base URL selects production.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:        cfg.API,
		httpClient: &http.Client{Timeout: exchange.ListingTimeout},
		logger:     logger.With(slog.String("venue", exchange.VenueBitget)),
	}
}

// Venue implements exchange.Lister.
func (c *Client) Venue() string { return exchange.VenueBitget }

// CheckListing implements exchange.Lister. Bitget wraps everything in a
// code/data envelope and returns 200 even for unknown symbols, so a listing
// requires code "00000" and a non-empty data array.
func (c *Client) CheckListing(ctx context.Context, ticker string) domain.Listing {
	symbol := Symbol(ticker)
	spotURL := fmt.Sprintf("%s/api/v2/spot/market/tickers?symbol=%s", c.api, symbol)
	futuresURL := fmt.Sprintf("%s/api/v2/mix/market/ticker?productType=%s&symbol=%s",
		c.api, instTypeFutures, symbol)
	return domain.Listing{
		Spot:    c.probe(ctx, spotURL),
		Futures: c.probe(ctx, futuresURL),
		Symbol:  symbol,
	}
}

func (c *Client) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("listing probe failed", slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var envelope struct {
		Code string          `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return false
	}
	return envelope.Code == "00000" && len(envelope.Data) > 2 // more than "[]"
}
