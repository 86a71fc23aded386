package gateio

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
)

// Client probes the Gate.io REST API for ticker availability.
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
		logger:     logger.With(slog.String("venue", exchange.VenueGateio)),
	}
}

// Venue implements exchange.Lister.
func (c *Client) Venue() string { return exchange.VenueGateio }

// CheckListing implements exchange.Lister.
func (c *Client) CheckListing(ctx context.Context, ticker string) domain.Listing {
	symbol := Symbol(ticker)
	return domain.Listing{
		Spot:    c.probe(ctx, fmt.Sprintf("%s/api/v4/spot/currency_pairs/%s", c.api, symbol)),
		Futures: c.probe(ctx, fmt.Sprintf("%s/api/v4/futures/usdt/contracts/%s", c.api, symbol)),
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
	return resp.StatusCode == http.StatusOK
}
