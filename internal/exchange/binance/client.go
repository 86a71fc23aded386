package binance

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
)

// Client probes the Binance REST APIs for ticker availability.
type Client struct {
	spotAPI    string
	futuresAPI string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a listing client. Empty base URLs select production.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		spotAPI:    cfg.SpotAPI,
		futuresAPI: cfg.FuturesAPI,
		httpClient: &http.Client{Timeout: exchange.ListingTimeout},
		logger:     logger.With(slog.String("venue", exchange.VenueBinance)),
	}
}

// Venue implements exchange.Lister.
func (c *Client) Venue() string { return exchange.VenueBinance }

// CheckListing implements exchange.Lister: one probe per market. Probe
// failures count as unlisted and never surface as errors.
func (c *Client) CheckListing(ctx context.Context, ticker string) domain.Listing {
	symbol := Symbol(ticker)
	return domain.Listing{
		Spot:    c.probe(ctx, fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.spotAPI, symbol)),
		Futures: c.probe(ctx, fmt.Sprintf("%s/fapi/v1/ticker/price?symbol=%s", c.futuresAPI, symbol)),
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
