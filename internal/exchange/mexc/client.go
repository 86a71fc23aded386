package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
)

// Client probes the MEXC REST APIs for ticker availability.
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
		logger:     logger.With(slog.String("venue", exchange.VenueMEXC)),
	}
}

// Venue implements exchange.Lister.
func (c *Client) Venue() string { return exchange.VenueMEXC }

// CheckListing implements exchange.Lister. The contract API wraps results in
// a success envelope, so the futures probe checks the flag rather than the
// status code alone.
func (c *Client) CheckListing(ctx context.Context, ticker string) domain.Listing {
	spot := c.probeSpot(ctx, SpotSymbol(ticker))
	futures := c.probeFutures(ctx, FuturesSymbol(ticker))
	return domain.Listing{Spot: spot, Futures: futures, Symbol: SpotSymbol(ticker)}
}

func (c *Client) probeSpot(ctx context.Context, symbol string) bool {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.spotAPI, symbol)
	resp, ok := c.get(ctx, url)
	if !ok {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) probeFutures(ctx context.Context, symbol string) bool {
	url := fmt.Sprintf("%s/api/v1/contract/detail?symbol=%s", c.futuresAPI, symbol)
	resp, ok := c.get(ctx, url)
	if !ok {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var envelope struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return false
	}
	return envelope.Success
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("listing probe failed", slog.String("error", err.Error()))
		return nil, false
	}
	return resp, true
}
