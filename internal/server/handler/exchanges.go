package handler

import (
	"net/http"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
	"github.com/MaksymDeneka/arbitrage-hub/internal/onchain"
)

// ExchangesHandler serves the supported-venue metadata.
type ExchangesHandler struct {
	chains []onchain.Chain
}

// NewExchangesHandler creates the venue metadata handler.
func NewExchangesHandler(chains []onchain.Chain) *ExchangesHandler {
	return &ExchangesHandler{chains: chains}
}

// venueInfo describes one supported venue to API consumers.
type venueInfo struct {
	Name    string              `json:"name"`
	Kind    domain.VenueKind    `json:"kind"`
	Markets []domain.MarketKind `json:"markets"`
}

// Supported handles GET /api/exchanges/supported.
func (h *ExchangesHandler) Supported(w http.ResponseWriter, _ *http.Request) {
	venues := make([]venueInfo, 0, len(exchange.Venues)+len(h.chains))
	for _, name := range exchange.Venues {
		venues = append(venues, venueInfo{
			Name:    name,
			Kind:    domain.VenueCEXSpot,
			Markets: []domain.MarketKind{domain.MarketSpot, domain.MarketFutures},
		})
	}
	for _, chain := range h.chains {
		venues = append(venues, venueInfo{
			Name:    chain.VenueID(),
			Kind:    domain.VenueOnChainAMM,
			Markets: []domain.MarketKind{domain.MarketDEX},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exchanges": venues,
		"total":     len(venues),
	})
}
