// Package discovery resolves a ticker into a MonitoringSpec by probing every
// supported venue's REST listing endpoints in parallel and assembling the
// set of venues that actually list the asset.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
	"github.com/MaksymDeneka/arbitrage-hub/internal/onchain"
)

// Result is the outcome of one discovery run: the resolved spec plus
// human-readable notes for the caller.
type Result struct {
	Ticker          string                    `json:"ticker"`
	Spec            domain.MonitoringSpec     `json:"spec"`
	Listings        map[string]domain.Listing `json:"listings"`
	Recommendations []string                  `json:"recommendations"`
}

// Service fans listing probes out over the known venues and chains.
type Service struct {
	listers []exchange.Lister
	chains  []onchain.Chain
	logger  *slog.Logger
}

// New creates a discovery service over the given venue listers and chains.
func New(listers []exchange.Lister, chains []onchain.Chain, logger *slog.Logger) *Service {
	return &Service{
		listers: listers,
		chains:  chains,
		logger:  logger.With(slog.String("component", "discovery")),
	}
}

// Discover probes every venue in parallel and builds a MonitoringSpec with
// the threshold passed through verbatim. Venues without a single listed
// market are dropped; if none remain, domain.ErrNoVenuesFound is returned.
func (s *Service) Discover(ctx context.Context, ticker string, thresholdPercent float64) (*Result, error) {
	ticker = domain.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, domain.ErrTickerMissing
	}

	var mu sync.Mutex
	listings := make(map[string]domain.Listing, len(s.listers))

	g, probeCtx := errgroup.WithContext(ctx)
	for _, lister := range s.listers {
		lister := lister
		g.Go(func() error {
			listing := lister.CheckListing(probeCtx, ticker)
			mu.Lock()
			listings[lister.Venue()] = listing
			mu.Unlock()
			return nil
		})
	}
	for _, chain := range s.chains {
		chain := chain
		g.Go(func() error {
			if s.probeChain(probeCtx, chain, ticker) {
				mu.Lock()
				listings[chain.VenueID()] = domain.Listing{Spot: true}
				mu.Unlock()
			}
			return nil
		})
	}
	// Probes never return errors; the group is used purely for the join.
	_ = g.Wait()

	result := &Result{
		Ticker:   ticker,
		Listings: listings,
		Spec: domain.MonitoringSpec{
			Ticker:           ticker,
			ThresholdPercent: thresholdPercent,
		},
	}

	venues := make([]string, 0, len(listings))
	for venue := range listings {
		venues = append(venues, venue)
	}
	sort.Strings(venues)

	for _, venue := range venues {
		listing := listings[venue]
		if !listing.Listed() || !exchange.KnownVenue(venue) {
			continue
		}
		vm := domain.VenueMarkets{Venue: venue, Symbol: listing.Symbol}
		if listing.Spot {
			vm.Markets = append(vm.Markets, domain.MarketSpot)
		}
		if listing.Futures {
			vm.Markets = append(vm.Markets, domain.MarketFutures)
		}
		result.Spec.Venues = append(result.Spec.Venues, vm)
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("%s lists %s on %d market(s)", venue, ticker, len(vm.Markets)))
	}

	if len(result.Spec.Venues) == 0 && len(result.Spec.Pools) == 0 {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("no supported venue lists %s", ticker))
		return result, domain.ErrNoVenuesFound
	}

	s.logger.Info("discovery complete",
		slog.String("ticker", ticker),
		slog.Int("venues", len(result.Spec.Venues)),
	)
	return result, nil
}

// probeChain checks whether the ticker has a usable pool on the chain.
//
// TODO: resolve the target token address for the ticker (a symbol registry
// or token-list lookup) and query the factory via onchain.FindPair. Without
// that mapping the probe cannot identify the token contract, so it reports
// no listing for now; pools still monitor fine when given explicitly in a
// custom MonitoringSpec.
func (s *Service) probeChain(_ context.Context, _ onchain.Chain, _ string) bool {
	return false
}
