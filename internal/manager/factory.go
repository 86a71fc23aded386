package manager

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange/binance"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange/bitget"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange/gateio"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange/mexc"
	"github.com/MaksymDeneka/arbitrage-hub/internal/onchain"
)

// VenueEndpoints bundles the per-venue endpoint configuration. Zero values
// select each venue's production endpoints.
type VenueEndpoints struct {
	Binance binance.Config
	MEXC    mexc.Config
	Gateio  gateio.Config
	Bitget  bitget.Config
}

// Factory is the default AdapterFactory wiring the real venue packages and
// the on-chain poller.
type Factory struct {
	endpoints VenueEndpoints
	chains    []onchain.Chain
	native    *onchain.NativePriceCache
	logger    *slog.Logger
}

// NewFactory creates the production adapter factory.
func NewFactory(endpoints VenueEndpoints, chains []onchain.Chain, logger *slog.Logger) *Factory {
	endpoints.Binance.Logger = logger
	endpoints.MEXC.Logger = logger
	endpoints.Gateio.Logger = logger
	endpoints.Bitget.Logger = logger
	return &Factory{
		endpoints: endpoints,
		chains:    chains,
		native:    onchain.NewNativePriceCache(0),
		logger:    logger,
	}
}

// NewStreamAdapter implements AdapterFactory.
func (f *Factory) NewStreamAdapter(venue string, market domain.MarketKind, ticker string, emit exchange.SampleSink) (exchange.Adapter, error) {
	if market != domain.MarketSpot && market != domain.MarketFutures {
		return nil, fmt.Errorf("manager: unsupported market %q for venue %s", market, venue)
	}
	spot := market == domain.MarketSpot

	switch venue {
	case exchange.VenueBinance:
		if spot {
			return binance.NewSpotAdapter(f.endpoints.Binance, ticker, emit), nil
		}
		return binance.NewFuturesAdapter(f.endpoints.Binance, ticker, emit), nil
	case exchange.VenueMEXC:
		if spot {
			return mexc.NewSpotAdapter(f.endpoints.MEXC, ticker, emit), nil
		}
		return mexc.NewFuturesAdapter(f.endpoints.MEXC, ticker, emit), nil
	case exchange.VenueGateio:
		if spot {
			return gateio.NewSpotAdapter(f.endpoints.Gateio, ticker, emit), nil
		}
		return gateio.NewFuturesAdapter(f.endpoints.Gateio, ticker, emit), nil
	case exchange.VenueBitget:
		if spot {
			return bitget.NewSpotAdapter(f.endpoints.Bitget, ticker, emit), nil
		}
		return bitget.NewFuturesAdapter(f.endpoints.Bitget, ticker, emit), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownVenue, venue)
	}
}

// NewPoolAdapter implements AdapterFactory.
func (f *Factory) NewPoolAdapter(pool domain.PoolSpec, ticker string, emit exchange.SampleSink) (exchange.Adapter, error) {
	chain, ok := onchain.FindChain(f.chains, pool.Chain)
	if !ok {
		return nil, fmt.Errorf("manager: unknown chain %q", pool.Chain)
	}
	if !common.IsHexAddress(pool.PairAddress) {
		return nil, fmt.Errorf("manager: invalid pair address %q", pool.PairAddress)
	}
	return onchain.NewPoolAdapter(onchain.PoolAdapterConfig{
		Chain:        chain,
		Pair:         common.HexToAddress(pool.PairAddress),
		Ticker:       ticker,
		Interval:     pool.PollInterval,
		NativePrices: f.native,
		Emit:         emit,
		Logger:       f.logger,
	}), nil
}

// Listers returns one REST listing client per supported venue, for the
// discovery service.
func (f *Factory) Listers() []exchange.Lister {
	return []exchange.Lister{
		binance.NewClient(f.endpoints.Binance),
		mexc.NewClient(f.endpoints.MEXC),
		gateio.NewClient(f.endpoints.Gateio),
		bitget.NewClient(f.endpoints.Bitget),
	}
}
