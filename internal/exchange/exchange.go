// Package exchange defines the venue adapter contract shared by all
// centralized-exchange integrations and the websocket session machinery they
// are built on. Each concrete venue lives in its own subpackage (binance,
// mexc, gateio, bitget) and contributes a session parser, subscribe frames,
// and REST listing probes.
package exchange

import (
	"context"
	"time"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
)

// Venue identifiers. These are the keys under which samples are stored and
// the names exposed through the HTTP API.
const (
	VenueBinance = "binance"
	VenueMEXC    = "mexc"
	VenueGateio  = "gateio"
	VenueBitget  = "bitget"
)

// Venues lists every supported centralized exchange.
var Venues = []string{VenueBinance, VenueMEXC, VenueGateio, VenueBitget}

// KnownVenue reports whether name is a supported centralized exchange.
func KnownVenue(name string) bool {
	for _, v := range Venues {
		if v == name {
			return true
		}
	}
	return false
}

// SampleSink receives normalized price samples from adapters. The price
// store's UpdatePrice satisfies this signature.
type SampleSink func(ticker string, sample domain.PriceSample)

// StatusFunc receives session lifecycle events from an adapter.
type StatusFunc func(domain.StatusUpdate)

// Adapter is the capability set common to every venue integration, streaming
// and polling alike. One adapter instance owns exactly one (ticker, venue,
// market) session.
type Adapter interface {
	// Venue returns the venue identifier.
	Venue() string

	// Market returns which market segment this adapter covers.
	Market() domain.MarketKind

	// Connect starts the session. It returns once the connection attempt
	// has been initiated; progress is reported through OnStatus.
	Connect(ctx context.Context) error

	// Disconnect closes the session cleanly. No reconnection is scheduled
	// and a disconnected status event is emitted.
	Disconnect()

	// Reconnect forces a fresh connection attempt, resetting the
	// reconnect budget. It is the only way out of a terminal error state.
	Reconnect(ctx context.Context) error

	// IsConnected reports whether the session is currently live.
	IsConnected() bool

	// OnStatus registers the status callback. Must be called before
	// Connect.
	OnStatus(fn StatusFunc)
}

// Lister probes a venue's REST API for ticker availability. Probe failures
// are reported as an unlisted result, never as an error.
type Lister interface {
	Venue() string
	CheckListing(ctx context.Context, ticker string) domain.Listing
}

// Timeouts shared by every venue integration.
const (
	// DialTimeout bounds a single websocket connection attempt.
	DialTimeout = 5 * time.Second

	// ListingTimeout bounds one REST listing probe. The upstream service
	// publishes no timeout of its own, so a conservative default applies.
	ListingTimeout = 10 * time.Second
)
