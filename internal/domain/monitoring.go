package domain

import (
	"fmt"
	"strings"
	"time"
)

// VenueMarkets selects which markets of a single venue to monitor.
type VenueMarkets struct {
	Venue   string       `json:"venue"`
	Markets []MarketKind `json:"markets"`
	Symbol  string       `json:"symbol,omitempty"`
}

// PoolSpec identifies one on-chain AMM pool to poll.
type PoolSpec struct {
	Chain       string `json:"chain"`
	PairAddress string `json:"pairAddress"`
	// PollInterval overrides the default polling cadence when positive.
	PollInterval time.Duration `json:"pollInterval,omitempty"`
}

// MonitoringSpec is the resolved plan for one monitoring session: which
// venues and markets to connect, which pools to poll, and the minimum spread
// that qualifies as an opportunity.
type MonitoringSpec struct {
	Ticker           string         `json:"ticker"`
	Venues           []VenueMarkets `json:"venues"`
	Pools            []PoolSpec     `json:"pools,omitempty"`
	ThresholdPercent float64        `json:"thresholdPercent"`
}

// SessionStatus is the lifecycle state of one adapter session.
type SessionStatus string

const (
	StatusConnecting   SessionStatus = "connecting"
	StatusConnected    SessionStatus = "connected"
	StatusDisconnected SessionStatus = "disconnected"
	StatusError        SessionStatus = "error"
)

// SessionState mirrors the live state of one (ticker, venue, market) adapter.
type SessionState struct {
	Ticker            string        `json:"ticker"`
	Venue             string        `json:"venue"`
	Market            MarketKind    `json:"market"`
	Status            SessionStatus `json:"status"`
	LastUpdateMs      int64         `json:"lastUpdateMs"`
	Error             string        `json:"error,omitempty"`
	ReconnectAttempts int           `json:"reconnectAttempts"`
}

// StatusUpdate is emitted by adapters whenever their session state changes.
type StatusUpdate struct {
	Ticker   string        `json:"ticker"`
	Venue    string        `json:"venue"`
	Market   MarketKind    `json:"market"`
	Status   SessionStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Time     time.Time     `json:"time"`
}

// SessionKey derives the opaque adapter key used by the connection manager.
func SessionKey(ticker, venue string, market MarketKind) string {
	return fmt.Sprintf("%s|%s|%s", ticker, venue, market)
}

// KeyHasTicker reports whether an adapter key belongs to the given ticker.
func KeyHasTicker(key, ticker string) bool {
	return strings.HasPrefix(key, ticker+"|")
}
