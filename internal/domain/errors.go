package domain

import "errors"

var (
	ErrTickerMissing   = errors.New("ticker is required")
	ErrUnknownVenue    = errors.New("unknown venue")
	ErrNoVenuesFound   = errors.New("no venues list this ticker")
	ErrNotMonitored    = errors.New("ticker is not monitored")
	ErrInvalidSample   = errors.New("invalid price sample")
	ErrNoQuotePath     = errors.New("no quote path for pool")
	ErrNoPool          = errors.New("no pool for pair")
	ErrSessionClosed   = errors.New("session closed")
	ErrReconnectBudget = errors.New("reconnect budget exhausted")
	ErrContextDone     = errors.New("context cancelled")
)
