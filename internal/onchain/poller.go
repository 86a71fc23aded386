package onchain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/exchange"
)

const (
	// DefaultPollInterval is the reserve polling cadence.
	DefaultPollInterval = 500 * time.Millisecond

	// MinPollInterval is the floor for configured cadences.
	MinPollInterval = 300 * time.Millisecond

	// slowPollThreshold marks a single poll as worth a warning.
	slowPollThreshold = time.Second
)

// PoolAdapterConfig describes one pool to poll.
type PoolAdapterConfig struct {
	Chain  Chain
	Pair   common.Address
	Ticker string

	// Interval defaults to DefaultPollInterval and is clamped to
	// MinPollInterval from below.
	Interval time.Duration

	// Client overrides RPC dialing; tests inject scripted clients.
	Client       CallClient
	NativePrices *NativePriceCache
	Emit         exchange.SampleSink
	Logger       *slog.Logger
}

// PoolAdapter polls one AMM pool's reserves and emits derived price samples.
// It implements exchange.Adapter so the connection manager treats it exactly
// like a streaming venue.
type PoolAdapter struct {
	cfg      PoolAdapterConfig
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	client   CallClient
	status   domain.SessionStatus
	statusFn exchange.StatusFunc
	cancel   context.CancelFunc

	// rpcFailures counts polls skipped because of RPC errors.
	rpcFailures atomic.Int64

	// Pool metadata, resolved once on connect.
	meta poolMeta
}

type poolMeta struct {
	resolved  bool
	token0    common.Address
	token1    common.Address
	dec0      uint8
	dec1      uint8
	quotePath quotePath
	// quoteIs0 orients the quote leg: true when token0 is the quote token.
	quoteIs0 bool
}

type quotePath int

const (
	quoteNone quotePath = iota
	quoteStable
	quoteNative
)

// NewPoolAdapter creates an adapter in the initial state.
func NewPoolAdapter(cfg PoolAdapterConfig) *PoolAdapter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PoolAdapter{
		cfg:      cfg,
		interval: interval,
		logger: logger.With(
			slog.String("venue", cfg.Chain.VenueID()),
			slog.String("pair", cfg.Pair.Hex()),
			slog.String("ticker", cfg.Ticker),
		),
		status: domain.StatusDisconnected,
	}
}

// Venue implements exchange.Adapter.
func (a *PoolAdapter) Venue() string { return a.cfg.Chain.VenueID() }

// Market implements exchange.Adapter.
func (a *PoolAdapter) Market() domain.MarketKind { return domain.MarketDEX }

// OnStatus implements exchange.Adapter.
func (a *PoolAdapter) OnStatus(fn exchange.StatusFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusFn = fn
}

// IsConnected implements exchange.Adapter.
func (a *PoolAdapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status == domain.StatusConnected
}

// RPCFailures returns the number of polls skipped due to RPC errors.
func (a *PoolAdapter) RPCFailures() int64 { return a.rpcFailures.Load() }

// Connect implements exchange.Adapter: it dials the chain RPC if needed,
// resolves the pool's tokens, decimals, and quote path, and starts the poll
// loop. A pool with neither a stable nor a wrapped-native leg fails with
// domain.ErrNoQuotePath.
func (a *PoolAdapter) Connect(ctx context.Context) error {
	a.setStatus(domain.StatusConnecting, "")

	client := a.cfg.Client
	if client == nil {
		dialCtx, cancel := context.WithTimeout(ctx, exchange.DialTimeout)
		rpcClient, err := rpc.DialContext(dialCtx, a.cfg.Chain.RPCURL)
		cancel()
		if err != nil {
			err = fmt.Errorf("onchain: dial %s: %w", a.cfg.Chain.Name, err)
			a.setStatus(domain.StatusError, err.Error())
			return err
		}
		client = rpcClient
	}

	if err := a.resolveMeta(ctx, client); err != nil {
		a.setStatus(domain.StatusError, err.Error())
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.client = client
	a.cancel = cancel
	a.mu.Unlock()

	a.setStatus(domain.StatusConnected, "")
	go a.pollLoop(loopCtx, client)
	return nil
}

// Disconnect implements exchange.Adapter. The poll loop observes the
// cancellation before its next tick, so shutdown completes within one poll
// interval plus any in-flight RPC call.
func (a *PoolAdapter) Disconnect() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.mu.Unlock()
	a.setStatus(domain.StatusDisconnected, "")
}

// Reconnect implements exchange.Adapter.
func (a *PoolAdapter) Reconnect(ctx context.Context) error {
	a.Disconnect()
	return a.Connect(ctx)
}

// resolveMeta identifies the pool tokens, their decimals, and the quote path.
func (a *PoolAdapter) resolveMeta(ctx context.Context, client CallClient) error {
	a.mu.Lock()
	resolved := a.meta.resolved
	a.mu.Unlock()
	if resolved {
		return nil
	}

	t0, t1, err := PairTokens(ctx, client, a.cfg.Pair)
	if err != nil {
		return err
	}
	dec0, err := TokenDecimals(ctx, client, t0)
	if err != nil {
		return err
	}
	dec1, err := TokenDecimals(ctx, client, t1)
	if err != nil {
		return err
	}

	meta := poolMeta{
		resolved: true,
		token0:   t0,
		token1:   t1,
		dec0:     dec0,
		dec1:     dec1,
	}
	chain := a.cfg.Chain
	switch {
	case chain.IsStable(t0):
		meta.quotePath, meta.quoteIs0 = quoteStable, true
	case chain.IsStable(t1):
		meta.quotePath, meta.quoteIs0 = quoteStable, false
	case t0 == chain.WrappedNative:
		meta.quotePath, meta.quoteIs0 = quoteNative, true
	case t1 == chain.WrappedNative:
		meta.quotePath, meta.quoteIs0 = quoteNative, false
	default:
		return fmt.Errorf("onchain: pool %s: %w", a.cfg.Pair.Hex(), domain.ErrNoQuotePath)
	}

	a.mu.Lock()
	a.meta = meta
	a.mu.Unlock()
	return nil
}

func (a *PoolAdapter) pollLoop(ctx context.Context, client CallClient) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := time.Now()
		price, err := a.poll(ctx, client)
		elapsed := time.Since(start)

		if elapsed > slowPollThreshold {
			a.logger.Warn("slow pool poll", slog.Duration("elapsed", elapsed))
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.rpcFailures.Add(1)
			a.logger.Warn("poll failed, sample skipped", slog.String("error", err.Error()))
			continue
		}

		a.cfg.Emit(a.cfg.Ticker, domain.PriceSample{
			Venue:     a.cfg.Chain.VenueID(),
			Symbol:    a.cfg.Ticker + "USDT",
			Price:     price,
			Timestamp: time.Now().UnixMilli(),
			Market:    domain.MarketDEX,
		})
	}
}

// poll reads the reserves once and derives the target token's USD price.
func (a *PoolAdapter) poll(ctx context.Context, client CallClient) (float64, error) {
	a.mu.Lock()
	meta := a.meta
	a.mu.Unlock()

	r0, r1, _, err := Reserves(ctx, client, a.cfg.Pair)
	if err != nil {
		return 0, err
	}

	quoteR, targetR := r0, r1
	quoteDec, targetDec := meta.dec0, meta.dec1
	if !meta.quoteIs0 {
		quoteR, targetR = r1, r0
		quoteDec, targetDec = meta.dec1, meta.dec0
	}

	ratio, err := reserveRatio(quoteR, quoteDec, targetR, targetDec)
	if err != nil {
		return 0, err
	}

	switch meta.quotePath {
	case quoteStable:
		return ratio, nil
	case quoteNative:
		nativeUSD, err := a.cfg.NativePrices.Price(ctx, client, a.cfg.Chain)
		if err != nil {
			return 0, err
		}
		return ratio * nativeUSD, nil
	default:
		return 0, domain.ErrNoQuotePath
	}
}

func (a *PoolAdapter) setStatus(status domain.SessionStatus, errMsg string) {
	a.mu.Lock()
	a.status = status
	fn := a.statusFn
	a.mu.Unlock()
	if fn == nil {
		return
	}
	fn(domain.StatusUpdate{
		Ticker: a.cfg.Ticker,
		Venue:  a.cfg.Chain.VenueID(),
		Market: domain.MarketDEX,
		Status: status,
		Error:  errMsg,
		Time:   time.Now(),
	})
}
