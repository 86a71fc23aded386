// Package pricestore implements the central in-memory price store. It merges
// incoming samples from every adapter, recomputes the arbitrage opportunity
// set for the affected ticker on each update, and fans significant changes
// out to subscribers.
package pricestore

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
)

// Callback receives the latest opportunity set for a ticker whenever it
// changes significantly. Callbacks run outside the store lock; a panicking
// callback is recovered and logged and never blocks other subscribers.
type Callback func(ticker string, opportunities []domain.ArbitrageOpportunity)

// topSpreadDeltaPP is the minimum movement of the top-ranked opportunity's
// spread, in percentage points, that counts as a significant change when the
// set cardinality is unchanged.
const topSpreadDeltaPP = 0.1

// Store is the process-wide price store. The zero value is not usable;
// construct instances with New so tests can run against isolated stores.
type Store struct {
	mu      sync.Mutex
	tickers map[string]*tickerState
	logger  *slog.Logger

	// invalidSamples counts updates rejected at the boundary (negative,
	// NaN, or infinite prices).
	invalidSamples atomic.Int64

	// dispatching serializes subscriber notification. Updates arriving
	// while a notification round is in flight (including reentrant updates
	// issued from inside a callback) queue their notification instead of
	// recursing.
	dispatching bool
	queue       []notification
}

type tickerState struct {
	samples       map[string]domain.PriceSample // venue -> latest
	threshold     float64
	opportunities []domain.ArbitrageOpportunity
	subscribers   map[string]Callback
}

type notification struct {
	ticker        string
	opportunities []domain.ArbitrageOpportunity
	callbacks     []Callback
}

// New creates an empty Store.
func New(logger *slog.Logger) *Store {
	return &Store{
		tickers: make(map[string]*tickerState),
		logger:  logger.With(slog.String("component", "pricestore")),
	}
}

func (s *Store) state(ticker string) *tickerState {
	st, ok := s.tickers[ticker]
	if !ok {
		st = &tickerState{
			samples:     make(map[string]domain.PriceSample),
			subscribers: make(map[string]Callback),
		}
		s.tickers[ticker] = st
	}
	return st
}

// UpdatePrice overwrites the latest sample for (ticker, sample.Venue),
// recomputes the opportunity set, and notifies subscribers when the result
// changed significantly. Invalid samples are dropped and counted, never
// propagated.
func (s *Store) UpdatePrice(ticker string, sample domain.PriceSample) {
	if !sample.Valid() {
		s.invalidSamples.Add(1)
		s.logger.Warn("rejected invalid sample",
			slog.String("ticker", ticker),
			slog.String("venue", sample.Venue),
			slog.Float64("price", sample.Price),
		)
		return
	}

	s.mu.Lock()
	st := s.state(ticker)
	st.samples[sample.Venue] = sample

	prev := st.opportunities
	next := computeOpportunities(ticker, st.samples, st.threshold)
	st.opportunities = next

	if !significantChange(prev, next) {
		s.mu.Unlock()
		return
	}

	n := notification{
		ticker:        ticker,
		opportunities: copyOpportunities(next),
		callbacks:     make([]Callback, 0, len(st.subscribers)),
	}
	for _, cb := range st.subscribers {
		n.callbacks = append(n.callbacks, cb)
	}
	s.enqueueLocked(n)
	s.mu.Unlock()
}

// enqueueLocked appends a notification and, if no dispatch loop is running,
// drains the queue on this goroutine. The caller must hold s.mu; the lock is
// released around each callback invocation so callbacks may re-read or even
// re-write the store without deadlocking.
func (s *Store) enqueueLocked(n notification) {
	s.queue = append(s.queue, n)
	if s.dispatching {
		return
	}
	s.dispatching = true
	for len(s.queue) > 0 {
		head := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.deliver(head)
		s.mu.Lock()
	}
	s.dispatching = false
}

func (s *Store) deliver(n notification) {
	for _, cb := range n.callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("subscriber callback panicked",
						slog.String("ticker", n.ticker),
						slog.Any("panic", r),
					)
				}
			}()
			cb(n.ticker, n.opportunities)
		}()
	}
}

// SetThreshold replaces the per-ticker minimum spread percent. The
// opportunity set is recomputed against the new threshold but no notification
// is emitted; subscribers observe the effect on the next price update.
func (s *Store) SetThreshold(ticker string, percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ticker)
	st.threshold = percent
	st.opportunities = computeOpportunities(ticker, st.samples, st.threshold)
}

// Threshold returns the configured minimum spread percent for the ticker.
func (s *Store) Threshold(ticker string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.tickers[ticker]; ok {
		return st.threshold
	}
	return 0
}

// Subscribe registers a callback for significant opportunity-set changes on
// the ticker and returns a handle that removes the subscription.
func (s *Store) Subscribe(ticker string, cb Callback) (unsubscribe func()) {
	id := uuid.NewString()

	s.mu.Lock()
	s.state(ticker).subscribers[id] = cb
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if st, ok := s.tickers[ticker]; ok {
			delete(st.subscribers, id)
		}
	}
}

// GetPrices returns a snapshot of the latest samples per venue for the ticker.
func (s *Store) GetPrices(ticker string) map[string]domain.PriceSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.PriceSample)
	if st, ok := s.tickers[ticker]; ok {
		for venue, sample := range st.samples {
			out[venue] = sample
		}
	}
	return out
}

// GetOpportunities returns a snapshot of the current opportunity set.
func (s *Store) GetOpportunities(ticker string) []domain.ArbitrageOpportunity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.tickers[ticker]; ok {
		return copyOpportunities(st.opportunities)
	}
	return nil
}

// ClearTicker drops all samples, the threshold, the opportunity set, and all
// subscribers for the ticker.
func (s *Store) ClearTicker(ticker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickers, ticker)
}

// InvalidSamples returns the number of samples rejected at the boundary.
func (s *Store) InvalidSamples() int64 {
	return s.invalidSamples.Load()
}

// computeOpportunities evaluates every unordered venue pair of the sample set
// and keeps pairs whose spread meets the threshold, sorted by absolute profit
// descending (ties broken by spread, then venue names, for determinism).
func computeOpportunities(ticker string, samples map[string]domain.PriceSample, threshold float64) []domain.ArbitrageOpportunity {
	if len(samples) < 2 {
		return nil
	}

	venues := make([]string, 0, len(samples))
	for v := range samples {
		venues = append(venues, v)
	}
	sort.Strings(venues)

	now := time.Now().UnixMilli()
	var out []domain.ArbitrageOpportunity
	for i := 0; i < len(venues); i++ {
		for j := i + 1; j < len(venues); j++ {
			a, b := samples[venues[i]], samples[venues[j]]
			buy, sell := a, b
			if buy.Price > sell.Price {
				buy, sell = sell, buy
			}
			if buy.Price == 0 {
				continue
			}
			spread := roundSpread(100 * (sell.Price - buy.Price) / buy.Price)
			if spread < threshold {
				continue
			}
			out = append(out, domain.ArbitrageOpportunity{
				ID:            uuid.NewString(),
				Ticker:        ticker,
				Buy:           buy,
				Sell:          sell,
				SpreadPercent: spread,
				Profit:        sell.Price - buy.Price,
				Timestamp:     now,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Profit != out[j].Profit {
			return out[i].Profit > out[j].Profit
		}
		if out[i].SpreadPercent != out[j].SpreadPercent {
			return out[i].SpreadPercent > out[j].SpreadPercent
		}
		return out[i].Buy.Venue < out[j].Buy.Venue
	})
	return out
}

// roundSpread rounds to 0.01 percentage-point precision, half away from zero.
func roundSpread(pct float64) float64 {
	return math.Round(pct*100) / 100
}

// significantChange implements the notification suppression rule: notify only
// when the set cardinality changed or the top-ranked spread moved by at least
// topSpreadDeltaPP percentage points.
func significantChange(prev, next []domain.ArbitrageOpportunity) bool {
	if len(prev) != len(next) {
		return true
	}
	if len(next) == 0 {
		return false
	}
	delta := math.Abs(next[0].SpreadPercent - prev[0].SpreadPercent)
	// Spreads are already rounded to 0.01 pp, so compare in integer
	// hundredths to keep the 0.09 / 0.10 boundary exact.
	return math.Round(delta*100) >= topSpreadDeltaPP*100
}

func copyOpportunities(in []domain.ArbitrageOpportunity) []domain.ArbitrageOpportunity {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.ArbitrageOpportunity, len(in))
	copy(out, in)
	return out
}
