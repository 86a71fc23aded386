package onchain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// nativePriceTTL is how long a derived wrapped-native price stays fresh.
// Concurrent readers within the TTL share the cached value.
const nativePriceTTL = 3 * time.Second

// NativePriceCache derives and caches the wrapped-native/USDT price per
// chain from the chain's reference pool.
type NativePriceCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*nativeEntry
}

type nativeEntry struct {
	// Pool orientation and decimals are resolved once per chain.
	resolved     bool
	token0Native bool
	nativeDec    uint8
	stableDec    uint8

	price     float64
	fetchedAt time.Time
}

// NewNativePriceCache creates a cache whose entries stay fresh for ttl. A
// non-positive ttl selects the default.
func NewNativePriceCache(ttl time.Duration) *NativePriceCache {
	if ttl <= 0 {
		ttl = nativePriceTTL
	}
	return &NativePriceCache{
		ttl:     ttl,
		entries: make(map[string]*nativeEntry),
	}
}

// Price returns the chain's wrapped-native price in USDT, reading the
// reference pool at most once per TTL window.
func (c *NativePriceCache) Price(ctx context.Context, client CallClient, chain Chain) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[chain.Name]
	if !ok {
		entry = &nativeEntry{}
		c.entries[chain.Name] = entry
	}
	if entry.price > 0 && time.Since(entry.fetchedAt) < c.ttl {
		return entry.price, nil
	}

	if !entry.resolved {
		if err := c.resolve(ctx, client, chain, entry); err != nil {
			return 0, err
		}
	}

	r0, r1, _, err := Reserves(ctx, client, chain.NativeStablePool)
	if err != nil {
		return 0, err
	}

	nativeR, stableR := r0, r1
	nativeDec, stableDec := entry.nativeDec, entry.stableDec
	if !entry.token0Native {
		nativeR, stableR = r1, r0
	}
	price, err := reserveRatio(stableR, stableDec, nativeR, nativeDec)
	if err != nil {
		return 0, err
	}

	entry.price = price
	entry.fetchedAt = time.Now()
	return price, nil
}

// resolve determines which side of the reference pool is the wrapped native
// and fetches both token decimals. Called once per chain under c.mu.
func (c *NativePriceCache) resolve(ctx context.Context, client CallClient, chain Chain, entry *nativeEntry) error {
	t0, t1, err := PairTokens(ctx, client, chain.NativeStablePool)
	if err != nil {
		return err
	}

	var native, stable common.Address
	switch {
	case t0 == chain.WrappedNative:
		entry.token0Native = true
		native, stable = t0, t1
	case t1 == chain.WrappedNative:
		entry.token0Native = false
		native, stable = t1, t0
	default:
		return fmt.Errorf("onchain: reference pool %s on %s holds no wrapped native",
			chain.NativeStablePool.Hex(), chain.Name)
	}

	if entry.nativeDec, err = TokenDecimals(ctx, client, native); err != nil {
		return err
	}
	if entry.stableDec, err = TokenDecimals(ctx, client, stable); err != nil {
		return err
	}
	entry.resolved = true
	return nil
}
