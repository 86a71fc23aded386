package onchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
)

var (
	tokenTarget = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenUSDT   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenWNAT   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	poolDirect  = common.HexToAddress("0x4444444444444444444444444444444444444444")
	poolNative  = common.HexToAddress("0x5555555555555555555555555555555555555555")
	poolRef     = common.HexToAddress("0x6666666666666666666666666666666666666666")
	factoryAddr = common.HexToAddress("0x7777777777777777777777777777777777777777")
)

func testChain() Chain {
	return Chain{
		Name:             "testchain",
		WrappedNative:    tokenWNAT,
		USDT:             tokenUSDT,
		USDC:             common.HexToAddress("0x8888888888888888888888888888888888888888"),
		Factory:          factoryAddr,
		NativeStablePool: poolRef,
	}
}

// stubClient answers eth_call by (to, data) lookup and counts every call.
type stubClient struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     map[string]int
}

func newStubClient() *stubClient {
	return &stubClient{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func callKey(to common.Address, data string) string {
	return strings.ToLower(to.Hex() + "|" + data)
}

func (c *stubClient) set(to common.Address, data, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[callKey(to, data)] = result
}

func (c *stubClient) fail(to common.Address, data string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[callKey(to, data)] = err
}

func (c *stubClient) count(to common.Address, data string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[callKey(to, data)]
}

func (c *stubClient) CallContext(_ context.Context, result any, method string, args ...any) error {
	if method != "eth_call" {
		return fmt.Errorf("unexpected method %s", method)
	}
	call := args[0].(map[string]string)
	key := callKey(common.HexToAddress(call["to"]), call["data"])

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[key]++
	if err, ok := c.errs[key]; ok {
		return err
	}
	resp, ok := c.responses[key]
	if !ok {
		return fmt.Errorf("no stub response for %s", key)
	}
	*(result.(*string)) = resp
	return nil
}

func wordAddress(addr common.Address) string {
	return strings.Repeat("0", 24) + strings.ToLower(strings.TrimPrefix(addr.Hex(), "0x"))
}

func wordUint(v *big.Int) string {
	return fmt.Sprintf("%064x", v)
}

func reservesResult(r0, r1 *big.Int, ts uint32) string {
	return "0x" + wordUint(r0) + wordUint(r1) + wordUint(big.NewInt(int64(ts)))
}

// wirePool registers token0/token1/decimals responses for a pool.
func wirePool(c *stubClient, pool, t0, t1 common.Address, dec0, dec1 int64) {
	c.set(pool, selToken0, "0x"+wordAddress(t0))
	c.set(pool, selToken1, "0x"+wordAddress(t1))
	c.set(t0, selDecimals, "0x"+wordUint(big.NewInt(dec0)))
	c.set(t1, selDecimals, "0x"+wordUint(big.NewInt(dec1)))
}

func pow10(exp int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
}

func TestStableQuotePricing(t *testing.T) {
	// token0 = target (18 decimals), token1 = USDT (6 decimals). One whole
	// target token against 3000 USDT prices the target at 3000.
	client := newStubClient()
	wirePool(client, poolDirect, tokenTarget, tokenUSDT, 18, 6)
	client.set(poolDirect, selGetReserves,
		reservesResult(pow10(18), big.NewInt(3_000_000_000), 1700000000))

	adapter := NewPoolAdapter(PoolAdapterConfig{
		Chain:  testChain(),
		Pair:   poolDirect,
		Ticker: "TKN",
		Client: client,
		Emit:   func(string, domain.PriceSample) {},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, adapter.resolveMeta(context.Background(), client))

	price, err := adapter.poll(context.Background(), client)
	require.NoError(t, err)
	assert.InDelta(t, 3000.0, price, 1e-6)
}

func TestWrappedNativeQuotePricing(t *testing.T) {
	// Pool holds target/WNATIVE; the reference pool prices the wrapped
	// native at 2000 USDT. 10 natives against 100 targets prices the
	// target at 0.1 native = 200 USDT.
	client := newStubClient()
	chain := testChain()

	wirePool(client, poolNative, tokenTarget, tokenWNAT, 18, 18)
	client.set(poolNative, selGetReserves, reservesResult(
		new(big.Int).Mul(big.NewInt(100), pow10(18)),
		new(big.Int).Mul(big.NewInt(10), pow10(18)),
		1700000000))

	wirePool(client, poolRef, tokenWNAT, tokenUSDT, 18, 6)
	client.set(poolRef, selGetReserves, reservesResult(
		pow10(18),
		big.NewInt(2_000_000_000),
		1700000000))

	adapter := NewPoolAdapter(PoolAdapterConfig{
		Chain:        chain,
		Pair:         poolNative,
		Ticker:       "TKN",
		Client:       client,
		NativePrices: NewNativePriceCache(0),
		Emit:         func(string, domain.PriceSample) {},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, adapter.resolveMeta(context.Background(), client))

	price, err := adapter.poll(context.Background(), client)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, price, 1e-6)
}

func TestNoQuotePath(t *testing.T) {
	other := common.HexToAddress("0x9999999999999999999999999999999999999999")
	client := newStubClient()
	wirePool(client, poolDirect, tokenTarget, other, 18, 18)

	adapter := NewPoolAdapter(PoolAdapterConfig{
		Chain:  testChain(),
		Pair:   poolDirect,
		Ticker: "TKN",
		Client: client,
		Emit:   func(string, domain.PriceSample) {},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	err := adapter.resolveMeta(context.Background(), client)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoQuotePath)
}

func TestNativePriceCacheTTL(t *testing.T) {
	client := newStubClient()
	chain := testChain()
	wirePool(client, poolRef, tokenWNAT, tokenUSDT, 18, 6)
	client.set(poolRef, selGetReserves, reservesResult(
		pow10(18), big.NewInt(2_000_000_000), 1700000000))

	cache := NewNativePriceCache(time.Hour)

	for i := 0; i < 5; i++ {
		price, err := cache.Price(context.Background(), client, chain)
		require.NoError(t, err)
		assert.InDelta(t, 2000.0, price, 1e-6)
	}
	assert.Equal(t, 1, client.count(poolRef, selGetReserves),
		"reads within the TTL must share the cached value")
}

func TestFindPair(t *testing.T) {
	client := newStubClient()
	chain := testChain()

	data := selGetPair + leftPadAddress(tokenTarget) + leftPadAddress(tokenUSDT)
	client.set(chain.Factory, data, "0x"+wordAddress(poolDirect))

	pair, err := FindPair(context.Background(), client, chain.Factory, tokenTarget, tokenUSDT)
	require.NoError(t, err)
	assert.Equal(t, poolDirect, pair)

	// Zero address from the factory means no pool.
	missing := selGetPair + leftPadAddress(tokenUSDT) + leftPadAddress(tokenTarget)
	client.set(chain.Factory, missing, "0x"+strings.Repeat("0", 64))
	_, err = FindPair(context.Background(), client, chain.Factory, tokenUSDT, tokenTarget)
	assert.ErrorIs(t, err, domain.ErrNoPool)
}

func TestPollLoopEmitsAndStops(t *testing.T) {
	client := newStubClient()
	wirePool(client, poolDirect, tokenTarget, tokenUSDT, 18, 6)
	client.set(poolDirect, selGetReserves,
		reservesResult(pow10(18), big.NewInt(3_000_000_000), 1700000000))

	var mu sync.Mutex
	var samples []domain.PriceSample
	adapter := NewPoolAdapter(PoolAdapterConfig{
		Chain:    testChain(),
		Pair:     poolDirect,
		Ticker:   "TKN",
		Interval: MinPollInterval,
		Client:   client,
		Emit: func(_ string, s domain.PriceSample) {
			mu.Lock()
			defer mu.Unlock()
			samples = append(samples, s)
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	require.NoError(t, adapter.Connect(context.Background()))
	assert.True(t, adapter.IsConnected())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(samples)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	adapter.Disconnect()
	assert.False(t, adapter.IsConnected())

	mu.Lock()
	require.NotEmpty(t, samples)
	first := samples[0]
	mu.Unlock()
	assert.Equal(t, "dex-testchain", first.Venue)
	assert.InDelta(t, 3000.0, first.Price, 1e-6)
	assert.Equal(t, domain.MarketDEX, first.Market)
}

func TestPollSkipsSampleOnRPCFailure(t *testing.T) {
	client := newStubClient()
	wirePool(client, poolDirect, tokenTarget, tokenUSDT, 18, 6)
	client.fail(poolDirect, selGetReserves, errors.New("rpc: connection reset"))

	adapter := NewPoolAdapter(PoolAdapterConfig{
		Chain:  testChain(),
		Pair:   poolDirect,
		Ticker: "TKN",
		Client: client,
		Emit:   func(string, domain.PriceSample) { t.Error("no sample expected") },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, adapter.resolveMeta(context.Background(), client))

	_, err := adapter.poll(context.Background(), client)
	require.Error(t, err)
}

func TestDefaultChainsEnvOverride(t *testing.T) {
	t.Setenv("ARBHUB_ETHEREUM_RPC_URL", "http://localhost:8545")
	chains := DefaultChains()

	eth, ok := FindChain(chains, "ethereum")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8545", eth.RPCURL)

	_, ok = FindChain(chains, "unknown")
	assert.False(t, ok)
}
