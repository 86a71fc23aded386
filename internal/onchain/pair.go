package onchain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
)

// CallClient is the JSON-RPC surface the adapter uses. *rpc.Client from
// go-ethereum satisfies it; tests substitute scripted implementations.
type CallClient interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// Four-byte selectors of the minimal Uniswap-V2 ABI subset.
const (
	selGetReserves = "0x0902f1ac" // getReserves() -> (uint112,uint112,uint32)
	selToken0      = "0x0dfe1681" // token0() -> address
	selToken1      = "0xd21220a7" // token1() -> address
	selDecimals    = "0x313ce567" // decimals() -> uint8
	selGetPair     = "0xe6a43905" // getPair(address,address) -> address
)

func ethCall(ctx context.Context, client CallClient, to common.Address, data string) ([]byte, error) {
	var result string
	call := map[string]string{"to": to.Hex(), "data": data}
	if err := client.CallContext(ctx, &result, "eth_call", call, "latest"); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(result), "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain: decode eth_call result: %w", err)
	}
	return raw, nil
}

// PairTokens reads token0 and token1 of a V2 pair contract.
func PairTokens(ctx context.Context, client CallClient, pair common.Address) (common.Address, common.Address, error) {
	t0, err := callAddress(ctx, client, pair, selToken0)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("onchain: token0: %w", err)
	}
	t1, err := callAddress(ctx, client, pair, selToken1)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("onchain: token1: %w", err)
	}
	return t0, t1, nil
}

// TokenDecimals reads an ERC-20 decimals() value.
func TokenDecimals(ctx context.Context, client CallClient, token common.Address) (uint8, error) {
	raw, err := ethCall(ctx, client, token, selDecimals)
	if err != nil {
		return 0, fmt.Errorf("onchain: decimals: %w", err)
	}
	if len(raw) == 0 {
		return 0, fmt.Errorf("onchain: empty decimals result for %s", token.Hex())
	}
	dec := new(big.Int).SetBytes(raw).Int64()
	if dec < 0 || dec > 77 {
		return 0, fmt.Errorf("onchain: implausible decimals %d for %s", dec, token.Hex())
	}
	return uint8(dec), nil
}

// Reserves reads getReserves() of a V2 pair: the two raw token balances and
// the last-update timestamp.
func Reserves(ctx context.Context, client CallClient, pair common.Address) (*big.Int, *big.Int, uint32, error) {
	raw, err := ethCall(ctx, client, pair, selGetReserves)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("onchain: getReserves: %w", err)
	}
	if len(raw) < 96 {
		return nil, nil, 0, fmt.Errorf("onchain: short getReserves result: %d bytes", len(raw))
	}
	r0 := new(big.Int).SetBytes(raw[0:32])
	r1 := new(big.Int).SetBytes(raw[32:64])
	ts := uint32(new(big.Int).SetBytes(raw[64:96]).Uint64())
	return r0, r1, ts, nil
}

// FindPair asks the factory for the pair address of (a, b). A zero address
// from getPair means the pool does not exist.
func FindPair(ctx context.Context, client CallClient, factory, a, b common.Address) (common.Address, error) {
	data := selGetPair + leftPadAddress(a) + leftPadAddress(b)
	raw, err := ethCall(ctx, client, factory, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("onchain: getPair: %w", err)
	}
	pair, err := parseAddress(raw)
	if err != nil {
		return common.Address{}, err
	}
	if pair == (common.Address{}) {
		return common.Address{}, domain.ErrNoPool
	}
	return pair, nil
}

func callAddress(ctx context.Context, client CallClient, to common.Address, selector string) (common.Address, error) {
	raw, err := ethCall(ctx, client, to, selector)
	if err != nil {
		return common.Address{}, err
	}
	return parseAddress(raw)
}

func parseAddress(raw []byte) (common.Address, error) {
	if len(raw) < 32 {
		return common.Address{}, fmt.Errorf("onchain: short address result: %d bytes", len(raw))
	}
	return common.BytesToAddress(raw[12:32]), nil
}

// leftPadAddress hex-encodes an address as one 32-byte ABI word.
func leftPadAddress(addr common.Address) string {
	return strings.Repeat("0", 24) + strings.ToLower(hex.EncodeToString(addr.Bytes()))
}

// adjustedReserve scales a raw reserve down by the token's decimals.
func adjustedReserve(reserve *big.Int, decimals uint8) *big.Float {
	f := new(big.Float).SetPrec(256).SetInt(reserve)
	if decimals > 0 {
		exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
		f.Quo(f, new(big.Float).SetPrec(256).SetInt(exp))
	}
	return f
}

// reserveRatio returns num/den as float64 after decimal adjustment.
func reserveRatio(num *big.Int, numDec uint8, den *big.Int, denDec uint8) (float64, error) {
	if den.Sign() == 0 {
		return 0, fmt.Errorf("onchain: zero denominator reserve")
	}
	ratio := new(big.Float).SetPrec(256).Quo(adjustedReserve(num, numDec), adjustedReserve(den, denDec))
	out, _ := ratio.Float64()
	return out, nil
}
