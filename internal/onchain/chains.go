// Package onchain implements the polling venue adapter for Uniswap-V2
// compatible AMM pools. Pool reserves are read over JSON-RPC and converted
// into a USD-stable quote, either directly against a stable leg or through a
// cached wrapped-native price.
package onchain

import (
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Chain carries the per-network constants the adapter needs: the RPC
// endpoint, the wrapped-native and stable token addresses, the V2 factory,
// and the reference wrapped-native/USDT pool used for quote conversion.
type Chain struct {
	Name          string
	RPCURL        string
	RPCEnvVar     string
	WrappedNative common.Address
	USDT          common.Address
	USDC          common.Address
	Factory       common.Address
	// NativeStablePool is the wrapped-native/USDT pair backing the
	// wrapped-native price cache.
	NativeStablePool common.Address
}

// VenueID returns the venue identifier under which this chain's samples are
// stored, e.g. "dex-ethereum".
func (c Chain) VenueID() string { return "dex-" + c.Name }

// IsStable reports whether addr is one of the chain's known USD stables.
// Addresses compare in normalized checksummed form, so lookups are
// case-insensitive.
func (c Chain) IsStable(addr common.Address) bool {
	return addr == c.USDT || addr == c.USDC
}

// DefaultChains returns the supported networks. Each RPC URL can be
// overridden through the named environment variable.
func DefaultChains() []Chain {
	chains := []Chain{
		{
			Name:             "ethereum",
			RPCURL:           "https://eth.llamarpc.com",
			RPCEnvVar:        "ARBHUB_ETHEREUM_RPC_URL",
			WrappedNative:    common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), // WETH
			USDT:             common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
			USDC:             common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			Factory:          common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"), // Uniswap V2
			NativeStablePool: common.HexToAddress("0x0d4a11d5EEaaC28EC3F61d100daf4d40471f1852"), // WETH/USDT
		},
		{
			Name:             "bsc",
			RPCURL:           "https://bsc-dataseed.binance.org",
			RPCEnvVar:        "ARBHUB_BSC_RPC_URL",
			WrappedNative:    common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"), // WBNB
			USDT:             common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"),
			USDC:             common.HexToAddress("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"),
			Factory:          common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73"), // PancakeSwap V2
			NativeStablePool: common.HexToAddress("0x16b9a82891338f9bA80E2D6970FddA79D1eb0daE"), // WBNB/USDT
		},
		{
			Name:             "polygon",
			RPCURL:           "https://polygon-rpc.com",
			RPCEnvVar:        "ARBHUB_POLYGON_RPC_URL",
			WrappedNative:    common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"), // WPOL
			USDT:             common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F"),
			USDC:             common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
			Factory:          common.HexToAddress("0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32"), // QuickSwap
			NativeStablePool: common.HexToAddress("0x604229c960e5CACF2aaEAc8Be68Ac07BA9dF81c3"), // WPOL/USDT
		},
		{
			Name:             "arbitrum",
			RPCURL:           "https://arb1.arbitrum.io/rpc",
			RPCEnvVar:        "ARBHUB_ARBITRUM_RPC_URL",
			WrappedNative:    common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), // WETH
			USDT:             common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"),
			USDC:             common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
			Factory:          common.HexToAddress("0xc35DADB65012eC5796536bD9864eD8773aBc74C4"), // SushiSwap
			NativeStablePool: common.HexToAddress("0xCB0E5bFa72bBb4d16AB5aA0c60601c438F04b4ad"), // WETH/USDT
		},
	}
	for i := range chains {
		if url := strings.TrimSpace(os.Getenv(chains[i].RPCEnvVar)); url != "" {
			chains[i].RPCURL = url
		}
	}
	return chains
}

// FindChain returns the chain with the given name.
func FindChain(chains []Chain, name string) (Chain, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range chains {
		if c.Name == name {
			return c, true
		}
	}
	return Chain{}, false
}
