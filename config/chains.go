package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"vault-zap/pkg/types"
)

// Chain describes a supported network
type Chain struct {
	ID          uint64
	Name        string
	RPCURL      string
	Router      common.Address
	SafeAPIURL  string
	Stablecoins []common.Address
	Tokens      []types.Token
}

// HasRouter reports whether a vault router is deployed on the chain
func (c Chain) HasRouter() bool {
	return c.Router != (common.Address{})
}

var yearnRouter = common.HexToAddress("0x1112dbcf805682e828606f74ab717abf4b4fd8de")

func token(chainID uint64, address, symbol, name string, decimals int32) types.Token {
	return types.Token{
		Address:  common.HexToAddress(address),
		ChainID:  chainID,
		Symbol:   symbol,
		Name:     name,
		Decimals: decimals,
	}
}

func native(chainID uint64, symbol, name string) types.Token {
	return types.Token{Address: types.NativeTokenAddress, ChainID: chainID, Symbol: symbol, Name: name, Decimals: 18}
}

// defaultChains is the built-in network table. RPC URLs always come from configuration.
func defaultChains() map[uint64]Chain {
	return map[uint64]Chain{
		1: {
			ID:         1,
			Name:       "ethereum",
			Router:     yearnRouter,
			SafeAPIURL: "https://safe-transaction-mainnet.safe.global",
			Stablecoins: []common.Address{
				common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
				common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
				common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
			},
			Tokens: []types.Token{
				native(1, "ETH", "Ether"),
				token(1, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", "USD Coin", 6),
				token(1, "0xdAC17F958D2ee523a2206206994597C13D831ec7", "USDT", "Tether USD", 6),
				token(1, "0x6B175474E89094C44Da98b954EedeAC495271d0F", "DAI", "Dai Stablecoin", 18),
				token(1, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "WETH", "Wrapped Ether", 18),
			},
		},
		10: {
			ID:         10,
			Name:       "optimism",
			SafeAPIURL: "https://safe-transaction-optimism.safe.global",
			Stablecoins: []common.Address{
				common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"),
				common.HexToAddress("0x94b008aA00579c1307B0EF2c499aD98a8ce58e58"),
				common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1"),
			},
			Tokens: []types.Token{
				native(10, "ETH", "Ether"),
				token(10, "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", "USDC", "USD Coin", 6),
				token(10, "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", "USDT", "Tether USD", 6),
				token(10, "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", "DAI", "Dai Stablecoin", 18),
				token(10, "0x4200000000000000000000000000000000000006", "WETH", "Wrapped Ether", 18),
			},
		},
		137: {
			ID:         137,
			Name:       "polygon",
			Router:     yearnRouter,
			SafeAPIURL: "https://safe-transaction-polygon.safe.global",
			Stablecoins: []common.Address{
				common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"),
				common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
				common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F"),
				common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063"),
			},
			Tokens: []types.Token{
				native(137, "POL", "Polygon Ecosystem Token"),
				token(137, "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", "USDC", "USD Coin", 6),
				token(137, "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", "USDC.e", "Bridged USD Coin", 6),
				token(137, "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", "USDT", "Tether USD", 6),
				token(137, "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", "DAI", "Dai Stablecoin", 18),
				token(137, "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", "WETH", "Wrapped Ether", 18),
			},
		},
		8453: {
			ID:         8453,
			Name:       "base",
			Router:     yearnRouter,
			SafeAPIURL: "https://safe-transaction-base.safe.global",
			Stablecoins: []common.Address{
				common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
				common.HexToAddress("0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb"),
			},
			Tokens: []types.Token{
				native(8453, "ETH", "Ether"),
				token(8453, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "USDC", "USD Coin", 6),
				token(8453, "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", "DAI", "Dai Stablecoin", 18),
				token(8453, "0x4200000000000000000000000000000000000006", "WETH", "Wrapped Ether", 18),
			},
		},
		42161: {
			ID:         42161,
			Name:       "arbitrum",
			SafeAPIURL: "https://safe-transaction-arbitrum.safe.global",
			Stablecoins: []common.Address{
				common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
				common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"),
				common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1"),
			},
			Tokens: []types.Token{
				native(42161, "ETH", "Ether"),
				token(42161, "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", "USDC", "USD Coin", 6),
				token(42161, "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", "USDT", "Tether USD", 6),
				token(42161, "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", "DAI", "Dai Stablecoin", 18),
				token(42161, "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", "WETH", "Wrapped Ether", 18),
			},
		},
	}
}

// ChainIDs returns the configured chain IDs in ascending order
func (c *Config) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(c.Chains))
	for id := range c.Chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RPCURLs maps every chain with an RPC endpoint to its URL
func (c *Config) RPCURLs() map[uint64]string {
	urls := make(map[uint64]string)
	for id, chain := range c.Chains {
		if chain.RPCURL != "" {
			urls[id] = chain.RPCURL
		}
	}
	return urls
}

// SafeAPIURLs maps every chain to its Safe transaction service
func (c *Config) SafeAPIURLs() map[uint64]string {
	urls := make(map[uint64]string)
	for id, chain := range c.Chains {
		if chain.SafeAPIURL != "" {
			urls[id] = chain.SafeAPIURL
		}
	}
	return urls
}

// RouterAddress returns the vault router deployed on chainID
func (c *Config) RouterAddress(chainID uint64) (common.Address, bool) {
	chain, ok := c.Chains[chainID]
	if !ok || !chain.HasRouter() {
		return common.Address{}, false
	}
	return chain.Router, true
}

// IsStablecoin reports whether token is a known stablecoin on chainID
func (c *Config) IsStablecoin(chainID uint64, token common.Address) bool {
	chain, ok := c.Chains[chainID]
	if !ok {
		return false
	}
	for _, s := range chain.Stablecoins {
		if s == token {
			return true
		}
	}
	return false
}

// FindToken looks a token up by symbol or address. A zero chainID searches
// every chain and fails when the symbol is ambiguous.
func (c *Config) FindToken(asset string, chainID uint64) (types.Token, error) {
	var matches []types.Token
	for _, id := range c.ChainIDs() {
		if chainID != 0 && id != chainID {
			continue
		}
		for _, t := range c.Chains[id].Tokens {
			if matchesToken(t, asset) {
				matches = append(matches, t)
			}
		}
	}

	switch len(matches) {
	case 0:
		return types.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, asset)
	case 1:
		return matches[0], nil
	}
	return types.Token{}, ErrAmbiguousToken
}

func matchesToken(t types.Token, asset string) bool {
	if common.IsHexAddress(asset) {
		return t.Address == common.HexToAddress(asset)
	}
	return strings.EqualFold(t.Symbol, asset)
}

// FindVault looks a vault up by address or symbol
func (c *Config) FindVault(ref string) (types.Vault, error) {
	var matches []types.Vault
	for _, v := range c.Vaults {
		if common.IsHexAddress(ref) {
			if v.Address == common.HexToAddress(ref) {
				matches = append(matches, v)
			}
			continue
		}
		if strings.EqualFold(v.Symbol, ref) || strings.EqualFold(v.Name, ref) {
			matches = append(matches, v)
		}
	}

	switch len(matches) {
	case 0:
		return types.Vault{}, fmt.Errorf("%w: %s", ErrUnknownVault, ref)
	case 1:
		return matches[0], nil
	}
	return types.Vault{}, ErrAmbiguousVault
}
