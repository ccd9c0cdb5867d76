package solver

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/ristretto"
	"github.com/ethereum/go-ethereum/common"

	"vault-zap/pkg/types"
)

// AllowanceCache remembers allowances per (chain, input, output, owner).
// Entries are removed, never overwritten in place, after anything that can
// change the allowance. A nil cache never hits.
type AllowanceCache struct {
	cache *ristretto.Cache
}

// NewAllowanceCache creates an empty cache
func NewAllowanceCache() (*AllowanceCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create allowance cache: %w", err)
	}
	return &AllowanceCache{cache: cache}, nil
}

// AllowanceKey builds the cache key of an allowance
func AllowanceKey(chainID uint64, input, output, owner common.Address) string {
	return strings.ToLower(fmt.Sprintf("%d_%s_%s_%s", chainID, input.Hex(), output.Hex(), owner.Hex()))
}

// Get returns a cached allowance
func (c *AllowanceCache) Get(key string) (types.NormalizedBN, bool) {
	if c == nil {
		return types.NormalizedBN{}, false
	}
	v, ok := c.cache.Get(key)
	if !ok {
		return types.NormalizedBN{}, false
	}
	allowance, ok := v.(types.NormalizedBN)
	return allowance, ok
}

// Set stores an allowance
func (c *AllowanceCache) Set(key string, allowance types.NormalizedBN) {
	if c == nil {
		return
	}
	c.cache.Set(key, allowance, 1)
	c.cache.Wait()
}

// Invalidate removes an allowance
func (c *AllowanceCache) Invalidate(key string) {
	if c == nil {
		return
	}
	c.cache.Del(key)
}

// Close releases the cache
func (c *AllowanceCache) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
