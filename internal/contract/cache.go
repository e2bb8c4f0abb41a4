package contract

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the package-level parse cache.
const DefaultCacheSize = 512

// Cache memoizes parsed contracts by expression text. Parsed contracts are
// immutable, so one instance is shared by every caller.
type Cache struct {
	entries *lru.Cache[string, *Contract]
}

// NewCache creates a cache holding at most size contracts.
func NewCache(size int) (*Cache, error) {
	entries, err := lru.New[string, *Contract](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Parse returns the cached contract for expr, parsing it on first use.
// Parse errors are not cached.
func (c *Cache) Parse(expr string) (*Contract, error) {
	if hit, ok := c.entries.Get(expr); ok {
		return hit, nil
	}
	parsed, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	c.entries.Add(expr, parsed)
	return parsed, nil
}

// Len returns the number of cached contracts.
func (c *Cache) Len() int {
	return c.entries.Len()
}

var defaultCache, _ = NewCache(DefaultCacheSize)

// Cached parses expr through the package-level cache.
func Cached(expr string) (*Contract, error) {
	return defaultCache.Parse(expr)
}
