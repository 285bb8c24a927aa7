package parents

import (
	"context"
	"sync"
)

// Cache memoizes resolved ancestor chains per (scope, node id). The scope
// is the propagation run's cache key.
type Cache interface {
	Get(ctx context.Context, scope, nodeID string) ([]string, bool, error)
	Set(ctx context.Context, scope, nodeID string, chain []string) error
	Purge(ctx context.Context, scope string) error
}

type cacheKey struct {
	scope  string
	nodeID string
}

// MemoryCache is an in-process Cache. The lock is only held for map access,
// never across adapter calls.
type MemoryCache struct {
	mu     sync.RWMutex
	chains map[cacheKey][]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{chains: make(map[cacheKey][]string)}
}

func (c *MemoryCache) Get(_ context.Context, scope, nodeID string) ([]string, bool, error) {
	c.mu.RLock()
	chain, ok := c.chains[cacheKey{scope, nodeID}]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return cloneChain(chain), true, nil
}

func (c *MemoryCache) Set(_ context.Context, scope, nodeID string, chain []string) error {
	c.mu.Lock()
	c.chains[cacheKey{scope, nodeID}] = cloneChain(chain)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Purge(_ context.Context, scope string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.chains {
		if key.scope == scope {
			delete(c.chains, key)
		}
	}
	return nil
}

// Len returns the number of memoized chains across all scopes.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chains)
}

func cloneChain(chain []string) []string {
	out := make([]string, len(chain))
	copy(out, chain)
	return out
}
