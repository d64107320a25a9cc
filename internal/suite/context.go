// Package suite implements scenario orchestration: scenarios run
// sequentially or in parallel, sharing a CorrelationContext the core
// treats as opaque. The keyed value store is a bounded otter-backed
// cache, generalized from "one EWMA struct per domain" to "any value per
// correlation key."
package suite

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/maypok86/otter"
	"github.com/zeebo/xxh3"
)

// DefaultContextCapacity bounds the CorrelationContext's single-value
// store so a long-running suite of scenarios can't leak memory through an
// ever-growing key set.
const DefaultContextCapacity = 10_000

// WeightedEntry is one value in an ordered pool, with its selection weight.
type WeightedEntry struct {
	Value  any
	Weight float64
}

// CorrelationContext is the keyed value store and keyed weighted-pool
// store the core's external interface describes. All operations are
// thread-safe; multiple scenarios in a parallel run share one instance.
type CorrelationContext struct {
	values otter.Cache[string, any]

	mu    sync.Mutex
	pools map[string][]WeightedEntry
}

// NewCorrelationContext builds a context bounded to capacity single-value
// entries. Pools are unbounded in key count but each pool's entry count is
// whatever the caller adds via AddToPool.
func NewCorrelationContext(capacity int) (*CorrelationContext, error) {
	if capacity <= 0 {
		capacity = DefaultContextCapacity
	}
	cache, err := otter.MustBuilder[string, any](capacity).
		Cost(func(_ string, _ any) uint32 { return 1 }).
		Build()
	if err != nil {
		return nil, fmt.Errorf("suite: failed to build correlation context cache: %w", err)
	}
	return &CorrelationContext{
		values: cache,
		pools:  make(map[string][]WeightedEntry),
	}, nil
}

// Set stores a single value under key; once the context is at capacity the
// otter cache evicts an existing entry under its own eviction policy.
func (c *CorrelationContext) Set(key string, value any) {
	c.values.Set(key, value)
}

// Get retrieves a single value previously stored with Set.
func (c *CorrelationContext) Get(key string) (any, bool) {
	return c.values.Get(key)
}

// AddToPool appends a weighted entry to the named pool, creating the pool
// if it doesn't exist.
func (c *CorrelationContext) AddToPool(poolName string, value any, weight float64) {
	if weight <= 0 {
		weight = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools[poolName] = append(c.pools[poolName], WeightedEntry{Value: value, Weight: weight})
}

// GetFromPool draws one value from the named pool via weighted random
// sampling. Returns false if the pool is empty or unknown.
func (c *CorrelationContext) GetFromPool(poolName string) (any, bool) {
	c.mu.Lock()
	entries := c.pools[poolName]
	c.mu.Unlock()

	if len(entries) == 0 {
		return nil, false
	}
	var total float64
	for _, e := range entries {
		total += e.Weight
	}
	if total <= 0 {
		return entries[rand.IntN(len(entries))].Value, true
	}

	r := rand.Float64() * total
	var cumulative float64
	for _, e := range entries {
		cumulative += e.Weight
		if r < cumulative {
			return e.Value, true
		}
	}
	return entries[len(entries)-1].Value, true
}

// GetFromPoolDeterministic draws from the named pool using correlationKey
// to pick a stable index rather than a fresh random draw each call — two
// scenarios in the same suite run that pass the same key (e.g. a virtual
// user ID) always land on the same pool entry, which matters for
// correlated data like "this user's account always maps to this shard."
// The key is hashed with xxh3 rather than FNV/CRC since the pool can be
// drawn from on every task execution across tens of thousands of virtual
// users; xxh3 is the fast nonCryptographic hash already in the dependency
// graph.
func (c *CorrelationContext) GetFromPoolDeterministic(poolName, correlationKey string) (any, bool) {
	c.mu.Lock()
	entries := c.pools[poolName]
	c.mu.Unlock()

	if len(entries) == 0 {
		return nil, false
	}
	var total float64
	for _, e := range entries {
		total += e.Weight
	}
	if total <= 0 {
		idx := xxh3.HashString(correlationKey) % uint64(len(entries))
		return entries[idx].Value, true
	}

	// Map the hash into [0, total) and walk the cumulative weights, same
	// selection rule as GetFromPool but driven by a deterministic draw.
	h := xxh3.HashString(correlationKey)
	target := (float64(h) / float64(^uint64(0))) * total
	var cumulative float64
	for _, e := range entries {
		cumulative += e.Weight
		if target < cumulative {
			return e.Value, true
		}
	}
	return entries[len(entries)-1].Value, true
}

// PoolSize returns the number of entries in the named pool.
func (c *CorrelationContext) PoolSize(poolName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pools[poolName])
}
