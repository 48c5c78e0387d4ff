package storage

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

// LRUCache is the single-replica availability cache. Generations are kept
// outside the LRU so eviction never resets them.
type LRUCache struct {
	mu          sync.Mutex
	entries     *expirable.LRU[string, domain.InventoryAvailability]
	generations map[string]int64
}

func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if ttl <= 0 {
		ttl = defaultAvailabilityTTL
	}
	return &LRUCache{
		entries:     expirable.NewLRU[string, domain.InventoryAvailability](size, nil, ttl),
		generations: make(map[string]int64),
	}
}

func (c *LRUCache) GetAvailability(ctx context.Context, partID string) (*domain.InventoryAvailability, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	generation := c.generations[partID]
	av, ok := c.entries.Get(partID)
	if !ok {
		return nil, generation, nil
	}
	return &av, generation, nil
}

func (c *LRUCache) SetAvailability(ctx context.Context, av domain.InventoryAvailability, generation int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[av.PartID] != generation {
		return nil
	}
	c.entries.Add(av.PartID, av)
	return nil
}

func (c *LRUCache) Invalidate(ctx context.Context, partID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[partID]++
	c.entries.Remove(partID)
	return nil
}
