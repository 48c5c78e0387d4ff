package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

// MemoryCatalog serves parts from process memory.
type MemoryCatalog struct {
	mu    sync.RWMutex
	parts map[string]domain.Part
}

func NewMemoryCatalog(parts ...domain.Part) *MemoryCatalog {
	c := &MemoryCatalog{parts: make(map[string]domain.Part, len(parts))}
	for _, p := range parts {
		c.parts[p.ID] = p
	}
	return c
}

// LoadFile seeds a catalog from a JSON export in any shape DecodeParts
// understands.
func LoadFile(path string) (*MemoryCatalog, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	parts, err := DecodeParts(body)
	if err != nil {
		return nil, err
	}
	return NewMemoryCatalog(parts...), nil
}

func (c *MemoryCatalog) GetPart(ctx context.Context, partID string) (*domain.Part, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.parts[partID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *MemoryCatalog) Put(p domain.Part) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parts[p.ID] = p
}
