package port

import (
	"context"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

// AvailabilityCache keeps one read-model per part behind a per-part
// generation counter. Every invalidation bumps the generation, and a value
// computed before an invalidation can no longer be stored.
type AvailabilityCache interface {
	// GetAvailability returns the cached read-model, nil on miss, and the
	// part's current generation
	GetAvailability(ctx context.Context, partID string) (*domain.InventoryAvailability, int64, error)

	// SetAvailability stores a read-model only if the part is still at generation
	SetAvailability(ctx context.Context, availability domain.InventoryAvailability, generation int64) error

	// Invalidate drops the cached read-model and bumps the generation
	Invalidate(ctx context.Context, partID string) error
}
