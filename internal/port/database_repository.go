package port

import (
	"context"
	"errors"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

var (
	// ErrOptimisticLock is returned when the stored version no longer matches.
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	// ErrDuplicateItem is returned when an active item already exists for the part and location.
	ErrDuplicateItem = errors.New("duplicate inventory item")
)

// Snapshot is a consistent read of items and ledger taken at one point in time.
type Snapshot struct {
	Items     []domain.InventoryItem
	Movements []domain.Movement
}

type StockRepository interface {
	// CreateItem inserts a new item, together with its seeding movement when seed is non-nil
	CreateItem(ctx context.Context, item domain.InventoryItem, seed *domain.Movement) error

	// GetItem retrieves an item by ID, nil when missing
	GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error)

	// ListItems returns items matching the filter ordered by creation
	ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.InventoryItem, error)

	// UpdateItem writes non-quantity fields with version check for optimistic locking
	UpdateItem(ctx context.Context, item domain.InventoryItem, expectedVersion int) error

	// DeleteItem removes an item that has no ledger history, with version check
	DeleteItem(ctx context.Context, itemID string, expectedVersion int) error

	// ApplyMovement stores the new item balance and appends the movement atomically,
	// failing with ErrOptimisticLock if the item changed since expectedVersion
	ApplyMovement(ctx context.Context, item domain.InventoryItem, expectedVersion int, movement domain.Movement) error

	// ListMovements returns ledger entries in commit order
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, error)

	// CountMovements returns the number of ledger entries for an item
	CountMovements(ctx context.Context, itemID string) (int, error)

	// Snapshot reads the items of a part (all items when partID is empty) and the
	// movements matching filter from one consistent view; a nil filter reads no movements
	Snapshot(ctx context.Context, partID string, filter *domain.MovementFilter) (*Snapshot, error)
}
