package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

// MemoryAdapter keeps items and the ledger in process. Writers hold the
// lock for the whole compare-and-append, readers share it.
type MemoryAdapter struct {
	mu        sync.RWMutex
	items     map[string]domain.InventoryItem
	order     []string
	movements []domain.Movement
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{items: make(map[string]domain.InventoryItem)}
}

func (m *MemoryAdapter) CreateItem(ctx context.Context, item domain.InventoryItem, seed *domain.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.ID]; ok {
		return port.ErrDuplicateItem
	}
	if m.activeConflict(item) {
		return port.ErrDuplicateItem
	}
	m.items[item.ID] = item
	m.order = append(m.order, item.ID)
	if seed != nil {
		m.movements = append(m.movements, *seed)
	}
	return nil
}

func (m *MemoryAdapter) GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[itemID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *MemoryAdapter) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.InventoryItem{}
	for _, id := range m.order {
		if item := m.items[id]; filter.Matches(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) UpdateItem(ctx context.Context, item domain.InventoryItem, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[item.ID]
	if !ok || current.Version != expectedVersion {
		return port.ErrOptimisticLock
	}
	if m.activeConflict(item) {
		return port.ErrDuplicateItem
	}
	// quantities are owned by ApplyMovement
	item.AvailableQuantity = current.AvailableQuantity
	item.ReservedQuantity = current.ReservedQuantity
	m.items[item.ID] = item
	return nil
}

func (m *MemoryAdapter) DeleteItem(ctx context.Context, itemID string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[itemID]
	if !ok || current.Version != expectedVersion {
		return port.ErrOptimisticLock
	}
	delete(m.items, itemID)
	for i, id := range m.order {
		if id == itemID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryAdapter) ApplyMovement(ctx context.Context, item domain.InventoryItem, expectedVersion int, movement domain.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[item.ID]
	if !ok || current.Version != expectedVersion {
		return port.ErrOptimisticLock
	}
	if item.AvailableQuantity < 0 || item.ReservedQuantity < 0 {
		return fmt.Errorf("apply movement %s: negative balance on item %s", movement.ID, item.ID)
	}
	m.items[item.ID] = item
	m.movements = append(m.movements, movement)
	return nil
}

func (m *MemoryAdapter) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterMovements(filter), nil
}

func (m *MemoryAdapter) CountMovements(ctx context.Context, itemID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, mv := range m.movements {
		if mv.ItemID == itemID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryAdapter) Snapshot(ctx context.Context, partID string, filter *domain.MovementFilter) (*port.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &port.Snapshot{Items: []domain.InventoryItem{}, Movements: []domain.Movement{}}
	for _, id := range m.order {
		item := m.items[id]
		if partID == "" || item.PartID == partID {
			snap.Items = append(snap.Items, item)
		}
	}
	if filter != nil {
		snap.Movements = m.filterMovements(*filter)
	}
	return snap, nil
}

func (m *MemoryAdapter) filterMovements(filter domain.MovementFilter) []domain.Movement {
	out := []domain.Movement{}
	for _, mv := range m.movements {
		if !filter.Matches(mv) {
			continue
		}
		out = append(out, mv)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

// activeConflict reports whether another active item stocks the same part
// at the same location.
func (m *MemoryAdapter) activeConflict(item domain.InventoryItem) bool {
	if !item.Active() {
		return false
	}
	for _, other := range m.items {
		if other.ID != item.ID && other.Active() && other.PartID == item.PartID && other.Location == item.Location {
			return true
		}
	}
	return false
}
