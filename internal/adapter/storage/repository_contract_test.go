package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

// testRepository runs the behaviour every StockRepository must share.
// partPrefix keeps runs against a shared database apart.
func testRepository(t *testing.T, repo port.StockRepository, partPrefix string) {
	t.Run("CreateAndGet", func(t *testing.T) {
		ctx := context.Background()
		item := newItem(partPrefix+"create", "A1", 5)
		seed := newMovement(item, domain.MovementEntry, 5)

		if err := repo.CreateItem(ctx, item, &seed); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}

		got, err := repo.GetItem(ctx, item.ID)
		if err != nil {
			t.Fatalf("GetItem failed: %v", err)
		}
		if got == nil || got.AvailableQuantity != 5 || got.Version != 1 {
			t.Fatalf("unexpected item: %+v", got)
		}
		if !got.AverageCost.Equal(item.AverageCost) {
			t.Errorf("expected cost %s, got %s", item.AverageCost, got.AverageCost)
		}

		count, _ := repo.CountMovements(ctx, item.ID)
		if count != 1 {
			t.Errorf("expected 1 movement, got %d", count)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := repo.GetItem(context.Background(), uuid.NewString())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("DuplicateActiveLocation", func(t *testing.T) {
		ctx := context.Background()
		first := newItem(partPrefix+"dup", "B1", 0)
		if err := repo.CreateItem(ctx, first, nil); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}

		err := repo.CreateItem(ctx, newItem(partPrefix+"dup", "B1", 0), nil)
		if !errors.Is(err, port.ErrDuplicateItem) {
			t.Fatalf("expected ErrDuplicateItem, got %v", err)
		}

		// Same part elsewhere is fine.
		if err := repo.CreateItem(ctx, newItem(partPrefix+"dup", "B2", 0), nil); err != nil {
			t.Fatalf("CreateItem at another location failed: %v", err)
		}
	})

	t.Run("ApplyMovementOptimisticLock", func(t *testing.T) {
		ctx := context.Background()
		item := newItem(partPrefix+"lock", "C1", 10)
		if err := repo.CreateItem(ctx, item, nil); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}

		next := item
		next.AvailableQuantity, next.ReservedQuantity, next.Version = 7, 3, 2
		mv := newMovement(next, domain.MovementReservation, 3)
		if err := repo.ApplyMovement(ctx, next, 1, mv); err != nil {
			t.Fatalf("ApplyMovement failed: %v", err)
		}

		stale := newMovement(next, domain.MovementReservation, 1)
		if err := repo.ApplyMovement(ctx, next, 1, stale); !errors.Is(err, port.ErrOptimisticLock) {
			t.Fatalf("expected ErrOptimisticLock, got %v", err)
		}

		count, _ := repo.CountMovements(ctx, item.ID)
		if count != 1 {
			t.Errorf("stale write appended a movement: %d movements", count)
		}
	})

	t.Run("ConcurrentApplyMovement", func(t *testing.T) {
		ctx := context.Background()
		item := newItem(partPrefix+"race", "D1", 10)
		if err := repo.CreateItem(ctx, item, nil); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next := item
				next.AvailableQuantity, next.ReservedQuantity, next.Version = 9, 1, 2
				if err := repo.ApplyMovement(ctx, next, 1, newMovement(next, domain.MovementReservation, 1)); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Errorf("expected exactly one winner, got %d", wins.Load())
		}
	})

	t.Run("SnapshotAndFilters", func(t *testing.T) {
		ctx := context.Background()
		partID := partPrefix + "snap"
		item := newItem(partID, "E1", 4)
		seed := newMovement(item, domain.MovementEntry, 4)
		if err := repo.CreateItem(ctx, item, &seed); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}

		next := item
		next.AvailableQuantity, next.ReservedQuantity, next.Version = 2, 2, 2
		res := newMovement(next, domain.MovementReservation, 2)
		res.ServiceOrderItemID = "soi-" + partID
		if err := repo.ApplyMovement(ctx, next, 1, res); err != nil {
			t.Fatalf("ApplyMovement failed: %v", err)
		}

		snap, err := repo.Snapshot(ctx, partID, &domain.MovementFilter{PartID: partID})
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if len(snap.Items) != 1 || len(snap.Movements) != 2 {
			t.Fatalf("expected 1 item and 2 movements, got %d and %d", len(snap.Items), len(snap.Movements))
		}
		if snap.Movements[0].Type != domain.MovementEntry {
			t.Errorf("movements out of order: %v first", snap.Movements[0].Type)
		}
		available, reserved := domain.Replay(snap.Movements)
		if available != snap.Items[0].AvailableQuantity || reserved != snap.Items[0].ReservedQuantity {
			t.Errorf("replay (%d,%d) does not match item (%d,%d)", available, reserved,
				snap.Items[0].AvailableQuantity, snap.Items[0].ReservedQuantity)
		}

		bare, err := repo.Snapshot(ctx, partID, nil)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if len(bare.Movements) != 0 {
			t.Errorf("expected no movements without a filter, got %d", len(bare.Movements))
		}

		bySOI, err := repo.ListMovements(ctx, domain.MovementFilter{ServiceOrderItemIDs: []string{res.ServiceOrderItemID}})
		if err != nil {
			t.Fatalf("ListMovements failed: %v", err)
		}
		if len(bySOI) != 1 || bySOI[0].ID != res.ID {
			t.Errorf("unexpected movements by service order item: %+v", bySOI)
		}

		limited, _ := repo.ListMovements(ctx, domain.MovementFilter{PartID: partID, Limit: 1})
		if len(limited) != 1 {
			t.Errorf("expected limit 1 to be honoured, got %d", len(limited))
		}
	})

	t.Run("UpdateAndDelete", func(t *testing.T) {
		ctx := context.Background()
		item := newItem(partPrefix+"upd", "F1", 0)
		if err := repo.CreateItem(ctx, item, nil); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}

		item.MinimumQuantity = 9
		item.Version = 2
		if err := repo.UpdateItem(ctx, item, 1); err != nil {
			t.Fatalf("UpdateItem failed: %v", err)
		}
		if err := repo.UpdateItem(ctx, item, 1); !errors.Is(err, port.ErrOptimisticLock) {
			t.Fatalf("expected ErrOptimisticLock, got %v", err)
		}

		got, _ := repo.GetItem(ctx, item.ID)
		if got.MinimumQuantity != 9 {
			t.Errorf("expected minimum 9, got %d", got.MinimumQuantity)
		}

		if err := repo.DeleteItem(ctx, item.ID, 2); err != nil {
			t.Fatalf("DeleteItem failed: %v", err)
		}
		if got, _ := repo.GetItem(ctx, item.ID); got != nil {
			t.Errorf("expected item to be gone, got %+v", got)
		}
	})

	t.Run("SoftDeletedHiddenFromListing", func(t *testing.T) {
		ctx := context.Background()
		partID := partPrefix + "soft"
		item := newItem(partID, "G1", 0)
		if err := repo.CreateItem(ctx, item, nil); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}

		deletedAt := time.Now().UTC().Truncate(time.Microsecond)
		item.Status = domain.ItemStatusInactive
		item.DeletedAt = &deletedAt
		item.Version = 2
		if err := repo.UpdateItem(ctx, item, 1); err != nil {
			t.Fatalf("UpdateItem failed: %v", err)
		}

		visible, _ := repo.ListItems(ctx, domain.ItemFilter{PartID: partID})
		if len(visible) != 0 {
			t.Errorf("expected soft-deleted item to be hidden, got %d", len(visible))
		}
		all, _ := repo.ListItems(ctx, domain.ItemFilter{PartID: partID, IncludeDeleted: true})
		if len(all) != 1 {
			t.Errorf("expected soft-deleted item with IncludeDeleted, got %d", len(all))
		}

		// The location is free again.
		if err := repo.CreateItem(ctx, newItem(partID, "G1", 0), nil); err != nil {
			t.Errorf("expected location to be reusable, got %v", err)
		}
	})
}

func newItem(partID, location string, available int) domain.InventoryItem {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.InventoryItem{
		ID:                uuid.NewString(),
		PartID:            partID,
		Location:          location,
		AvailableQuantity: available,
		MinimumQuantity:   2,
		AverageCost:       decimal.RequireFromString("12.5000"),
		SalePrice:         decimal.RequireFromString("20.0000"),
		Status:            domain.ItemStatusActive,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func newMovement(item domain.InventoryItem, typ domain.MovementType, qty int) domain.Movement {
	return domain.Movement{
		ID:            uuid.NewString(),
		Type:          typ,
		Quantity:      qty,
		OccurredAt:    time.Now().UTC().Truncate(time.Microsecond),
		PartID:        item.PartID,
		ItemID:        item.ID,
		Notes:         fmt.Sprintf("%s of %d", typ, qty),
		UnitCost:      item.AverageCost,
		BalanceAfter:  item.AvailableQuantity,
		ReservedAfter: item.ReservedQuantity,
	}
}
