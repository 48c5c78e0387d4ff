package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rl1809/parts-ledger/internal/adapter/storage"
	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

func TestGetPartAvailability_Coverage(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.createItem(t, "brake-pad", "B2", 10, 0)
	env.createItem(t, "brake-pad", "A1", 5, 0)

	ctx := context.Background()
	if _, err := env.ledger.ReserveStock(ctx, ReserveRequest{ServiceOrderItemID: "soi-1", PartID: "brake-pad", Location: "B2", Quantity: 6}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := env.ledger.ConsumeStock(ctx, ReservationChange{ServiceOrderItemID: "soi-1", Quantity: 3}); err != nil {
		t.Fatalf("consume: %v", err)
	}

	av, err := env.availability.GetPartAvailability(ctx, "brake-pad")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}

	if av.TotalAvailable != 9 || av.Reserved != 3 || av.Pending != 3 {
		t.Errorf("expected available=9 reserved=3 pending=3, got %d/%d/%d", av.TotalAvailable, av.Reserved, av.Pending)
	}
	if len(av.ByLocation) != 2 || av.ByLocation[0].Location != "A1" || av.ByLocation[1].Location != "B2" {
		t.Fatalf("expected locations sorted A1,B2, got %+v", av.ByLocation)
	}
	if av.WindowDays != 30 {
		t.Errorf("expected 30 day window, got %d", av.WindowDays)
	}

	wantRate := 3.0 / 30
	if math.Abs(av.AverageDailyConsumption-wantRate) > 1e-9 {
		t.Errorf("expected daily consumption %f, got %f", wantRate, av.AverageDailyConsumption)
	}
	if av.CoverageDays == nil {
		t.Fatal("expected coverage days")
	}
	if math.Abs(*av.CoverageDays-90) > 1e-6 {
		t.Errorf("expected 90 coverage days, got %f", *av.CoverageDays)
	}
	wantStockout := testEpoch.Add(90 * 24 * time.Hour)
	if av.ProjectedStockoutDate == nil || av.ProjectedStockoutDate.Sub(wantStockout).Abs() > time.Second {
		t.Errorf("expected stockout near %s, got %v", wantStockout, av.ProjectedStockoutDate)
	}
}

func TestGetPartAvailability_NoConsumptionMeansNoCoverage(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.createItem(t, "brake-pad", "A1", 10, 0)

	av, err := env.availability.GetPartAvailability(context.Background(), "brake-pad")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if av.CoverageDays != nil || av.ProjectedStockoutDate != nil {
		t.Errorf("expected unbounded coverage, got %v / %v", av.CoverageDays, av.ProjectedStockoutDate)
	}
}

func TestGetPartAvailability_OldConsumptionOutsideWindow(t *testing.T) {
	env := newTestEnv(t, Options{ConsumptionWindow: 7 * 24 * time.Hour})
	env.createItem(t, "brake-pad", "A1", 10, 0)
	env.reserve(t, "soi-1", "brake-pad", 2)
	env.consume(t, "soi-1", "brake-pad", 2)
	env.clock.Advance(8 * 24 * time.Hour)

	av, err := env.availability.GetPartAvailability(context.Background(), "brake-pad")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if av.AverageDailyConsumption != 0 {
		t.Errorf("expected consumption outside window to be ignored, got %f", av.AverageDailyConsumption)
	}
}

func TestGetPartAvailability_Errors(t *testing.T) {
	env := newTestEnv(t, Options{})
	if _, err := env.availability.GetPartAvailability(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := env.availability.GetPartAvailability(context.Background(), "oil-filter"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestGetPartAvailability_InvalidatedByMutations(t *testing.T) {
	env := newTestEnv(t, Options{})
	item := env.createItem(t, "brake-pad", "A1", 10, 0)
	ctx := context.Background()

	first, err := env.availability.GetPartAvailability(ctx, "brake-pad")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if _, err := env.availability.GetPartAvailability(ctx, "brake-pad"); err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if env.cache.hits != 1 {
		t.Errorf("expected second read served from cache, got %d hits", env.cache.hits)
	}

	before := env.cache.invalidated["brake-pad"]
	env.reserve(t, "soi-1", "brake-pad", 4)
	if env.cache.invalidated["brake-pad"] <= before {
		t.Error("expected reservation to invalidate the cached availability")
	}

	second, err := env.availability.GetPartAvailability(ctx, "brake-pad")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if second.TotalAvailable != first.TotalAvailable-4 || second.Reserved != 4 {
		t.Errorf("expected fresh availability 6/4, got %d/%d", second.TotalAvailable, second.Reserved)
	}

	minimum := 3
	before = env.cache.invalidated["brake-pad"]
	if _, err := env.items.UpdateItem(ctx, item.ID, domain.ItemUpdate{MinimumQuantity: &minimum}); err != nil {
		t.Fatalf("update item: %v", err)
	}
	if env.cache.invalidated["brake-pad"] <= before {
		t.Error("expected item update to invalidate the cached availability")
	}
}

// slowReadRepo runs afterSnapshot once, after the snapshot is taken and
// before the reader gets it back.
type slowReadRepo struct {
	*storage.MemoryAdapter
	mu            sync.Mutex
	afterSnapshot func()
}

func (r *slowReadRepo) Snapshot(ctx context.Context, partID string, filter *domain.MovementFilter) (*port.Snapshot, error) {
	snap, err := r.MemoryAdapter.Snapshot(ctx, partID, filter)
	r.mu.Lock()
	hook := r.afterSnapshot
	r.afterSnapshot = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return snap, err
}

func TestGetPartAvailability_StaleReadIsNotCached(t *testing.T) {
	repo := &slowReadRepo{MemoryAdapter: storage.NewMemoryAdapter()}
	env := newTestEnvWithRepo(t, repo, Options{})
	env.createItem(t, "brake-pad", "A1", 10, 0)
	ctx := context.Background()

	repo.mu.Lock()
	repo.afterSnapshot = func() { env.reserve(t, "soi-1", "brake-pad", 4) }
	repo.mu.Unlock()

	stale, err := env.availability.GetPartAvailability(ctx, "brake-pad")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if stale.TotalAvailable != 10 {
		t.Fatalf("expected the pre-reservation read, got %d", stale.TotalAvailable)
	}

	fresh, err := env.availability.GetPartAvailability(ctx, "brake-pad")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if fresh.TotalAvailable != 6 || fresh.Reserved != 4 {
		t.Errorf("expected 6/4 after the reservation, got %d/%d", fresh.TotalAvailable, fresh.Reserved)
	}
	if env.cache.hits != 0 {
		t.Errorf("expected the stale read to stay out of the cache, got %d hits", env.cache.hits)
	}
}

func TestGetPartAvailability_HardDeleteDoesNotResurrect(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.createItem(t, "brake-pad", "A1", 4, 0)
	spare := env.createItem(t, "brake-pad", "B2", 0, 0)
	ctx := context.Background()

	if _, err := env.availability.GetPartAvailability(ctx, "brake-pad"); err != nil {
		t.Fatalf("get availability: %v", err)
	}
	soft, err := env.items.DeleteItem(ctx, spare.ID)
	if err != nil || soft {
		t.Fatalf("expected hard delete, got soft=%v err=%v", soft, err)
	}

	av, err := env.availability.GetPartAvailability(ctx, "brake-pad")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if len(av.ByLocation) != 1 || av.ByLocation[0].Location != "A1" {
		t.Errorf("expected only A1 after the hard delete, got %+v", av.ByLocation)
	}
}

func TestGetVehicleAndClientAvailability(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.createItem(t, "brake-pad", "A1", 10, 0)
	env.createItem(t, "oil-filter", "A2", 10, 0)
	env.createItem(t, "spark-plug", "A3", 10, 0)
	env.reserve(t, "soi-1", "brake-pad", 1)  // v1, client c1
	env.reserve(t, "soi-3", "spark-plug", 1) // v3, client c3

	ctx := context.Background()
	vehicle, err := env.availability.GetVehicleAvailability(ctx, "v1")
	if err != nil {
		t.Fatalf("vehicle availability: %v", err)
	}
	if len(vehicle.Parts) != 1 || vehicle.Parts[0].PartID != "brake-pad" {
		t.Errorf("expected brake-pad for v1, got %+v", vehicle.Parts)
	}

	client, err := env.availability.GetClientAvailability(ctx, "c3")
	if err != nil {
		t.Fatalf("client availability: %v", err)
	}
	if client.SubjectID != "c3" || len(client.Parts) != 1 || client.Parts[0].PartID != "spark-plug" {
		t.Errorf("expected spark-plug for c3, got %+v", client)
	}

	empty, err := env.availability.GetClientAvailability(ctx, "nobody")
	if err != nil {
		t.Fatalf("client availability: %v", err)
	}
	if len(empty.Parts) != 0 {
		t.Errorf("expected no parts for unknown client, got %d", len(empty.Parts))
	}

	if _, err := env.availability.GetVehicleAvailability(ctx, ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
