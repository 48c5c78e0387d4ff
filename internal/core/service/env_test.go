package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/parts-ledger/internal/adapter/catalog"
	"github.com/rl1809/parts-ledger/internal/adapter/directory"
	"github.com/rl1809/parts-ledger/internal/adapter/storage"
	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

var testEpoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher captures everything the bus forwards.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// spyCache counts cache traffic on top of the LRU read-model cache.
type spyCache struct {
	*storage.LRUCache
	mu          sync.Mutex
	hits        int
	invalidated map[string]int
}

func newSpyCache() *spyCache {
	return &spyCache{LRUCache: storage.NewLRUCache(64, 0), invalidated: make(map[string]int)}
}

func (c *spyCache) GetAvailability(ctx context.Context, partID string) (*domain.InventoryAvailability, int64, error) {
	av, generation, err := c.LRUCache.GetAvailability(ctx, partID)
	if av != nil {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
	}
	return av, generation, err
}

func (c *spyCache) Invalidate(ctx context.Context, partID string) error {
	c.mu.Lock()
	c.invalidated[partID]++
	c.mu.Unlock()
	return c.LRUCache.Invalidate(ctx, partID)
}

type testEnv struct {
	repo      port.StockRepository
	catalog   *catalog.MemoryCatalog
	directory *directory.MemoryDirectory
	cache     *spyCache
	published *recordingPublisher
	clock     *fakeClock

	items        *ItemService
	ledger       *LedgerService
	availability *AvailabilityService
	critical     *CriticalReportService
	recs         *RecommendationService
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	return newTestEnvWithRepo(t, storage.NewMemoryAdapter(), opts)
}

func newTestEnvWithRepo(t *testing.T, repo port.StockRepository, opts Options) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	clock := &fakeClock{now: testEpoch}
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = time.Microsecond
	}

	parts := catalog.NewMemoryCatalog(
		domain.Part{ID: "brake-pad", SKU: "BP-01", Name: "Brake pad", UnitCost: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(18), Active: true},
		domain.Part{ID: "oil-filter", SKU: "OF-02", Name: "Oil filter", UnitCost: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(9), Active: true},
		domain.Part{ID: "spark-plug", SKU: "SP-03", Name: "Spark plug", UnitCost: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(5), Active: true},
		domain.Part{ID: "retired", Name: "Retired part"},
	)

	dir := directory.NewMemoryDirectory()
	dir.PutVehicle(domain.Vehicle{ID: "v1", ClientID: "c1", Model: "Corolla"})
	dir.PutVehicle(domain.Vehicle{ID: "v2", ClientID: "c2", Model: "corolla"})
	dir.PutVehicle(domain.Vehicle{ID: "v3", ClientID: "c3", Model: "Civic"})
	dir.PutServiceOrderItem(domain.ServiceOrderItem{ID: "soi-1", ServiceOrderID: "so-1", VehicleID: "v1", Description: "Front brakes"})
	dir.PutServiceOrderItem(domain.ServiceOrderItem{ID: "soi-2", ServiceOrderID: "so-2", VehicleID: "v2", Description: "front brakes"})
	dir.PutServiceOrderItem(domain.ServiceOrderItem{ID: "soi-3", ServiceOrderID: "so-3", VehicleID: "v3", Description: "Ignition"})

	published := &recordingPublisher{}
	bus := NewEventBus(logger, published)
	cache := newSpyCache()

	return &testEnv{
		repo:         repo,
		catalog:      parts,
		directory:    dir,
		cache:        cache,
		published:    published,
		clock:        clock,
		items:        NewItemService(repo, parts, bus, logger, opts),
		ledger:       NewLedgerService(repo, parts, dir, bus, logger, opts),
		availability: NewAvailabilityService(repo, dir, cache, bus, logger, opts),
		critical:     NewCriticalReportService(repo, parts, logger, opts),
		recs:         NewRecommendationService(repo, parts, dir, logger, opts),
	}
}

func (e *testEnv) createItem(t *testing.T, partID, location string, initial, minimum int) domain.InventoryItem {
	t.Helper()
	item, err := e.items.CreateItem(context.Background(), CreateItemRequest{
		PartID:          partID,
		Location:        location,
		InitialQuantity: initial,
		MinimumQuantity: minimum,
	})
	if err != nil {
		t.Fatalf("create item %s@%s: %v", partID, location, err)
	}
	return *item
}

func (e *testEnv) reserve(t *testing.T, soi, partID string, qty int) *MovementResult {
	t.Helper()
	res, err := e.ledger.ReserveStock(context.Background(), ReserveRequest{ServiceOrderItemID: soi, PartID: partID, Quantity: qty})
	if err != nil {
		t.Fatalf("reserve %d of %s for %s: %v", qty, partID, soi, err)
	}
	return res
}

func (e *testEnv) consume(t *testing.T, soi, partID string, qty int) *MovementResult {
	t.Helper()
	res, err := e.ledger.ConsumeStock(context.Background(), ReservationChange{ServiceOrderItemID: soi, PartID: partID, Quantity: qty})
	if err != nil {
		t.Fatalf("consume %d of %s for %s: %v", qty, partID, soi, err)
	}
	return res
}

func (e *testEnv) itemState(t *testing.T, itemID string) domain.InventoryItem {
	t.Helper()
	item, err := e.items.GetItem(context.Background(), itemID)
	if err != nil {
		t.Fatalf("get item %s: %v", itemID, err)
	}
	return *item
}

func (e *testEnv) assertConsistent(t *testing.T, partID string) {
	t.Helper()
	report, err := e.ledger.Reconcile(context.Background(), partID)
	if err != nil {
		t.Fatalf("reconcile %s: %v", partID, err)
	}
	if !report.Consistent() {
		t.Errorf("ledger replay for %s = (%d, %d), items hold (%d, %d)", partID,
			report.ExpectedAvailable, report.ExpectedReserved, report.ActualAvailable, report.ActualReserved)
	}
}

func assertQuantities(t *testing.T, item domain.InventoryItem, available, reserved int) {
	t.Helper()
	if item.AvailableQuantity != available || item.ReservedQuantity != reserved {
		t.Errorf("item %s: expected available=%d reserved=%d, got available=%d reserved=%d",
			item.ID, available, reserved, item.AvailableQuantity, item.ReservedQuantity)
	}
}
