package handler

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/parts-ledger/internal/adapter/catalog"
	"github.com/rl1809/parts-ledger/internal/adapter/directory"
	"github.com/rl1809/parts-ledger/internal/adapter/storage"
	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/core/service"
)

func newTestServices(t *testing.T) Services {
	t.Helper()
	logger := zaptest.NewLogger(t)

	repo := storage.NewMemoryAdapter()
	parts := catalog.NewMemoryCatalog(
		domain.Part{ID: "brake-pad", SKU: "BP-01", Name: "Brake pad", UnitCost: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(18), Active: true},
		domain.Part{ID: "retired", Name: "Retired part"},
	)
	dir := directory.NewMemoryDirectory()
	dir.PutVehicle(domain.Vehicle{ID: "v1", ClientID: "c1", Model: "Corolla"})
	dir.PutServiceOrderItem(domain.ServiceOrderItem{ID: "soi-1", ServiceOrderID: "so-1", VehicleID: "v1", Description: "Front brakes"})

	bus := service.NewEventBus(logger, nil)
	opts := service.DefaultOptions()
	return Services{
		Items:           service.NewItemService(repo, parts, bus, logger, opts),
		Ledger:          service.NewLedgerService(repo, parts, dir, bus, logger, opts),
		Availability:    service.NewAvailabilityService(repo, dir, storage.NewLRUCache(64, 0), bus, logger, opts),
		Critical:        service.NewCriticalReportService(repo, parts, logger, opts),
		Recommendations: service.NewRecommendationService(repo, parts, dir, logger, opts),
	}
}
