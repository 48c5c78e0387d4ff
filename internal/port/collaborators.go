package port

import (
	"context"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

// PartCatalog resolves part references owned by the catalog module.
type PartCatalog interface {
	// GetPart returns the part, nil when the catalog does not know it
	GetPart(ctx context.Context, partID string) (*domain.Part, error)
}

// ServiceOrderDirectory answers questions about service orders, vehicles
// and clients owned by the service-order module.
type ServiceOrderDirectory interface {
	ServiceOrderItem(ctx context.Context, serviceOrderItemID string) (*domain.ServiceOrderItem, error)
	ServiceOrderItems(ctx context.Context, serviceOrderID string) ([]domain.ServiceOrderItem, error)
	// ItemsByDescription returns service-order items whose description matches, across all orders
	ItemsByDescription(ctx context.Context, description string) ([]domain.ServiceOrderItem, error)
	Vehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error)
	VehiclesByModel(ctx context.Context, model string) ([]domain.Vehicle, error)
	ClientVehicles(ctx context.Context, clientID string) ([]domain.Vehicle, error)
}

// EventPublisher forwards committed domain events outside the process.
type EventPublisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
	Close() error
}
