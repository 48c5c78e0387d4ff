package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

type CreateItemRequest struct {
	PartID          string
	Location        string
	MinimumQuantity int
	InitialQuantity int
	Cost            *decimal.Decimal
	Price           *decimal.Decimal
	PerformedBy     string
}

// ItemService manages item records. It never edits quantities: stock
// changes go through LedgerService.
type ItemService struct {
	repo    port.StockRepository
	catalog port.PartCatalog
	bus     *EventBus
	logger  *zap.Logger
	tracer  trace.Tracer
	opts    Options
}

func NewItemService(repo port.StockRepository, catalog port.PartCatalog, bus *EventBus, logger *zap.Logger, opts Options) *ItemService {
	return &ItemService{
		repo:    repo,
		catalog: catalog,
		bus:     bus,
		logger:  logger.Named("items"),
		tracer:  tracer(),
		opts:    opts.withDefaults(),
	}
}

func (s *ItemService) CreateItem(ctx context.Context, req CreateItemRequest) (item *domain.InventoryItem, err error) {
	const op = "CreateItem"
	ctx, span := s.tracer.Start(ctx, "ItemService."+op, trace.WithAttributes(attribute.String("part.id", req.PartID)))
	defer func() { endSpan(span, err) }()

	if req.PartID == "" {
		return nil, domain.NewValidationError(op, "part id is required")
	}
	if req.MinimumQuantity < 0 {
		return nil, domain.NewValidationError(op, "minimum quantity cannot be negative")
	}
	if req.InitialQuantity < 0 {
		return nil, domain.NewValidationError(op, "initial quantity cannot be negative")
	}
	if err := validatePrices(op, req.Cost, req.Price); err != nil {
		return nil, err
	}

	part, err := requireActivePart(ctx, s.catalog, op, req.PartID)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now().UTC()
	created := domain.InventoryItem{
		ID:                uuid.NewString(),
		PartID:            req.PartID,
		AvailableQuantity: req.InitialQuantity,
		MinimumQuantity:   req.MinimumQuantity,
		Location:          req.Location,
		AverageCost:       pick(req.Cost, part.UnitCost),
		SalePrice:         pick(req.Price, part.UnitPrice),
		Status:            domain.ItemStatusActive,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var seed *domain.Movement
	if req.InitialQuantity > 0 {
		seed = &domain.Movement{
			ID:           uuid.NewString(),
			Type:         domain.MovementEntry,
			Quantity:     req.InitialQuantity,
			OccurredAt:   now,
			PartID:       created.PartID,
			ItemID:       created.ID,
			Notes:        "initial stock",
			UnitCost:     created.AverageCost,
			UnitPrice:    created.SalePrice,
			BalanceAfter: req.InitialQuantity,
			PerformedBy:  req.PerformedBy,
		}
	}

	if err := s.repo.CreateItem(ctx, created, seed); err != nil {
		if errors.Is(err, port.ErrDuplicateItem) {
			return nil, &domain.Error{Kind: domain.ErrDuplicatePart, Op: op, PartID: req.PartID,
				Msg: fmt.Sprintf("an active item already exists at location %q", req.Location)}
		}
		return nil, fmt.Errorf("create item: %w", err)
	}

	if seed != nil {
		s.bus.Publish(ctx, domain.EventsFor(created, *seed)...)
	} else {
		s.bus.Publish(ctx, itemUpdatedEvent(created))
	}

	s.logger.Info("inventory item created",
		zap.String("item_id", created.ID),
		zap.String("part_id", created.PartID),
		zap.String("location", created.Location),
		zap.Int("initial_quantity", req.InitialQuantity),
	)
	return &created, nil
}

func (s *ItemService) UpdateItem(ctx context.Context, itemID string, update domain.ItemUpdate) (item *domain.InventoryItem, err error) {
	const op = "UpdateItem"
	ctx, span := s.tracer.Start(ctx, "ItemService."+op, trace.WithAttributes(attribute.String("item.id", itemID)))
	defer func() { endSpan(span, err) }()

	if itemID == "" {
		return nil, domain.NewValidationError(op, "item id is required")
	}
	if update.Empty() {
		return nil, domain.NewValidationError(op, "nothing to update")
	}
	if update.MinimumQuantity != nil && *update.MinimumQuantity < 0 {
		return nil, domain.NewValidationError(op, "minimum quantity cannot be negative")
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, domain.NewValidationError(op, "unknown status %q", *update.Status)
	}
	if err := validatePrices(op, update.Cost, update.Price); err != nil {
		return nil, err
	}

	var updated domain.InventoryItem
	err = retryOptimistic(ctx, s.logger, s.opts, op, func() error {
		current, err := s.repo.GetItem(ctx, itemID)
		if err != nil {
			return fmt.Errorf("get item: %w", err)
		}
		if current == nil || current.DeletedAt != nil {
			return &domain.Error{Kind: domain.ErrNotFound, Op: op, ItemID: itemID}
		}
		if update.Status != nil && *update.Status == domain.ItemStatusInactive && current.ReservedQuantity > 0 {
			return domain.NewConflictError(op, itemID, "cannot deactivate with %d units reserved", current.ReservedQuantity)
		}

		updated = *current
		if update.MinimumQuantity != nil {
			updated.MinimumQuantity = *update.MinimumQuantity
		}
		if update.Location != nil {
			updated.Location = *update.Location
		}
		if update.Cost != nil {
			updated.AverageCost = *update.Cost
		}
		if update.Price != nil {
			updated.SalePrice = *update.Price
		}
		if update.Status != nil {
			updated.Status = *update.Status
		}
		updated.Version = current.Version + 1
		updated.UpdatedAt = s.opts.Now().UTC()

		err = s.repo.UpdateItem(ctx, updated, current.Version)
		if errors.Is(err, port.ErrDuplicateItem) {
			return &domain.Error{Kind: domain.ErrDuplicatePart, Op: op, ItemID: itemID, PartID: current.PartID,
				Msg: fmt.Sprintf("an active item already exists at location %q", updated.Location)}
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, itemUpdatedEvent(updated))
	s.logger.Info("inventory item updated", zap.String("item_id", itemID), zap.Int("version", updated.Version))
	return &updated, nil
}

// DeleteItem removes an item without ledger history and soft-deletes one
// with history. It reports whether the item was soft-deleted.
func (s *ItemService) DeleteItem(ctx context.Context, itemID string) (softDeleted bool, err error) {
	const op = "DeleteItem"
	ctx, span := s.tracer.Start(ctx, "ItemService."+op, trace.WithAttributes(attribute.String("item.id", itemID)))
	defer func() { endSpan(span, err) }()

	if itemID == "" {
		return false, domain.NewValidationError(op, "item id is required")
	}

	var deleted domain.InventoryItem
	err = retryOptimistic(ctx, s.logger, s.opts, op, func() error {
		current, err := s.repo.GetItem(ctx, itemID)
		if err != nil {
			return fmt.Errorf("get item: %w", err)
		}
		if current == nil || current.DeletedAt != nil {
			return &domain.Error{Kind: domain.ErrNotFound, Op: op, ItemID: itemID}
		}
		if current.ReservedQuantity > 0 {
			return domain.NewConflictError(op, itemID, "%d units are still reserved", current.ReservedQuantity)
		}

		count, err := s.repo.CountMovements(ctx, itemID)
		if err != nil {
			return fmt.Errorf("count movements: %w", err)
		}
		if count == 0 {
			softDeleted = false
			deleted = *current
			return s.repo.DeleteItem(ctx, itemID, current.Version)
		}

		softDeleted = true
		now := s.opts.Now().UTC()
		deleted = *current
		deleted.Status = domain.ItemStatusInactive
		deleted.DeletedAt = &now
		deleted.UpdatedAt = now
		deleted.Version = current.Version + 1
		return s.repo.UpdateItem(ctx, deleted, current.Version)
	})
	if err != nil {
		return false, err
	}

	s.bus.Publish(ctx, itemUpdatedEvent(deleted))
	s.logger.Info("inventory item deleted", zap.String("item_id", itemID), zap.Bool("soft", softDeleted))
	return softDeleted, nil
}

func (s *ItemService) GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error) {
	if itemID == "" {
		return nil, domain.NewValidationError("GetItem", "item id is required")
	}
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item == nil {
		return nil, &domain.Error{Kind: domain.ErrNotFound, Op: "GetItem", ItemID: itemID}
	}
	return item, nil
}

func (s *ItemService) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.InventoryItem, error) {
	items, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func validatePrices(op string, cost, price *decimal.Decimal) error {
	if cost != nil && cost.IsNegative() {
		return domain.NewValidationError(op, "cost cannot be negative")
	}
	if price != nil && price.IsNegative() {
		return domain.NewValidationError(op, "price cannot be negative")
	}
	return nil
}

func itemUpdatedEvent(item domain.InventoryItem) domain.Event {
	return domain.Event{
		Type:       domain.EventItemUpdated,
		PartID:     item.PartID,
		ItemID:     item.ID,
		Available:  item.AvailableQuantity,
		Reserved:   item.ReservedQuantity,
		Version:    item.Version,
		OccurredAt: item.UpdatedAt,
	}
}
