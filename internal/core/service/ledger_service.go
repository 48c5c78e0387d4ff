package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

type EntryRequest struct {
	PartID        string
	Location      string
	Quantity      int
	UnitCost      *decimal.Decimal
	UnitPrice     *decimal.Decimal
	ReferenceCode string
	Notes         string
	PerformedBy   string
}

type ReserveRequest struct {
	ServiceOrderItemID string
	PartID             string
	Location           string
	Quantity           int
	VehicleID          string
	Notes              string
	PerformedBy        string
}

// ReservationChange consumes, cancels or returns stock of a reservation.
// PartID may be empty when the service-order item holds a single part.
type ReservationChange struct {
	ServiceOrderItemID string
	PartID             string
	Quantity           int
	Notes              string
	PerformedBy        string
}

type MovementResult struct {
	Item     domain.InventoryItem
	Movement domain.Movement
}

// LedgerService owns every quantity-changing operation. Each one reads a
// consistent snapshot, validates, and commits item + movement under the
// item's version, retrying lost races.
type LedgerService struct {
	repo      port.StockRepository
	catalog   port.PartCatalog
	directory port.ServiceOrderDirectory
	bus       *EventBus
	logger    *zap.Logger
	tracer    trace.Tracer
	opts      Options
}

func NewLedgerService(repo port.StockRepository, catalog port.PartCatalog, directory port.ServiceOrderDirectory, bus *EventBus, logger *zap.Logger, opts Options) *LedgerService {
	return &LedgerService{
		repo:      repo,
		catalog:   catalog,
		directory: directory,
		bus:       bus,
		logger:    logger.Named("ledger"),
		tracer:    tracer(),
		opts:      opts.withDefaults(),
	}
}

func (s *LedgerService) RegisterEntry(ctx context.Context, req EntryRequest) (res *MovementResult, err error) {
	const op = "RegisterEntry"
	ctx, span := s.tracer.Start(ctx, "LedgerService."+op, trace.WithAttributes(
		attribute.String("part.id", req.PartID),
		attribute.Int("movement.quantity", req.Quantity),
	))
	defer func() { endSpan(span, err) }()

	if req.PartID == "" {
		return nil, domain.NewValidationError(op, "part id is required")
	}
	if req.Quantity <= 0 {
		return nil, domain.NewValidationError(op, "quantity must be positive, got %d", req.Quantity)
	}
	if req.UnitCost != nil && req.UnitCost.IsNegative() {
		return nil, domain.NewValidationError(op, "unit cost cannot be negative")
	}
	if req.UnitPrice != nil && req.UnitPrice.IsNegative() {
		return nil, domain.NewValidationError(op, "unit price cannot be negative")
	}
	if _, err := requireActivePart(ctx, s.catalog, op, req.PartID); err != nil {
		return nil, err
	}

	err = retryOptimistic(ctx, s.logger, s.opts, op, func() error {
		snap, err := s.repo.Snapshot(ctx, req.PartID, nil)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		item, err := selectItem(op, req.PartID, req.Location, snap.Items)
		if err != nil {
			return err
		}

		updated := item
		updated.AvailableQuantity += req.Quantity
		if req.UnitCost != nil {
			updated.AverageCost = weightedAverageCost(item, req.Quantity, *req.UnitCost)
		}
		if req.UnitPrice != nil {
			updated.SalePrice = *req.UnitPrice
		}

		m := s.newMovement(domain.MovementEntry, updated, req.Quantity)
		m.ReferenceCode = req.ReferenceCode
		m.Notes = req.Notes
		m.PerformedBy = req.PerformedBy
		m.UnitCost = pick(req.UnitCost, item.AverageCost)
		m.UnitPrice = pick(req.UnitPrice, item.SalePrice)

		res, err = s.commit(ctx, item, updated, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock entry registered",
		zap.String("part_id", req.PartID),
		zap.String("item_id", res.Item.ID),
		zap.Int("quantity", req.Quantity),
		zap.Int("available", res.Item.AvailableQuantity),
	)
	return res, nil
}

func (s *LedgerService) ReserveStock(ctx context.Context, req ReserveRequest) (res *MovementResult, err error) {
	const op = "ReserveStock"
	ctx, span := s.tracer.Start(ctx, "LedgerService."+op, trace.WithAttributes(
		attribute.String("part.id", req.PartID),
		attribute.String("service_order_item.id", req.ServiceOrderItemID),
		attribute.Int("movement.quantity", req.Quantity),
	))
	defer func() { endSpan(span, err) }()

	if req.ServiceOrderItemID == "" {
		return nil, domain.NewValidationError(op, "service order item id is required")
	}
	if req.PartID == "" {
		return nil, domain.NewValidationError(op, "part id is required")
	}
	if req.Quantity <= 0 {
		return nil, domain.NewValidationError(op, "quantity must be positive, got %d", req.Quantity)
	}

	vehicleID, err := s.resolveVehicle(ctx, req.ServiceOrderItemID, req.VehicleID)
	if err != nil {
		return nil, err
	}

	err = retryOptimistic(ctx, s.logger, s.opts, op, func() error {
		snap, err := s.repo.Snapshot(ctx, req.PartID, &domain.MovementFilter{
			PartID:              req.PartID,
			ServiceOrderItemIDs: []string{req.ServiceOrderItemID},
		})
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}

		r := domain.FoldReservation(req.ServiceOrderItemID, req.PartID, snap.Movements)
		// Held stock keeps the reservation on its item. A closed reservation
		// can be taken again from any active item.
		var item domain.InventoryItem
		if r.Open() > 0 {
			bound, ok := findItem(snap.Items, r.ItemID)
			if !ok {
				return domain.NewNotFoundError(op, "item %s of reservation", r.ItemID)
			}
			if req.Location != "" && bound.Location != req.Location {
				return domain.NewConflictError(op, bound.ID,
					"service order item %s already holds part %s at location %q", req.ServiceOrderItemID, req.PartID, bound.Location)
			}
			if !bound.Active() {
				return domain.NewConflictError(op, bound.ID, "item is inactive")
			}
			item = bound
		} else {
			item, err = selectItem(op, req.PartID, req.Location, snap.Items)
			if err != nil {
				return err
			}
		}

		if item.AvailableQuantity < req.Quantity {
			return domain.NewQuantityError(domain.ErrInsufficientStock, op, item, req.Quantity, item.AvailableQuantity)
		}

		updated := item
		updated.AvailableQuantity -= req.Quantity
		updated.ReservedQuantity += req.Quantity

		m := s.newMovement(domain.MovementReservation, updated, req.Quantity)
		m.ServiceOrderItemID = req.ServiceOrderItemID
		m.VehicleID = firstNonEmpty(vehicleID, r.VehicleID)
		m.Notes = req.Notes
		m.PerformedBy = req.PerformedBy

		res, err = s.commit(ctx, item, updated, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock reserved",
		zap.String("part_id", req.PartID),
		zap.String("item_id", res.Item.ID),
		zap.String("service_order_item_id", req.ServiceOrderItemID),
		zap.Int("quantity", req.Quantity),
		zap.Int("available", res.Item.AvailableQuantity),
		zap.Int("reserved", res.Item.ReservedQuantity),
	)
	return res, nil
}

func (s *LedgerService) ConsumeStock(ctx context.Context, req ReservationChange) (*MovementResult, error) {
	return s.changeReservation(ctx, "ConsumeStock", domain.MovementConsumption, req)
}

func (s *LedgerService) CancelReservation(ctx context.Context, req ReservationChange) (*MovementResult, error) {
	return s.changeReservation(ctx, "CancelReservation", domain.MovementCancellation, req)
}

func (s *LedgerService) RegisterReturn(ctx context.Context, req ReservationChange) (*MovementResult, error) {
	return s.changeReservation(ctx, "RegisterReturn", domain.MovementReturn, req)
}

// changeReservation drives the three transitions that act on an existing reservation.
func (s *LedgerService) changeReservation(ctx context.Context, op string, kind domain.MovementType, req ReservationChange) (res *MovementResult, err error) {
	ctx, span := s.tracer.Start(ctx, "LedgerService."+op, trace.WithAttributes(
		attribute.String("service_order_item.id", req.ServiceOrderItemID),
		attribute.Int("movement.quantity", req.Quantity),
	))
	defer func() { endSpan(span, err) }()

	if req.ServiceOrderItemID == "" {
		return nil, domain.NewValidationError(op, "service order item id is required")
	}
	if req.Quantity <= 0 {
		return nil, domain.NewValidationError(op, "quantity must be positive, got %d", req.Quantity)
	}

	partID := req.PartID
	if partID == "" {
		if partID, err = s.reservedPart(ctx, op, req.ServiceOrderItemID); err != nil {
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("part.id", partID))

	err = retryOptimistic(ctx, s.logger, s.opts, op, func() error {
		snap, err := s.repo.Snapshot(ctx, partID, &domain.MovementFilter{
			PartID:              partID,
			ServiceOrderItemIDs: []string{req.ServiceOrderItemID},
		})
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}

		r := domain.FoldReservation(req.ServiceOrderItemID, partID, snap.Movements)
		if r.State() == domain.ReservationUnreserved {
			return domain.NewNotFoundError(op, "no reservation of part %s for service order item %s", partID, req.ServiceOrderItemID)
		}
		item, ok := findItem(snap.Items, r.ItemID)
		if !ok {
			return domain.NewNotFoundError(op, "item %s of reservation", r.ItemID)
		}
		if !item.Active() {
			if kind != domain.MovementReturn {
				return domain.NewConflictError(op, item.ID, "item is inactive")
			}
			// returned units go back to the active shelf at the same location
			location := item.Location
			if item, ok = activeAt(snap.Items, partID, location); !ok {
				return domain.NewConflictError(op, r.ItemID, "item is inactive and no active item stocks part %s at location %q", partID, location)
			}
		}

		updated := item
		switch kind {
		case domain.MovementConsumption:
			if req.Quantity > r.Open() {
				return domain.NewQuantityError(domain.ErrOverConsumption, op, item, req.Quantity, r.Open())
			}
			updated.ReservedQuantity -= req.Quantity
		case domain.MovementCancellation:
			if req.Quantity > r.Open() {
				return domain.NewQuantityError(domain.ErrOverCancellation, op, item, req.Quantity, r.Open())
			}
			updated.ReservedQuantity -= req.Quantity
			updated.AvailableQuantity += req.Quantity
		case domain.MovementReturn:
			if req.Quantity > r.Returnable() {
				return domain.NewQuantityError(domain.ErrOverReturn, op, item, req.Quantity, r.Returnable())
			}
			updated.AvailableQuantity += req.Quantity
		}
		if updated.ReservedQuantity < 0 {
			return domain.NewConflictError(op, item.ID, "item reserved quantity %d is below the reservation balance", item.ReservedQuantity)
		}

		m := s.newMovement(kind, updated, req.Quantity)
		m.ServiceOrderItemID = req.ServiceOrderItemID
		m.VehicleID = r.VehicleID
		m.Notes = req.Notes
		m.PerformedBy = req.PerformedBy

		res, err = s.commit(ctx, item, updated, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation changed",
		zap.String("op", op),
		zap.String("part_id", partID),
		zap.String("item_id", res.Item.ID),
		zap.String("service_order_item_id", req.ServiceOrderItemID),
		zap.Int("quantity", req.Quantity),
		zap.Int("available", res.Item.AvailableQuantity),
		zap.Int("reserved", res.Item.ReservedQuantity),
	)
	return res, nil
}

// GetReservation folds the ledger of one service-order item. With an empty
// partID the item must hold exactly one part.
func (s *LedgerService) GetReservation(ctx context.Context, serviceOrderItemID, partID string) (*domain.Reservation, error) {
	const op = "GetReservation"
	if serviceOrderItemID == "" {
		return nil, domain.NewValidationError(op, "service order item id is required")
	}
	if partID == "" {
		var err error
		if partID, err = s.reservedPart(ctx, op, serviceOrderItemID); err != nil {
			return nil, err
		}
	}
	movements, err := s.repo.ListMovements(ctx, domain.MovementFilter{
		PartID:              partID,
		ServiceOrderItemIDs: []string{serviceOrderItemID},
	})
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	r := domain.FoldReservation(serviceOrderItemID, partID, movements)
	if r.State() == domain.ReservationUnreserved {
		return nil, domain.NewNotFoundError(op, "no reservation of part %s for service order item %s", partID, serviceOrderItemID)
	}
	return &r, nil
}

func (s *LedgerService) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, error) {
	for _, t := range filter.Types {
		if !t.Valid() {
			return nil, domain.NewValidationError("ListMovements", "unknown movement type %q", t)
		}
	}
	if filter.Limit < 0 {
		return nil, domain.NewValidationError("ListMovements", "limit cannot be negative")
	}
	movements, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}

// Reconcile replays every movement of a part and compares the result with
// the item store.
func (s *LedgerService) Reconcile(ctx context.Context, partID string) (*domain.ReconciliationReport, error) {
	const op = "Reconcile"
	if partID == "" {
		return nil, domain.NewValidationError(op, "part id is required")
	}
	snap, err := s.repo.Snapshot(ctx, partID, &domain.MovementFilter{PartID: partID})
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(snap.Items) == 0 {
		return nil, domain.NewNotFoundError(op, "no inventory item for part %s", partID)
	}

	report := &domain.ReconciliationReport{PartID: partID, Items: len(snap.Items), Movements: len(snap.Movements)}
	report.ExpectedAvailable, report.ExpectedReserved = domain.Replay(snap.Movements)
	for _, item := range snap.Items {
		report.ActualAvailable += item.AvailableQuantity
		report.ActualReserved += item.ReservedQuantity
	}
	if !report.Consistent() {
		s.logger.Error("ledger and item store disagree",
			zap.String("part_id", partID),
			zap.Int("expected_available", report.ExpectedAvailable),
			zap.Int("actual_available", report.ActualAvailable),
			zap.Int("expected_reserved", report.ExpectedReserved),
			zap.Int("actual_reserved", report.ActualReserved),
		)
	}
	return report, nil
}

func (s *LedgerService) commit(ctx context.Context, item, updated domain.InventoryItem, m domain.Movement) (*MovementResult, error) {
	updated.Version = item.Version + 1
	updated.UpdatedAt = m.OccurredAt
	m.BalanceAfter = updated.AvailableQuantity
	m.ReservedAfter = updated.ReservedQuantity

	if err := s.repo.ApplyMovement(ctx, updated, item.Version, m); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, domain.EventsFor(updated, m)...)
	return &MovementResult{Item: updated, Movement: m}, nil
}

func (s *LedgerService) newMovement(kind domain.MovementType, item domain.InventoryItem, quantity int) domain.Movement {
	return domain.Movement{
		ID:         uuid.NewString(),
		Type:       kind,
		Quantity:   quantity,
		OccurredAt: s.opts.Now().UTC(),
		PartID:     item.PartID,
		ItemID:     item.ID,
		UnitCost:   item.AverageCost,
		UnitPrice:  item.SalePrice,
	}
}

// reservedPart finds the only part reserved under a service-order item.
func (s *LedgerService) reservedPart(ctx context.Context, op, serviceOrderItemID string) (string, error) {
	movements, err := s.repo.ListMovements(ctx, domain.MovementFilter{
		ServiceOrderItemIDs: []string{serviceOrderItemID},
		Types:               []domain.MovementType{domain.MovementReservation},
	})
	if err != nil {
		return "", fmt.Errorf("list movements: %w", err)
	}
	parts := domain.FoldReservations(serviceOrderItemID, movements)
	switch len(parts) {
	case 0:
		return "", domain.NewNotFoundError(op, "no reservation for service order item %s", serviceOrderItemID)
	case 1:
		return parts[0].PartID, nil
	default:
		return "", domain.NewValidationError(op, "service order item %s holds %d parts, part id is required", serviceOrderItemID, len(parts))
	}
}

func (s *LedgerService) resolveVehicle(ctx context.Context, serviceOrderItemID, vehicleID string) (string, error) {
	if vehicleID != "" || s.directory == nil {
		return vehicleID, nil
	}
	item, err := s.directory.ServiceOrderItem(ctx, serviceOrderItemID)
	if err != nil {
		return "", fmt.Errorf("resolve service order item: %w", err)
	}
	if item == nil {
		return "", nil
	}
	return item.VehicleID, nil
}

func requireActivePart(ctx context.Context, catalog port.PartCatalog, op, partID string) (*domain.Part, error) {
	part, err := catalog.GetPart(ctx, partID)
	if err != nil {
		return nil, fmt.Errorf("lookup part: %w", err)
	}
	if part == nil {
		return nil, &domain.Error{Kind: domain.ErrNotFound, Op: op, PartID: partID, Msg: "part not in catalog"}
	}
	if !part.Active {
		return nil, &domain.Error{Kind: domain.ErrValidation, Op: op, PartID: partID, Msg: "part is inactive"}
	}
	return part, nil
}

// selectItem resolves the target item of a part among the snapshot items.
func selectItem(op, partID, location string, items []domain.InventoryItem) (domain.InventoryItem, error) {
	var candidates []domain.InventoryItem
	for _, it := range items {
		if it.PartID != partID || !it.Active() {
			continue
		}
		if location != "" && it.Location != location {
			continue
		}
		candidates = append(candidates, it)
	}
	switch len(candidates) {
	case 0:
		if location != "" {
			return domain.InventoryItem{}, &domain.Error{Kind: domain.ErrNotFound, Op: op, PartID: partID, Msg: fmt.Sprintf("no active item at location %q", location)}
		}
		return domain.InventoryItem{}, &domain.Error{Kind: domain.ErrNotFound, Op: op, PartID: partID, Msg: "no active inventory item"}
	case 1:
		return candidates[0], nil
	default:
		return domain.InventoryItem{}, &domain.Error{Kind: domain.ErrValidation, Op: op, PartID: partID,
			Msg: fmt.Sprintf("part is stocked at %d locations, location is required", len(candidates))}
	}
}

func activeAt(items []domain.InventoryItem, partID, location string) (domain.InventoryItem, bool) {
	for _, it := range items {
		if it.PartID == partID && it.Location == location && it.Active() {
			return it, true
		}
	}
	return domain.InventoryItem{}, false
}

func findItem(items []domain.InventoryItem, itemID string) (domain.InventoryItem, bool) {
	for _, it := range items {
		if it.ID == itemID {
			return it, true
		}
	}
	return domain.InventoryItem{}, false
}

// weightedAverageCost blends the incoming unit cost into the item's average
// over the units on hand.
func weightedAverageCost(item domain.InventoryItem, quantity int, unitCost decimal.Decimal) decimal.Decimal {
	onHand := decimal.NewFromInt(int64(item.TotalQuantity()))
	if onHand.IsZero() {
		return unitCost
	}
	incoming := decimal.NewFromInt(int64(quantity))
	total := onHand.Mul(item.AverageCost).Add(incoming.Mul(unitCost))
	return total.Div(onHand.Add(incoming)).Round(4)
}

func pick(v *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if v != nil {
		return *v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
