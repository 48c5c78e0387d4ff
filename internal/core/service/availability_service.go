package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

// minDailyConsumption is the rate below which coverage is treated as unbounded.
const minDailyConsumption = 1e-6

// AvailabilityService derives availability and coverage from the item store
// and ledger. Part results are cached and dropped whenever the part changes.
type AvailabilityService struct {
	repo      port.StockRepository
	directory port.ServiceOrderDirectory
	cache     port.AvailabilityCache
	logger    *zap.Logger
	tracer    trace.Tracer
	opts      Options
}

func NewAvailabilityService(repo port.StockRepository, directory port.ServiceOrderDirectory, cache port.AvailabilityCache, bus *EventBus, logger *zap.Logger, opts Options) *AvailabilityService {
	s := &AvailabilityService{
		repo:      repo,
		directory: directory,
		cache:     cache,
		logger:    logger.Named("availability"),
		tracer:    tracer(),
		opts:      opts.withDefaults(),
	}
	if bus != nil {
		bus.Subscribe(domain.EventItemQuantityChanged, s.invalidate)
		bus.Subscribe(domain.EventItemUpdated, s.invalidate)
	}
	return s
}

func (s *AvailabilityService) invalidate(ctx context.Context, e domain.Event) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, e.PartID); err != nil {
		s.logger.Warn("failed to invalidate availability", zap.String("part_id", e.PartID), zap.Error(err))
	}
}

func (s *AvailabilityService) GetPartAvailability(ctx context.Context, partID string) (av *domain.InventoryAvailability, err error) {
	const op = "GetPartAvailability"
	ctx, span := s.tracer.Start(ctx, "AvailabilityService."+op, trace.WithAttributes(attribute.String("part.id", partID)))
	defer func() { endSpan(span, err) }()

	if partID == "" {
		return nil, domain.NewValidationError(op, "part id is required")
	}

	// generation is only trusted after a successful cache read
	var (
		generation int64
		cacheable  bool
	)
	if s.cache != nil {
		cached, gen, err := s.cache.GetAvailability(ctx, partID)
		switch {
		case err != nil:
			s.logger.Warn("availability cache read failed", zap.String("part_id", partID), zap.Error(err))
		case cached != nil:
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		default:
			generation, cacheable = gen, true
		}
	}

	snap, err := s.repo.Snapshot(ctx, partID, &domain.MovementFilter{PartID: partID})
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	computed, ok := computeAvailability(partID, snap, s.opts)
	if !ok {
		return nil, &domain.Error{Kind: domain.ErrNotFound, Op: op, PartID: partID, Msg: "no active inventory item"}
	}

	if cacheable {
		if err := s.cache.SetAvailability(ctx, *computed, generation); err != nil {
			s.logger.Warn("availability cache write failed", zap.String("part_id", partID), zap.Error(err))
		}
	}
	return computed, nil
}

func (s *AvailabilityService) GetVehicleAvailability(ctx context.Context, vehicleID string) (*domain.AggregateAvailability, error) {
	if vehicleID == "" {
		return nil, domain.NewValidationError("GetVehicleAvailability", "vehicle id is required")
	}
	return s.aggregate(ctx, vehicleID, []string{vehicleID})
}

func (s *AvailabilityService) GetClientAvailability(ctx context.Context, clientID string) (*domain.AggregateAvailability, error) {
	const op = "GetClientAvailability"
	if clientID == "" {
		return nil, domain.NewValidationError(op, "client id is required")
	}
	if s.directory == nil {
		return nil, domain.NewValidationError(op, "service order directory is not configured")
	}
	vehicles, err := s.directory.ClientVehicles(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client vehicles: %w", err)
	}
	ids := make([]string, 0, len(vehicles))
	for _, v := range vehicles {
		ids = append(ids, v.ID)
	}
	return s.aggregate(ctx, clientID, ids)
}

// aggregate collects part availability for every part the vehicles used.
func (s *AvailabilityService) aggregate(ctx context.Context, subjectID string, vehicleIDs []string) (*domain.AggregateAvailability, error) {
	out := &domain.AggregateAvailability{SubjectID: subjectID, Parts: []domain.InventoryAvailability{}}
	if len(vehicleIDs) == 0 {
		return out, nil
	}
	movements, err := s.repo.ListMovements(ctx, domain.MovementFilter{VehicleIDs: vehicleIDs})
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	seen := make(map[string]bool)
	var partIDs []string
	for _, m := range movements {
		if !seen[m.PartID] {
			seen[m.PartID] = true
			partIDs = append(partIDs, m.PartID)
		}
	}
	sort.Strings(partIDs)

	for _, partID := range partIDs {
		av, err := s.GetPartAvailability(ctx, partID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out.Parts = append(out.Parts, *av)
	}
	return out, nil
}

// computeAvailability builds the read-model from one snapshot. It reports
// false when the part has no active item.
func computeAvailability(partID string, snap *port.Snapshot, opts Options) (*domain.InventoryAvailability, bool) {
	now := opts.Now().UTC()
	av := &domain.InventoryAvailability{
		PartID:     partID,
		ByLocation: []domain.LocationAvailability{},
		WindowDays: opts.windowDays(),
		ComputedAt: now,
	}

	active := 0
	for _, item := range snap.Items {
		if !item.Active() {
			continue
		}
		active++
		av.TotalAvailable += item.AvailableQuantity
		av.Reserved += item.ReservedQuantity
		av.ByLocation = append(av.ByLocation, domain.LocationAvailability{
			ItemID:    item.ID,
			Location:  item.Location,
			Available: item.AvailableQuantity,
			Reserved:  item.ReservedQuantity,
		})
	}
	if active == 0 {
		return nil, false
	}
	sort.Slice(av.ByLocation, func(i, j int) bool { return av.ByLocation[i].Location < av.ByLocation[j].Location })

	av.Pending = pendingQuantity(snap.Movements)

	since := now.Add(-opts.ConsumptionWindow)
	consumed := 0
	for _, m := range snap.Movements {
		if m.Type == domain.MovementConsumption && !m.OccurredAt.Before(since) {
			consumed += m.Quantity
		}
	}
	av.AverageDailyConsumption = float64(consumed) / float64(av.WindowDays)
	if av.AverageDailyConsumption > minDailyConsumption {
		coverage := float64(av.TotalAvailable) / av.AverageDailyConsumption
		stockout := now.Add(time.Duration(coverage * float64(24*time.Hour)))
		av.CoverageDays = &coverage
		av.ProjectedStockoutDate = &stockout
	}
	return av, true
}

// pendingQuantity sums the open balance of every reservation in movements.
func pendingQuantity(movements []domain.Movement) int {
	type key struct{ soi, part string }
	open := make(map[key]int)
	for _, m := range movements {
		if m.ServiceOrderItemID == "" {
			continue
		}
		k := key{m.ServiceOrderItemID, m.PartID}
		switch m.Type {
		case domain.MovementReservation:
			open[k] += m.Quantity
		case domain.MovementConsumption, domain.MovementCancellation:
			open[k] -= m.Quantity
		}
	}
	pending := 0
	for _, q := range open {
		if q > 0 {
			pending += q
		}
	}
	return pending
}
