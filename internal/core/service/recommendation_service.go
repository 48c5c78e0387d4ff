package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

const (
	defaultRecommendationLimit = 10
	maxRecommendationLimit     = 100
	// confidencePrior is the sample size at which confidence reaches 0.5.
	confidencePrior = 5.0
)

// RecommendationService ranks parts by historical consumption of similar
// vehicles or similar service-order items.
type RecommendationService struct {
	repo      port.StockRepository
	catalog   port.PartCatalog
	directory port.ServiceOrderDirectory
	logger    *zap.Logger
	tracer    trace.Tracer
	opts      Options
}

func NewRecommendationService(repo port.StockRepository, catalog port.PartCatalog, directory port.ServiceOrderDirectory, logger *zap.Logger, opts Options) *RecommendationService {
	return &RecommendationService{
		repo:      repo,
		catalog:   catalog,
		directory: directory,
		logger:    logger.Named("recommendations"),
		tracer:    tracer(),
		opts:      opts.withDefaults(),
	}
}

func (s *RecommendationService) GetRecommendations(ctx context.Context, q domain.RecommendationQuery) (recs []domain.InventoryRecommendation, err error) {
	const op = "GetRecommendations"
	ctx, span := s.tracer.Start(ctx, "RecommendationService."+op, trace.WithAttributes(
		attribute.String("vehicle.id", q.VehicleID),
		attribute.String("service_order.id", q.ServiceOrderID),
		attribute.String("pipeline.id", q.PipelineID),
	))
	defer func() { endSpan(span, err) }()

	if q.Limit < 0 {
		return nil, domain.NewValidationError(op, "limit cannot be negative")
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultRecommendationLimit
	}
	limit = min(limit, maxRecommendationLimit)

	pipelineID := q.PipelineID
	if pipelineID == "" {
		pipelineID = DefaultPipeline
	}
	p, ok := pipelines[pipelineID]
	if !ok {
		return nil, domain.NewValidationError(op, "unknown pipeline %q", pipelineID)
	}

	samples, reason, err := s.matchHistory(ctx, q)
	if err != nil {
		return nil, err
	}
	fallback := len(samples) == 0
	if fallback {
		samples, err = s.repo.ListMovements(ctx, domain.MovementFilter{
			Types: []domain.MovementType{domain.MovementConsumption},
			Since: s.opts.Now().Add(-s.opts.ConsumptionWindow),
		})
		if err != nil {
			return nil, fmt.Errorf("list movements: %w", err)
		}
		reason = fmt.Sprintf("fast-moving parts over the last %d days", s.opts.windowDays())
	}

	scores := p.score(samples, s.opts.Now())
	sampleSize := make(map[string]int)
	for _, m := range samples {
		sampleSize[m.PartID]++
	}

	available, err := s.availableByPart(ctx)
	if err != nil {
		return nil, err
	}

	recs = make([]domain.InventoryRecommendation, 0, len(scores))
	for partID, score := range scores {
		n := sampleSize[partID]
		confidence := float64(n) / (float64(n) + confidencePrior)
		if fallback {
			confidence /= 2
		}
		recs = append(recs, domain.InventoryRecommendation{
			PartID:            partID,
			Score:             score,
			Confidence:        confidence,
			SampleSize:        n,
			IsFallback:        fallback,
			PipelineID:        pipelineID,
			Reason:            reason,
			AvailableQuantity: available[partID],
		})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].PartID < recs[j].PartID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	s.attachNames(ctx, recs)

	span.SetAttributes(attribute.Bool("recommendation.fallback", fallback), attribute.Int("recommendation.count", len(recs)))
	return recs, nil
}

// matchHistory gathers consumption movements of vehicles sharing the
// requested vehicle's model and of service-order items described like the
// requested order's items.
func (s *RecommendationService) matchHistory(ctx context.Context, q domain.RecommendationQuery) ([]domain.Movement, string, error) {
	var (
		vehicleIDs []string
		soiIDs     []string
		reasons    []string
	)

	if q.VehicleID != "" {
		vehicleIDs = append(vehicleIDs, q.VehicleID)
		if s.directory != nil {
			vehicle, err := s.directory.Vehicle(ctx, q.VehicleID)
			if err != nil {
				return nil, "", fmt.Errorf("lookup vehicle: %w", err)
			}
			if vehicle != nil && vehicle.Model != "" {
				similar, err := s.directory.VehiclesByModel(ctx, vehicle.Model)
				if err != nil {
					return nil, "", fmt.Errorf("vehicles by model: %w", err)
				}
				for _, v := range similar {
					if v.ID != q.VehicleID {
						vehicleIDs = append(vehicleIDs, v.ID)
					}
				}
				reasons = append(reasons, fmt.Sprintf("consumption on %s vehicles", vehicle.Model))
			} else {
				reasons = append(reasons, "consumption on this vehicle")
			}
		}
	}

	if q.ServiceOrderID != "" && s.directory != nil {
		items, err := s.directory.ServiceOrderItems(ctx, q.ServiceOrderID)
		if err != nil {
			return nil, "", fmt.Errorf("service order items: %w", err)
		}
		seen := make(map[string]bool)
		for _, it := range items {
			if strings.TrimSpace(it.Description) == "" {
				continue
			}
			similar, err := s.directory.ItemsByDescription(ctx, it.Description)
			if err != nil {
				return nil, "", fmt.Errorf("items by description: %w", err)
			}
			for _, sim := range similar {
				if !seen[sim.ID] {
					seen[sim.ID] = true
					soiIDs = append(soiIDs, sim.ID)
				}
			}
		}
		if len(soiIDs) > 0 {
			reasons = append(reasons, "consumption on similar service order items")
		}
	}

	if len(vehicleIDs) == 0 && len(soiIDs) == 0 {
		return nil, "", nil
	}

	byID := make(map[string]domain.Movement)
	collect := func(filter domain.MovementFilter) error {
		filter.Types = []domain.MovementType{domain.MovementConsumption}
		movements, err := s.repo.ListMovements(ctx, filter)
		if err != nil {
			return fmt.Errorf("list movements: %w", err)
		}
		for _, m := range movements {
			byID[m.ID] = m
		}
		return nil
	}
	if len(vehicleIDs) > 0 {
		if err := collect(domain.MovementFilter{VehicleIDs: vehicleIDs}); err != nil {
			return nil, "", err
		}
	}
	if len(soiIDs) > 0 {
		if err := collect(domain.MovementFilter{ServiceOrderItemIDs: soiIDs}); err != nil {
			return nil, "", err
		}
	}

	out := make([]domain.Movement, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, strings.Join(reasons, "; "), nil
}

func (s *RecommendationService) availableByPart(ctx context.Context) (map[string]int, error) {
	items, err := s.repo.ListItems(ctx, domain.ItemFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	out := make(map[string]int)
	for _, it := range items {
		out[it.PartID] += it.AvailableQuantity
	}
	return out, nil
}

func (s *RecommendationService) attachNames(ctx context.Context, recs []domain.InventoryRecommendation) {
	if s.catalog == nil {
		return
	}
	for i := range recs {
		part, err := s.catalog.GetPart(ctx, recs[i].PartID)
		if err != nil {
			s.logger.Warn("catalog lookup failed", zap.String("part_id", recs[i].PartID), zap.Error(err))
			continue
		}
		if part != nil {
			recs[i].PartName = part.Name
		}
	}
}

func (s *RecommendationService) ListPipelines() []PipelineInfo {
	return Pipelines()
}
