package service

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

// CriticalReportService flags items below their restock threshold. The
// report is recomputed on every call.
type CriticalReportService struct {
	repo    port.StockRepository
	catalog port.PartCatalog
	logger  *zap.Logger
	tracer  trace.Tracer
	opts    Options
}

func NewCriticalReportService(repo port.StockRepository, catalog port.PartCatalog, logger *zap.Logger, opts Options) *CriticalReportService {
	return &CriticalReportService{
		repo:    repo,
		catalog: catalog,
		logger:  logger.Named("critical"),
		tracer:  tracer(),
		opts:    opts.withDefaults(),
	}
}

func (s *CriticalReportService) GetCriticalPartsReport(ctx context.Context) (report *domain.CriticalPartReport, err error) {
	ctx, span := s.tracer.Start(ctx, "CriticalReportService.GetCriticalPartsReport")
	defer func() { endSpan(span, err) }()

	snap, err := s.repo.Snapshot(ctx, "", &domain.MovementFilter{
		Types: []domain.MovementType{domain.MovementConsumption},
	})
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	consumed := make(map[string]int)
	for _, m := range snap.Movements {
		consumed[m.ItemID] += m.Quantity
	}

	report = &domain.CriticalPartReport{GeneratedAt: s.opts.Now().UTC(), Parts: []domain.CriticalPart{}}
	parts := make(map[string]*domain.Part)
	for _, item := range snap.Items {
		if !item.Active() {
			continue
		}
		entry := domain.CriticalPart{
			ItemID:            item.ID,
			PartID:            item.PartID,
			Location:          item.Location,
			Severity:          domain.ClassifySeverity(item.AvailableQuantity, item.MinimumQuantity, s.opts.WarningMultiplier),
			AvailableQuantity: item.AvailableQuantity,
			ReservedQuantity:  item.ReservedQuantity,
			TotalQuantity:     item.TotalQuantity(),
			MinimumQuantity:   item.MinimumQuantity,
			Shortfall:         max(0, item.MinimumQuantity-item.AvailableQuantity),
			TotalConsumed:     consumed[item.ID],
		}
		if part := s.lookupPart(ctx, parts, item.PartID); part != nil {
			entry.PartName = part.Name
			entry.SKU = part.SKU
		}

		switch entry.Severity {
		case domain.SeverityCritical:
			report.Critical++
		case domain.SeverityWarning:
			report.Warning++
		default:
			report.Stable++
		}
		report.Parts = append(report.Parts, entry)
	}

	sort.SliceStable(report.Parts, func(i, j int) bool {
		a, b := report.Parts[i], report.Parts[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Shortfall != b.Shortfall {
			return a.Shortfall > b.Shortfall
		}
		return a.PartID < b.PartID
	})

	span.SetAttributes(attribute.Int("report.critical", report.Critical), attribute.Int("report.warning", report.Warning))
	return report, nil
}

// lookupPart enriches report rows with catalog names. Catalog failures only
// cost the enrichment.
func (s *CriticalReportService) lookupPart(ctx context.Context, seen map[string]*domain.Part, partID string) *domain.Part {
	if s.catalog == nil {
		return nil
	}
	if part, ok := seen[partID]; ok {
		return part
	}
	part, err := s.catalog.GetPart(ctx, partID)
	if err != nil {
		s.logger.Warn("catalog lookup failed", zap.String("part_id", partID), zap.Error(err))
	}
	seen[partID] = part
	return part
}
