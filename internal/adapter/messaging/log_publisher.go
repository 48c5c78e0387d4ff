package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	for _, e := range events {
		fields := []zap.Field{
			zap.String("type", string(e.Type)),
			zap.String("part_id", e.PartID),
			zap.String("item_id", e.ItemID),
			zap.Int("available", e.Available),
			zap.Int("reserved", e.Reserved),
			zap.Int("version", e.Version),
		}
		if e.Movement != nil {
			fields = append(fields,
				zap.String("movement_id", e.Movement.ID),
				zap.String("movement_type", string(e.Movement.Type)),
				zap.Int("quantity", e.Movement.Quantity),
			)
		}
		p.logger.Info("domain event", fields...)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
