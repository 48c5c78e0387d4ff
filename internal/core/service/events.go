package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

type EventHandler func(ctx context.Context, event domain.Event)

// EventBus fans committed events out to in-process read-models and, when
// configured, to an external publisher.
type EventBus struct {
	mu        sync.RWMutex
	handlers  map[domain.EventType][]EventHandler
	publisher port.EventPublisher
	logger    *zap.Logger
}

func NewEventBus(logger *zap.Logger, publisher port.EventPublisher) *EventBus {
	return &EventBus{
		handlers:  make(map[domain.EventType][]EventHandler),
		publisher: publisher,
		logger:    logger,
	}
}

func (b *EventBus) Subscribe(eventType domain.EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish never fails the caller: the mutation has already committed, so
// publisher errors are logged.
func (b *EventBus) Publish(ctx context.Context, events ...domain.Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	for _, e := range events {
		for _, h := range b.handlers[e.Type] {
			h(ctx, e)
		}
	}
	b.mu.RUnlock()

	if b.publisher == nil {
		return
	}
	if err := b.publisher.Publish(ctx, events...); err != nil {
		b.logger.Error("failed to publish events", zap.Int("count", len(events)), zap.Error(err))
	}
}
