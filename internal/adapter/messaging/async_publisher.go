package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

var ErrQueueFull = errors.New("event queue full")

const publishTimeout = 5 * time.Second

// AsyncPublisher moves broker writes off the request path. Events are
// queued and drained by a fixed pool of workers; Close flushes the queue.
type AsyncPublisher struct {
	next   port.EventPublisher
	queue  chan []domain.Event
	logger *zap.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

func NewAsyncPublisher(next port.EventPublisher, workers, queueSize int, logger *zap.Logger) *AsyncPublisher {
	p := &AsyncPublisher{
		next:   next,
		queue:  make(chan []domain.Event, queueSize),
		logger: logger.Named("async"),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.workerLoop(id)
		}(i)
	}
	return p
}

// Publish enqueues without blocking. A full queue drops the batch.
func (p *AsyncPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	select {
	case p.queue <- events:
		return nil
	default:
		p.logger.Warn("dropping events, queue full", zap.Int("count", len(events)))
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) workerLoop(id int) {
	for batch := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.next.Publish(ctx, batch...); err != nil {
			p.logger.Error("failed to publish events", zap.Int("worker", id), zap.Int("count", len(batch)), zap.Error(err))
		}
		cancel()
	}
}

func (p *AsyncPublisher) Close() error {
	p.once.Do(func() { close(p.queue) })
	p.wg.Wait()
	return p.next.Close()
}
