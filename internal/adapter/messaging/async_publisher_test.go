package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	block  chan struct{}
	closed bool
}

func (r *recordingPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return nil
}

func TestAsyncPublisher_FlushesOnClose(t *testing.T) {
	next := &recordingPublisher{}
	p := NewAsyncPublisher(next, 4, 100, zaptest.NewLogger(t))

	for i := 0; i < 25; i++ {
		if err := p.Publish(context.Background(), sampleEvents()...); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(next.events) != 50 {
		t.Errorf("expected 50 events delivered, got %d", len(next.events))
	}
	if !next.closed {
		t.Error("expected downstream publisher to be closed")
	}
}

func TestAsyncPublisher_QueueFull(t *testing.T) {
	next := &recordingPublisher{block: make(chan struct{})}
	p := NewAsyncPublisher(next, 1, 1, zaptest.NewLogger(t))

	// one batch held by the worker, one in the queue, the rest rejected
	var rejected int
	for i := 0; i < 5; i++ {
		if err := p.Publish(context.Background(), sampleEvents()...); errors.Is(err, ErrQueueFull) {
			rejected++
		}
	}
	close(next.block)
	p.Close()

	if rejected == 0 {
		t.Error("expected some batches to be rejected")
	}
	if got := len(next.events) / 2; got+rejected != 5 {
		t.Errorf("delivered %d + rejected %d batches, want 5", got, rejected)
	}
}
