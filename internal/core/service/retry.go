package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

// retryOptimistic runs fn until it stops losing the version race, up to
// opts.MaxRetries attempts. Only port.ErrOptimisticLock is retried.
func retryOptimistic(ctx context.Context, logger *zap.Logger, opts Options, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if !errors.Is(err, port.ErrOptimisticLock) {
			return err
		}
		if attempt >= opts.MaxRetries {
			logger.Warn("optimistic lock retries exhausted", zap.String("op", op), zap.Int("attempts", attempt))
			return &domain.Error{
				Kind: domain.ErrConcurrencyConflict,
				Op:   op,
				Msg:  fmt.Sprintf("gave up after %d attempts", attempt),
			}
		}
		logger.Debug("optimistic lock conflict, retrying", zap.String("op", op), zap.Int("attempt", attempt))

		delay := opts.RetryBaseDelay*time.Duration(attempt) + rand.N(opts.RetryBaseDelay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}
	}
}
