// Package worker hosts the background jobs of the storefront.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-storefront/internal/obs"
)

// TaskCartSweep is the asynq task type for the expired-cart sweep.
const TaskCartSweep = "cart:sweep"

type expiredCartStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper removes carts whose TTL ran out.
type Sweeper struct {
	Carts  expiredCartStore
	Logger *zerolog.Logger
	Now    func() time.Time
}

// NewSweepTask builds the periodic sweep task.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskCartSweep, nil)
}

// Handle processes one sweep task.
func (s Sweeper) Handle(ctx context.Context, _ *asynq.Task) error {
	if s.Carts == nil {
		return errors.New("worker: cart store not configured")
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	removed, err := s.Carts.DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("sweep expired carts: %w", err)
	}
	if obs.CartSweepTotal != nil && removed > 0 {
		obs.CartSweepTotal.Add(float64(removed))
	}
	if s.Logger != nil && removed > 0 {
		s.Logger.Info().Int64("removed", removed).Msg("expired carts swept")
	}
	return nil
}
