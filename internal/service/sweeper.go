package service

import (
	"context"
	"time"

	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/repo"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
)

const defaultSweepBatch = 200

// OrphanSweeper fails pending orders whose payment session was never
// attached. Checkout writes the order before talking to the processor, and a
// failure in between leaves such an order behind.
type OrphanSweeper struct {
	Repo *repo.GormRepo

	After     time.Duration
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

func (s *OrphanSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				logging.FromContext(ctx).Error("orphan_sweep_error", "error", err)
			}
		}
	}
}

// SweepOnce returns how many orders it marked failed.
func (s *OrphanSweeper) SweepOnce(ctx context.Context) (int, error) {
	l := logging.FromContext(ctx).With("job", "orphan_sweep")

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	batch := s.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}

	orphans, err := s.Repo.FindOrphans(ctx, now.Add(-s.After).UTC(), batch)
	if err != nil {
		return 0, err
	}

	failed := 0
	for i := range orphans {
		_, changed, err := s.Repo.TransitionOrder(ctx, orphans[i].ID, func(o *models.Order) (bool, error) {
			// re-checked under the version guard: checkout may have attached
			// the session since the scan
			if o.Status != models.StatusPending || o.HasSession() {
				return false, nil
			}
			o.Status = models.StatusFailed
			return true, nil
		})
		if err != nil {
			l.Error("orphan_fail_error", "order_id", orphans[i].ID, "error", err)
			continue
		}
		if changed {
			failed++
			l.Info("orphan_order_failed", "order_id", orphans[i].ID, "created_at", orphans[i].CreatedAt)
		}
	}
	return failed, nil
}
