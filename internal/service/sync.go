package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/payment"
	"github.com/Skotchmaster/shop_checkout/internal/repo"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
)

const defaultSyncBatch = 100

type SyncReport struct {
	Scanned int `json:"scanned"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Raced   int `json:"raced"`
}

// CouponSyncer mirrors local promo codes that have no external coupon yet.
type CouponSyncer struct {
	Repo    *repo.GormRepo
	Gateway payment.Gateway

	Currency  string
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

// Run syncs once per Interval until ctx is cancelled. Failed codes stay
// unsynced and are picked up again on the next tick.
func (s *CouponSyncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncOnce(ctx); err != nil {
				logging.FromContext(ctx).Error("coupon_sync_error", "error", err)
			}
		}
	}
}

func (s *CouponSyncer) SyncOnce(ctx context.Context) (SyncReport, error) {
	l := logging.FromContext(ctx).With("job", "coupon_sync")
	var rep SyncReport

	batch := s.BatchSize
	if batch <= 0 {
		batch = defaultSyncBatch
	}
	pending, err := s.Repo.ListUnsyncedPromoCodes(ctx, s.now(), batch)
	if err != nil {
		return rep, fmt.Errorf("list unsynced promo codes: %w", err)
	}

	for i := range pending {
		rep.Scanned++
		raced, err := s.SyncPromo(ctx, &pending[i])
		switch {
		case err != nil:
			rep.Failed++
			l.Error("coupon_sync_failed", "promo_code", pending[i].Code, "error", err)
		case raced:
			rep.Raced++
		default:
			rep.Synced++
			l.Info("coupon_synced", "promo_code", pending[i].Code, "coupon_id", *pending[i].ExternalID)
		}
	}

	if rep.Scanned > 0 {
		l.Info("coupon_sync_done", "scanned", rep.Scanned, "synced", rep.Synced, "failed", rep.Failed, "raced", rep.Raced)
	}
	return rep, nil
}

// SyncPromo creates the external coupon of p and stores its id. When another
// writer stored an id first, the coupon just created is deleted again and
// raced is true.
func (s *CouponSyncer) SyncPromo(ctx context.Context, p *models.PromoCode) (raced bool, err error) {
	c, err := s.Gateway.CreateCoupon(ctx, couponSpec(p, s.Currency))
	if err != nil {
		return false, fmt.Errorf("%w: create coupon: %v", ErrExternal, err)
	}

	ok, err := s.Repo.SetExternalID(ctx, p.ID, c.ID)
	if err != nil {
		return false, fmt.Errorf("store coupon id: %w", err)
	}
	if ok {
		p.ExternalID = &c.ID
		return false, nil
	}

	current, err := s.Repo.GetPromoCode(ctx, p.ID)
	if err == nil && current.ExternalID != nil && *current.ExternalID == c.ID {
		// the coupon.created webhook adopted our coupon already
		p.ExternalID = current.ExternalID
		return false, nil
	}

	if derr := s.Gateway.DeleteCoupon(ctx, c.ID); derr != nil {
		return true, fmt.Errorf("%w: delete duplicate coupon %s: %v", ErrExternal, c.ID, derr)
	}
	return true, nil
}

func couponSpec(p *models.PromoCode, currency string) payment.CouponSpec {
	spec := payment.CouponSpec{
		Name:     p.Code,
		Currency: currency,
		RedeemBy: p.ExpiryDate,
		Metadata: map[string]string{payment.MetaPromoID: p.ID.String()},
	}
	if p.Type == models.PromoPercentage {
		spec.Duration = payment.DurationForever
		spec.PercentOff = p.Amount.InexactFloat64()
	} else {
		spec.Duration = payment.DurationOnce
		spec.AmountOff = p.Amount.Round(0).IntPart()
	}
	return spec
}

func (s *CouponSyncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
