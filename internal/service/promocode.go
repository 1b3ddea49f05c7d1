package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/payment"
	"github.com/Skotchmaster/shop_checkout/internal/repo"
	"github.com/Skotchmaster/shop_checkout/internal/transport"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
)

var maxPercent = decimal.NewFromInt(100)

type PromoCodeService struct {
	Repo    *repo.GormRepo
	Gateway payment.Gateway
	Syncer  *CouponSyncer
	Now     func() time.Time
}

func (s *PromoCodeService) Create(ctx context.Context, req transport.PromoCodeRequest) (*models.PromoCode, error) {
	p := &models.PromoCode{
		Code:       models.NormalizeCode(req.Code),
		Type:       models.PromoType(req.Type),
		Amount:     req.Amount,
		ExpiryDate: req.ExpiryDate,
	}
	if err := validatePromo(p); err != nil {
		return nil, err
	}

	if _, err := s.Repo.GetPromoCodeByCode(ctx, p.Code); err == nil {
		return nil, fmt.Errorf("%w: promo code %s already exists", ErrConflict, p.Code)
	} else if !repo.IsNotFound(err) {
		return nil, err
	}

	if err := s.Repo.CreatePromoCode(ctx, p); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: promo code %s already exists", ErrConflict, p.Code)
		}
		return nil, err
	}
	return p, nil
}

func (s *PromoCodeService) List(ctx context.Context) ([]models.PromoCode, error) {
	return s.Repo.ListPromoCodes(ctx)
}

// Apply previews the effect of code on amount without recording anything.
func (s *PromoCodeService) Apply(ctx context.Context, code string, amount int64) (*transport.ApplyResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be a positive number", ErrValidation)
	}
	if models.NormalizeCode(code) == "" {
		return nil, fmt.Errorf("%w: code required", ErrValidation)
	}
	p, err := s.Repo.GetPromoCodeByCode(ctx, models.NormalizeCode(code))
	if repo.IsNotFound(err) {
		return nil, fmt.Errorf("%w: promo code %s", ErrNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	if p.Expired(s.now()) {
		return nil, fmt.Errorf("%w: promo code %s expired", ErrValidation, p.Code)
	}

	d := p.Discount(amount)
	return &transport.ApplyResult{
		Code:           p.Code,
		OriginalAmount: amount,
		Discount:       d,
		FinalAmount:    max(0, amount-d),
	}, nil
}

// Update changes a promo code. A mirrored code gets its external coupon
// replaced, since processor coupons cannot change their discount.
func (s *PromoCodeService) Update(ctx context.Context, id uuid.UUID, req transport.PromoCodeUpdate) (*models.PromoCode, error) {
	l := logging.FromContext(ctx).With("service", "promocode", "promo_id", id)

	p, err := s.Repo.GetPromoCode(ctx, id)
	if repo.IsNotFound(err) {
		return nil, fmt.Errorf("%w: promo code %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if req.Code != nil {
		code := models.NormalizeCode(*req.Code)
		if code != p.Code {
			if other, err := s.Repo.GetPromoCodeByCode(ctx, code); err == nil && other.ID != p.ID {
				return nil, fmt.Errorf("%w: promo code %s already exists", ErrConflict, code)
			} else if err != nil && !repo.IsNotFound(err) {
				return nil, err
			}
		}
		p.Code = code
	}
	if req.Type != nil {
		p.Type = models.PromoType(*req.Type)
	}
	if req.Amount != nil {
		p.Amount = *req.Amount
	}
	if req.ClearExpiry {
		p.ExpiryDate = nil
	} else if req.ExpiryDate != nil {
		p.ExpiryDate = req.ExpiryDate
	}
	if err := validatePromo(p); err != nil {
		return nil, err
	}

	// the row is unlinked first, so the coupon.deleted notification of the
	// old coupon cannot match it
	old := p.ExternalID
	p.ExternalID = nil
	if err := s.Repo.SavePromoCode(ctx, p); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: promo code %s already exists", ErrConflict, p.Code)
		}
		return nil, err
	}

	if old != nil {
		if err := s.Gateway.DeleteCoupon(ctx, *old); err != nil {
			if _, rerr := s.Repo.SetExternalID(ctx, p.ID, *old); rerr != nil {
				l.Error("promo_relink_error", "coupon_id", *old, "error", rerr)
			}
			return nil, fmt.Errorf("%w: delete coupon %s: %v", ErrExternal, *old, err)
		}
	}

	if old != nil && s.Syncer != nil && !p.Expired(s.now()) {
		// a failure here is retried by the next scheduled sync
		if _, err := s.Syncer.SyncPromo(ctx, p); err != nil {
			l.Warn("promo_resync_deferred", "error", err)
		}
	}
	return p, nil
}

// Delete removes the external mirror before the local row, so a failure never
// leaves a live coupon without a local owner.
func (s *PromoCodeService) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := s.Repo.GetPromoCode(ctx, id)
	if repo.IsNotFound(err) {
		return fmt.Errorf("%w: promo code %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	if p.Synced() {
		if err := s.Gateway.DeleteCoupon(ctx, *p.ExternalID); err != nil {
			return fmt.Errorf("%w: delete coupon %s: %v", ErrExternal, *p.ExternalID, err)
		}
	}

	if _, err := s.Repo.DeletePromoCode(ctx, id); err != nil {
		return err
	}
	return nil
}

func (s *PromoCodeService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func validatePromo(p *models.PromoCode) error {
	if p.Code == "" {
		return fmt.Errorf("%w: code required", ErrValidation)
	}
	if !models.ValidPromoType(p.Type) {
		return fmt.Errorf("%w: type must be flat or percentage", ErrValidation)
	}
	if p.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must be >= 0", ErrValidation)
	}
	if p.Type == models.PromoPercentage && p.Amount.GreaterThan(maxPercent) {
		return fmt.Errorf("%w: percentage must be <= 100", ErrValidation)
	}
	return nil
}
