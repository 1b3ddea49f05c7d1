package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/shop_checkout/internal/models"
)

func (r *GormRepo) CreatePromoCode(ctx context.Context, p *models.PromoCode) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

func (r *GormRepo) GetPromoCode(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	var p models.PromoCode
	if err := r.DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormRepo) GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var p models.PromoCode
	if err := r.DB.WithContext(ctx).Where("code = ?", code).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormRepo) GetPromoCodeByExternalID(ctx context.Context, externalID string) (*models.PromoCode, error) {
	var p models.PromoCode
	if err := r.DB.WithContext(ctx).Where("external_id = ?", externalID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormRepo) ListPromoCodes(ctx context.Context) ([]models.PromoCode, error) {
	var out []models.PromoCode
	err := r.DB.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// ListUnsyncedPromoCodes returns codes without an external mirror that are
// still usable at now.
func (r *GormRepo) ListUnsyncedPromoCodes(ctx context.Context, now time.Time, limit int) ([]models.PromoCode, error) {
	var out []models.PromoCode
	err := r.DB.WithContext(ctx).
		Where("external_id IS NULL AND (expiry_date IS NULL OR expiry_date > ?)", now).
		Order("created_at").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *GormRepo) SavePromoCode(ctx context.Context, p *models.PromoCode) error {
	return r.DB.WithContext(ctx).Save(p).Error
}

// SetExternalID stores the mirror id only while the code has none. It reports
// false if another writer got there first.
func (r *GormRepo) SetExternalID(ctx context.Context, id uuid.UUID, externalID string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.PromoCode{}).
		Where("id = ? AND external_id IS NULL", id).
		Update("external_id", externalID)
	return res.RowsAffected == 1, res.Error
}

func (r *GormRepo) DeletePromoCode(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB.WithContext(ctx).Delete(&models.PromoCode{}, "id = ?", id)
	return res.RowsAffected > 0, res.Error
}

func (r *GormRepo) DeletePromoCodeByExternalID(ctx context.Context, externalID string) (bool, error) {
	res := r.DB.WithContext(ctx).Where("external_id = ?", externalID).Delete(&models.PromoCode{})
	return res.RowsAffected > 0, res.Error
}
