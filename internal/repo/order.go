package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/shop_checkout/internal/models"
)

const maxTransitionAttempts = 3

type OrderFilter struct {
	Email  string
	Status models.OrderStatus
	Search string
	From   *time.Time
	To     *time.Time
	Page
}

func (r *GormRepo) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.DB.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *GormRepo) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	if err := r.DB.WithContext(ctx).Preload("Items").First(&o, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *GormRepo) GetOrdersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Order, error) {
	out := make(map[uuid.UUID]*models.Order, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var orders []models.Order
	if err := r.DB.WithContext(ctx).Preload("Items").Where("id IN ?", ids).Find(&orders).Error; err != nil {
		return nil, err
	}
	for i := range orders {
		out[orders[i].ID] = &orders[i]
	}
	return out, nil
}

// AttachSession records the payment session of an order and the single-use
// coupon created for it, if any. The session id is written once; a second
// attempt fails with ErrSessionAlreadySet.
func (r *GormRepo) AttachSession(ctx context.Context, orderID uuid.UUID, sessionID, adHocCouponID string) error {
	updates := map[string]any{
		"session_id": sessionID,
		"version":    gorm.Expr("version + 1"),
	}
	if adHocCouponID != "" {
		updates["ad_hoc_coupon_id"] = adHocCouponID
	}
	res := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND session_id IS NULL", orderID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrSessionAlreadySet
}

// TransitionOrder loads the order, lets mutate change it and writes it back
// only if nobody else bumped its version in between. mutate returns false to
// leave the order untouched. Conflicting writers cause a reload, up to
// maxTransitionAttempts times.
func (r *GormRepo) TransitionOrder(ctx context.Context, id uuid.UUID, mutate func(o *models.Order) (bool, error)) (*models.Order, bool, error) {
	db := r.DB.WithContext(ctx)
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		var o models.Order
		if err := db.First(&o, "id = ?", id).Error; err != nil {
			return nil, false, err
		}

		changed, err := mutate(&o)
		if err != nil {
			return &o, false, err
		}
		if !changed {
			return &o, false, nil
		}

		now := time.Now().UTC()
		res := db.Model(&models.Order{}).
			Where("id = ? AND version = ?", o.ID, o.Version).
			Updates(map[string]any{
				"status":              o.Status,
				"amount":              o.Amount,
				"payment_customer_id": o.PaymentCustomerID,
				"version":             o.Version + 1,
				"updated_at":          now,
			})
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected == 1 {
			o.Version++
			o.UpdatedAt = now
			return &o, true, nil
		}
	}
	return nil, false, ErrStaleOrder
}

func (r *GormRepo) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, int64, error) {
	q := r.DB.WithContext(ctx).Model(&models.Order{}).Where("email = ?", f.Email)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		p := likePattern(s)
		q = q.Where(
			"(LOWER(CAST(id AS TEXT)) LIKE ? OR LOWER(billing_first_name) LIKE ? OR LOWER(billing_last_name) LIKE ? OR LOWER(shipping_first_name) LIKE ? OR LOWER(shipping_last_name) LIKE ?)",
			p, p, p, p, p,
		)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	if err := f.Page.apply(q.Preload("Items"), "orders").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// FindOrphans returns pending orders that never got a payment session and were
// created before cutoff.
func (r *GormRepo) FindOrphans(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.DB.WithContext(ctx).
		Where("status = ? AND session_id IS NULL AND created_at < ?", models.StatusPending, cutoff).
		Order("created_at").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
