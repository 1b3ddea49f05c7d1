package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/shop_checkout/internal/models"
)

type InvoiceFilter struct {
	Email  string
	Search string
	From   *time.Time
	To     *time.Time
	Page
}

// AppendInvoices adds entries to the ledger of email, creating the ledger on
// first use. Entries whose invoice id is already recorded are skipped. It
// returns how many entries were added.
func (r *GormRepo) AppendInvoices(ctx context.Context, email string, orderID uuid.UUID, entries []models.InvoiceEntry) (int, error) {
	added := 0
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := models.UserInvoice{Email: email}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoNothing: true,
		}).Create(&ledger).Error; err != nil {
			return err
		}
		// Create assigned a fresh id even when the row already existed
		var existing models.UserInvoice
		if err := tx.Where("email = ?", email).First(&existing).Error; err != nil {
			return err
		}

		for i := range entries {
			e := entries[i]
			e.ID = uuid.Nil
			e.UserInvoiceID = existing.ID
			e.OrderID = orderID
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "invoice_id"}},
				DoNothing: true,
			}).Create(&e)
			if res.Error != nil {
				return res.Error
			}
			added += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (r *GormRepo) GetUserInvoice(ctx context.Context, email string) (*models.UserInvoice, error) {
	var u models.UserInvoice
	err := r.DB.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Where("email = ?", email).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormRepo) ListInvoiceEntries(ctx context.Context, f InvoiceFilter) ([]models.InvoiceEntry, int64, error) {
	q := r.DB.WithContext(ctx).Model(&models.InvoiceEntry{}).
		Joins("JOIN user_invoices ON user_invoices.id = invoice_entries.user_invoice_id").
		Where("user_invoices.email = ?", f.Email)

	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		p := likePattern(s)
		q = q.Where("(LOWER(invoice_entries.invoice_id) LIKE ? OR LOWER(invoice_entries.invoice_number) LIKE ? OR LOWER(CAST(invoice_entries.order_id AS TEXT)) LIKE ?)", p, p, p)
	}
	if f.From != nil {
		q = q.Where("invoice_entries.created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("invoice_entries.created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.InvoiceEntry
	if err := f.Page.apply(q.Select("invoice_entries.*"), "invoice_entries").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
