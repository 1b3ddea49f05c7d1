package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserInvoice is the append-only receipt ledger of one customer.
type UserInvoice struct {
	ID      uuid.UUID      `gorm:"primaryKey"                                         json:"id"`
	Email   string         `gorm:"uniqueIndex;not null"                               json:"email"`
	Entries []InvoiceEntry `gorm:"foreignKey:UserInvoiceID;constraint:OnDelete:RESTRICT" json:"entries"`

	CreatedAt time.Time `json:"createdAt"`
}

type InvoiceEntry struct {
	ID            uuid.UUID `gorm:"primaryKey"           json:"id"`
	UserInvoiceID uuid.UUID `gorm:"index;not null"       json:"-"`
	OrderID       uuid.UUID `gorm:"index;not null"       json:"orderId"`
	InvoiceID     string    `gorm:"uniqueIndex;not null" json:"invoiceId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	InvoiceURL    string    `json:"invoiceUrl"`
	PDFURL        string    `json:"pdfUrl,omitempty"`
	Total         int64     `json:"totalAmount"`
	IssuedAt      time.Time `json:"date"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	Order *Order `gorm:"-" json:"order,omitempty"`
}

func (u *UserInvoice) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (e *InvoiceEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// All returns every model owned by the service, in migration order.
func All() []any {
	return []any{&Order{}, &OrderItem{}, &PromoCode{}, &CartItem{}, &UserInvoice{}, &InvoiceEntry{}}
}
