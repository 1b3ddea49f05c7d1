package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PromoType string

const (
	PromoFlat       PromoType = "flat"
	PromoPercentage PromoType = "percentage"
)

var hundred = decimal.NewFromInt(100)

type PromoCode struct {
	ID   uuid.UUID `gorm:"primaryKey"             json:"id"`
	Code string    `gorm:"uniqueIndex;not null"   json:"code"`
	Type PromoType `gorm:"not null"               json:"type"`
	// Amount is a percentage for percentage codes and minor currency units for flat ones.
	Amount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	ExpiryDate *time.Time      `json:"expiryDate,omitempty"`
	ExternalID *string         `gorm:"uniqueIndex" json:"externalId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p *PromoCode) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func ValidPromoType(t PromoType) bool {
	return t == PromoFlat || t == PromoPercentage
}

func (p *PromoCode) Expired(now time.Time) bool {
	return p.ExpiryDate != nil && !now.Before(*p.ExpiryDate)
}

func (p *PromoCode) Synced() bool {
	return p.ExternalID != nil && *p.ExternalID != ""
}

// Discount returns the reduction applied to total, never more than total.
func (p *PromoCode) Discount(total int64) int64 {
	if total <= 0 || p.Amount.IsNegative() {
		return 0
	}
	var d int64
	switch p.Type {
	case PromoPercentage:
		d = decimal.NewFromInt(total).Mul(p.Amount).Div(hundred).Round(0).IntPart()
	case PromoFlat:
		d = p.Amount.Round(0).IntPart()
	}
	if d > total {
		return total
	}
	return d
}
