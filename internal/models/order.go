package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusFailed    OrderStatus = "failed"
	StatusShipped   OrderStatus = "shipped"
	StatusComplete  OrderStatus = "complete"
	StatusCancelled OrderStatus = "cancelled"
	StatusReturn    OrderStatus = "return"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:  {StatusPaid, StatusComplete, StatusFailed, StatusCancelled},
	StatusPaid:     {StatusComplete, StatusShipped, StatusCancelled},
	StatusComplete: {StatusShipped, StatusReturn},
	StatusShipped:  {StatusComplete},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusPaid, StatusFailed, StatusShipped, StatusComplete, StatusCancelled, StatusReturn:
		return st, true
	}
	return "", false
}

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Cancellable is true before the order has been handed to shipping.
func (s OrderStatus) Cancellable() bool {
	return s == StatusPending || s == StatusPaid
}

type AddressSnapshot struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type Order struct {
	ID    uuid.UUID   `gorm:"primaryKey"                                   json:"id"`
	Email string      `gorm:"index;not null"                               json:"email"`
	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`

	// Amount is in minor currency units.
	Amount   int64  `gorm:"not null"     json:"amount"`
	Currency string `gorm:"size:3"       json:"currency"`

	SessionID *string   `gorm:"uniqueIndex" json:"sessionId,omitempty"`
	CartID    uuid.UUID `gorm:"index"       json:"cartId"`

	BillingAddressID  string          `gorm:"not null"                         json:"billingAddressId"`
	ShippingAddressID string          `gorm:"not null"                         json:"shippingAddressId"`
	Billing           AddressSnapshot `gorm:"embedded;embeddedPrefix:billing_"  json:"billing"`
	Shipping          AddressSnapshot `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping"`

	PromoCodes        pq.StringArray `gorm:"type:text[]" json:"promoCodes"`
	AdHocCouponID     string         `json:"-"`
	PaymentCustomerID string         `gorm:"index" json:"-"`

	Status  OrderStatus `gorm:"index;not null;default:pending" json:"status"`
	Version int64       `gorm:"not null;default:1"             json:"-"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type OrderItem struct {
	ID        uuid.UUID `gorm:"primaryKey"                json:"id"`
	OrderID   uuid.UUID `gorm:"index;not null"            json:"orderId"`
	ProductID uuid.UUID `gorm:"not null"                  json:"productId"`
	Name      string    `json:"name"`
	UnitPrice int64     `gorm:"not null"                  json:"unitPrice"`
	Quantity  int64     `gorm:"not null;check:quantity>0" json:"quantity"`
	Note      string    `json:"note,omitempty"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.Version == 0 {
		o.Version = 1
	}
	return nil
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// WithinWindow reports whether now is at most window after the order was placed.
func (o *Order) WithinWindow(now time.Time, window time.Duration) bool {
	return now.Sub(o.CreatedAt) <= window
}

func (o *Order) HasSession() bool {
	return o.SessionID != nil && *o.SessionID != ""
}
