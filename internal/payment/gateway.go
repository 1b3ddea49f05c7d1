// Package payment talks to the external payment processor: checkout
// sessions, coupons, invoices, receipts and signed webhook events.
package payment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrSecretMissing    = errors.New("webhook secret not configured")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Session metadata keys. The processor does not know local identifiers, so
// every id the webhook later needs travels in the session metadata.
const (
	MetaOrderID         = "order_id"
	MetaCartID          = "cart_id"
	MetaBillingAddress  = "billing_address"
	MetaShippingAddress = "shipping_address"
	MetaPromoCodes      = "promo_codes"
	MetaAdHocCoupon     = "adhoc_coupon"

	// MetaOrigin marks coupons created by this service for a single session.
	MetaOrigin     = "origin"
	OriginCheckout = "checkout"
	MetaPromoID    = "promo_code_id"
)

type CouponDuration string

const (
	DurationOnce    CouponDuration = "once"
	DurationForever CouponDuration = "forever"
)

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
	CreateCoupon(ctx context.Context, spec CouponSpec) (*Coupon, error)
	// DeleteCoupon treats an already missing coupon as success.
	DeleteCoupon(ctx context.Context, id string) error
	ListInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error)
	ReceiptURL(ctx context.Context, sessionID string) (string, error)
	ParseWebhook(payload []byte, signatureHeader string) (Event, error)
}

type LineItem struct {
	Name       string
	Images     []string
	UnitAmount int64
	Quantity   int64
}

type SessionRequest struct {
	Email      string
	Currency   string
	Items      []LineItem
	CouponID   string
	Metadata   map[string]string
	SuccessURL string
	CancelURL  string
}

type Session struct {
	ID          string
	URL         string
	AmountTotal int64
}

type CouponSpec struct {
	Name           string
	Currency       string
	AmountOff      int64
	PercentOff     float64
	Duration       CouponDuration
	RedeemBy       *time.Time
	MaxRedemptions int64
	Metadata       map[string]string
}

type Coupon struct {
	ID string
}

type Invoice struct {
	ID        string
	Number    string
	HostedURL string
	PDFURL    string
	Total     int64
	Created   time.Time
}
