package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeGateway struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		tolerance:     webhook.DefaultTolerance,
	}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:             stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:       stripe.String(req.SuccessURL),
		CancelURL:        stripe.String(req.CancelURL),
		CustomerCreation: stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways)),
		InvoiceCreation: &stripe.CheckoutSessionInvoiceCreationParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	for _, it := range req.Items {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(it.Name),
		}
		if len(it.Images) > 0 {
			product.Images = stripe.StringSlice(it.Images)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(it.UnitAmount),
				ProductData: product,
			},
			Quantity: stripe.Int64(it.Quantity),
		})
	}

	if req.CouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(req.CouponID)}}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Session{ID: s.ID, URL: s.URL, AmountTotal: s.AmountTotal}, nil
}

func (g *StripeGateway) CreateCoupon(ctx context.Context, spec CouponSpec) (*Coupon, error) {
	params := &stripe.CouponParams{
		Name:     stripe.String(spec.Name),
		Duration: stripe.String(string(spec.Duration)),
	}
	params.Context = ctx

	switch {
	case spec.PercentOff > 0:
		params.PercentOff = stripe.Float64(spec.PercentOff)
	default:
		params.AmountOff = stripe.Int64(spec.AmountOff)
		params.Currency = stripe.String(spec.Currency)
	}
	if spec.RedeemBy != nil {
		params.RedeemBy = stripe.Int64(spec.RedeemBy.Unix())
	}
	if spec.MaxRedemptions > 0 {
		params.MaxRedemptions = stripe.Int64(spec.MaxRedemptions)
	}
	for k, v := range spec.Metadata {
		params.AddMetadata(k, v)
	}

	c, err := g.api.Coupons.New(params)
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}
	return &Coupon{ID: c.ID}, nil
}

func (g *StripeGateway) DeleteCoupon(ctx context.Context, id string) error {
	params := &stripe.CouponParams{}
	params.Context = ctx

	if _, err := g.api.Coupons.Del(id, params); err != nil {
		if isMissing(err) {
			return nil
		}
		return fmt.Errorf("delete coupon %s: %w", id, err)
	}
	return nil
}

// ListInvoices returns at most limit of the customer's most recent invoices.
func (g *StripeGateway) ListInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error) {
	params := &stripe.InvoiceListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))

	var out []Invoice
	it := g.api.Invoices.List(params)
	for it.Next() && len(out) < limit {
		inv := it.Invoice()
		out = append(out, Invoice{
			ID:        inv.ID,
			Number:    inv.Number,
			HostedURL: inv.HostedInvoiceURL,
			PDFURL:    inv.InvoicePDF,
			Total:     inv.Total,
			Created:   time.Unix(inv.Created, 0).UTC(),
		})
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return out, nil
}

// ReceiptURL resolves the receipt of the charge that paid the session. An
// unpaid session has no receipt and yields an empty string.
func (g *StripeGateway) ReceiptURL(ctx context.Context, sessionID string) (string, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent.latest_charge")

	s, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return "", fmt.Errorf("get checkout session: %w", err)
	}
	if s.PaymentIntent == nil || s.PaymentIntent.LatestCharge == nil {
		return "", nil
	}
	return s.PaymentIntent.LatestCharge.ReceiptURL, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signatureHeader string) (Event, error) {
	if g.webhookSecret == "" {
		return Event{}, ErrSecretMissing
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return Event{}, ErrInvalidSignature
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                g.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Data == nil {
		return Event{}, fmt.Errorf("%w: event %s has no data", ErrMalformedEvent, ev.ID)
	}
	return DecodeEvent(ev.ID, string(ev.Type), ev.Data.Raw)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func isMissing(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound
}
