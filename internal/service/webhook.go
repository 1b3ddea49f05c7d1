package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/shop_checkout/internal/events"
	"github.com/Skotchmaster/shop_checkout/internal/idempotency"
	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/payment"
	"github.com/Skotchmaster/shop_checkout/internal/repo"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
)

const defaultInvoiceLimit = 10

var errOrderClosed = errors.New("order already closed")

// WebhookProcessor applies verified processor events to local state. Every
// handler is safe to run more than once for the same event.
type WebhookProcessor struct {
	Repo    *repo.GormRepo
	Gateway payment.Gateway
	Ledger  Ledger
	Events  Publisher

	InvoiceLimit int
}

// Handle verifies and processes one delivery. A nil return acknowledges the
// event; any other error except ErrSignature asks the processor to retry.
func (p *WebhookProcessor) Handle(ctx context.Context, payload []byte, signature string) error {
	l := logging.FromContext(ctx).With("service", "webhook")

	ev, err := p.Gateway.ParseWebhook(payload, signature)
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		return fmt.Errorf("%w: %v", ErrSignature, err)
	case errors.Is(err, payment.ErrMalformedEvent):
		l.Error("webhook_malformed_event", "error", err)
		return nil
	case err != nil:
		return err
	}

	l = l.With("event_id", ev.ID, "event_type", ev.RawType)
	ctx = logging.IntoContext(ctx, l)

	tracked := true
	state, err := p.Ledger.Claim(ctx, ev.ID)
	if err != nil {
		// untracked: replays fall back to the order CAS and unique invoice ids
		l.Warn("webhook_ledger_unavailable", "error", err)
		tracked = false
	}
	if tracked {
		switch state {
		case idempotency.Done:
			l.Info("webhook_duplicate_event")
			return nil
		case idempotency.InFlight:
			return fmt.Errorf("%w: %s", ErrInFlight, ev.ID)
		}
	}

	err = p.dispatch(ctx, l, ev)
	if err != nil && !errors.Is(err, errPayload) {
		if tracked {
			if rerr := p.Ledger.Release(ctx, ev.ID); rerr != nil {
				l.Warn("webhook_ledger_release_error", "error", rerr)
			}
		}
		l.Error("webhook_processing_error", "error", err)
		return err
	}
	if err != nil {
		l.Warn("webhook_event_skipped", "reason", err.Error())
	}

	if tracked {
		if cerr := p.Ledger.Complete(ctx, ev.ID); cerr != nil {
			l.Warn("webhook_ledger_complete_error", "error", cerr)
		}
	}
	return nil
}

func (p *WebhookProcessor) dispatch(ctx context.Context, l *slog.Logger, ev payment.Event) error {
	switch ev.Kind {
	case payment.KindSessionCompleted:
		s, _ := ev.Session()
		return p.sessionCompleted(ctx, l, s)
	case payment.KindAsyncPaymentSucceeded:
		s, _ := ev.Session()
		return p.asyncPayment(ctx, l, s, models.StatusPaid)
	case payment.KindAsyncPaymentFailed:
		s, _ := ev.Session()
		return p.asyncPayment(ctx, l, s, models.StatusFailed)
	case payment.KindSessionExpired:
		s, _ := ev.Session()
		l.Info("checkout_session_expired", "session_id", s.ID, "order_id", s.Metadata[payment.MetaOrderID])
		return nil
	case payment.KindCouponCreated:
		c, _ := ev.Coupon()
		return p.couponCreated(ctx, l, c)
	case payment.KindCouponUpdated:
		c, _ := ev.Coupon()
		return p.couponUpdated(ctx, l, c)
	case payment.KindCouponDeleted:
		c, _ := ev.Coupon()
		return p.couponDeleted(ctx, l, c)
	default:
		l.Debug("webhook_event_ignored")
		return nil
	}
}

func (p *WebhookProcessor) sessionCompleted(ctx context.Context, l *slog.Logger, s *payment.SessionPayload) error {
	md, err := decodeMetadata(s.Metadata)
	if err != nil {
		return err
	}
	l = l.With("order_id", md.OrderID, "session_id", s.ID)

	order, changed, err := p.Repo.TransitionOrder(ctx, md.OrderID, func(o *models.Order) (bool, error) {
		if o.SessionID != nil && *o.SessionID != s.ID {
			return false, fmt.Errorf("%w: session %s does not belong to order", errPayload, s.ID)
		}
		switch {
		case o.Status == models.StatusComplete || o.Status == models.StatusShipped:
			return false, nil
		case o.Status.Terminal():
			return false, fmt.Errorf("%w: %w (%s)", errPayload, errOrderClosed, o.Status)
		}
		o.Status = models.StatusComplete
		o.Amount = s.AmountTotal
		o.PaymentCustomerID = s.CustomerID
		return true, nil
	})
	if repo.IsNotFound(err) {
		return fmt.Errorf("%w: order %s not found", errPayload, md.OrderID)
	}
	if err != nil {
		return err
	}
	if changed {
		// published before the side effects, whose retry sees changed == false
		p.publish(ctx, l, events.OrderCompleted, order)
		l.Info("order_completed", "amount", order.Amount)
	}

	if md.CartID != uuid.Nil {
		if _, err := p.Repo.DeleteCart(ctx, md.CartID); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
	}

	if coupon := md.AdHocCoupon; coupon != "" && (len(s.CouponIDs) == 0 || contains(s.CouponIDs, coupon)) {
		if err := p.Gateway.DeleteCoupon(ctx, coupon); err != nil {
			return fmt.Errorf("delete adhoc coupon: %w", err)
		}
	}

	customer := s.CustomerID
	if customer == "" {
		customer = order.PaymentCustomerID
	}
	if customer != "" {
		invoices, err := p.Gateway.ListInvoices(ctx, customer, p.invoiceLimit())
		if err != nil {
			return fmt.Errorf("list invoices: %w", err)
		}
		added, err := p.Repo.AppendInvoices(ctx, order.Email, order.ID, invoiceEntries(invoices))
		if err != nil {
			return fmt.Errorf("append invoices: %w", err)
		}
		l.Info("invoices_recorded", "fetched", len(invoices), "added", added)
	}
	return nil
}

func (p *WebhookProcessor) asyncPayment(ctx context.Context, l *slog.Logger, s *payment.SessionPayload, to models.OrderStatus) error {
	id, err := decodeOrderID(s.Metadata)
	if err != nil {
		return err
	}
	l = l.With("order_id", id, "session_id", s.ID)

	order, changed, err := p.Repo.TransitionOrder(ctx, id, func(o *models.Order) (bool, error) {
		if o.Status != models.StatusPending {
			// a completion or a customer action got there first
			return false, nil
		}
		o.Status = to
		if s.CustomerID != "" {
			o.PaymentCustomerID = s.CustomerID
		}
		return true, nil
	})
	if repo.IsNotFound(err) {
		return fmt.Errorf("%w: order %s not found", errPayload, id)
	}
	if err != nil {
		return err
	}

	if changed {
		l.Info("order_payment_updated", "status", order.Status)
		if to == models.StatusFailed {
			p.publish(ctx, l, events.OrderFailed, order)
		}
	}
	return nil
}

func (p *WebhookProcessor) couponCreated(ctx context.Context, l *slog.Logger, c *payment.CouponPayload) error {
	l = l.With("coupon_id", c.ID)
	if c.Metadata[payment.MetaOrigin] == payment.OriginCheckout {
		l.Debug("coupon_created_skipped", "reason", "single-use checkout coupon")
		return nil
	}

	if _, err := p.Repo.GetPromoCodeByExternalID(ctx, c.ID); err == nil {
		return nil
	} else if !repo.IsNotFound(err) {
		return fmt.Errorf("lookup promo by coupon: %w", err)
	}

	code := couponCode(c)
	existing, err := p.Repo.GetPromoCodeByCode(ctx, code)
	switch {
	case err == nil && existing.ExternalID == nil:
		// our own sync, or a coupon authored remotely for a local code
		if _, err := p.Repo.SetExternalID(ctx, existing.ID, c.ID); err != nil {
			return fmt.Errorf("adopt coupon: %w", err)
		}
		l.Info("coupon_adopted", "promo_code", code)
		return nil
	case err == nil:
		return fmt.Errorf("%w: code %s already mirrors coupon %s", errPayload, code, *existing.ExternalID)
	case !repo.IsNotFound(err):
		return fmt.Errorf("lookup promo by code: %w", err)
	}

	promo := promoFromCoupon(c, code)
	promo.ExternalID = &c.ID
	if err := p.Repo.CreatePromoCode(ctx, promo); err != nil {
		return fmt.Errorf("create promo from coupon: %w", err)
	}
	l.Info("coupon_mirrored", "promo_code", code)
	return nil
}

func (p *WebhookProcessor) couponUpdated(ctx context.Context, l *slog.Logger, c *payment.CouponPayload) error {
	l = l.With("coupon_id", c.ID)

	promo, err := p.Repo.GetPromoCodeByExternalID(ctx, c.ID)
	if repo.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup promo by coupon: %w", err)
	}

	fresh := promoFromCoupon(c, couponCode(c))
	if fresh.Code != promo.Code {
		other, err := p.Repo.GetPromoCodeByCode(ctx, fresh.Code)
		switch {
		case err == nil && other.ID != promo.ID:
			l.Warn("coupon_rename_conflict", "promo_code", promo.Code, "wanted", fresh.Code)
			fresh.Code = promo.Code
		case err != nil && !repo.IsNotFound(err):
			return fmt.Errorf("lookup promo by code: %w", err)
		}
	}

	promo.Code = fresh.Code
	promo.Type = fresh.Type
	promo.Amount = fresh.Amount
	promo.ExpiryDate = fresh.ExpiryDate
	if err := p.Repo.SavePromoCode(ctx, promo); err != nil {
		return fmt.Errorf("update promo from coupon: %w", err)
	}
	l.Info("coupon_mirror_updated", "promo_code", promo.Code)
	return nil
}

func (p *WebhookProcessor) couponDeleted(ctx context.Context, l *slog.Logger, c *payment.CouponPayload) error {
	deleted, err := p.Repo.DeletePromoCodeByExternalID(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("delete promo by coupon: %w", err)
	}
	if deleted {
		l.Info("coupon_mirror_deleted", "coupon_id", c.ID)
	}
	return nil
}

func (p *WebhookProcessor) publish(ctx context.Context, l *slog.Logger, typ events.Type, o *models.Order) {
	if p.Events == nil {
		return
	}
	err := p.Events.Publish(ctx, events.OrderEvent{
		Type:    typ,
		OrderID: o.ID,
		Email:   o.Email,
		Status:  string(o.Status),
		Amount:  o.Amount,
		At:      time.Now().UTC(),
	})
	if err != nil {
		l.Warn("order_event_publish_error", "type", typ, "error", err)
	}
}

func (p *WebhookProcessor) invoiceLimit() int {
	if p.InvoiceLimit > 0 {
		return p.InvoiceLimit
	}
	return defaultInvoiceLimit
}

func couponCode(c *payment.CouponPayload) string {
	if code := models.NormalizeCode(c.Name); code != "" {
		return code
	}
	return models.NormalizeCode(c.ID)
}

func promoFromCoupon(c *payment.CouponPayload, code string) *models.PromoCode {
	p := &models.PromoCode{Code: code, ExpiryDate: c.RedeemBy}
	if c.PercentOff > 0 {
		p.Type = models.PromoPercentage
		p.Amount = decimal.NewFromFloat(c.PercentOff)
	} else {
		p.Type = models.PromoFlat
		p.Amount = decimal.NewFromInt(c.AmountOff)
	}
	return p
}

func invoiceEntries(invoices []payment.Invoice) []models.InvoiceEntry {
	out := make([]models.InvoiceEntry, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, models.InvoiceEntry{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			InvoiceURL:    inv.HostedURL,
			PDFURL:        inv.PDFURL,
			Total:         inv.Total,
			IssuedAt:      inv.Created,
		})
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
