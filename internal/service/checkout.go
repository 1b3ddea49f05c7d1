package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/shop_checkout/internal/clients"
	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/payment"
	"github.com/Skotchmaster/shop_checkout/internal/repo"
	"github.com/Skotchmaster/shop_checkout/internal/transport"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
)

// MaxLineQuantity caps the merged quantity of one product in a checkout.
const MaxLineQuantity = 10_000

type CheckoutService struct {
	Repo      *repo.GormRepo
	Gateway   payment.Gateway
	Catalog   Catalog
	Addresses Addresses

	Currency  string
	ClientURL string
	Now       func() time.Time
}

// Checkout prices the cart, records a pending order and opens a payment
// session for it. The order is written before the processor is contacted, so
// a failure afterwards leaves a pending order without a session.
func (s *CheckoutService) Checkout(ctx context.Context, cartID uuid.UUID, req transport.CheckoutRequest) (*transport.SessionDescriptor, error) {
	l := logging.FromContext(ctx).With("service", "checkout")

	items, err := mergeItems(req)
	if err != nil {
		return nil, err
	}

	products, err := s.Catalog.GetProducts(ctx, productIDs(items))
	if err != nil {
		return nil, fmt.Errorf("%w: catalog: %v", ErrExternal, err)
	}

	var total int64
	lines := make([]payment.LineItem, 0, len(items))
	for i := range items {
		p, ok := products[items[i].ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown product %s", ErrValidation, items[i].ProductID)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("%w: product %s has no price", ErrValidation, p.ID)
		}
		if p.Price > 0 && items[i].Quantity > (math.MaxInt64-total)/p.Price {
			return nil, fmt.Errorf("%w: order total too large", ErrValidation)
		}
		items[i].Name = p.Name
		items[i].UnitPrice = p.Price
		total += p.Price * items[i].Quantity
		lines = append(lines, payment.LineItem{
			Name:       p.Name,
			Images:     p.Images,
			UnitAmount: p.Price,
			Quantity:   items[i].Quantity,
		})
	}

	billing, err := s.address(ctx, req.BillingAddressID, req.Email)
	if err != nil {
		return nil, err
	}
	shipping, err := s.address(ctx, req.ShippingAddressID, req.Email)
	if err != nil {
		return nil, err
	}

	d, err := s.discount(ctx, total, req)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		Email:             strings.TrimSpace(req.Email),
		Items:             items,
		Amount:            d.amount,
		Currency:          s.Currency,
		CartID:            cartID,
		BillingAddressID:  billing.ID,
		ShippingAddressID: shipping.ID,
		Billing:           billing.AddressSnapshot,
		Shipping:          shipping.AddressSnapshot,
		PromoCodes:        d.codes,
		Status:            models.StatusPending,
	}
	if _, err := s.Repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	l = l.With("order_id", order.ID)

	couponID := d.couponID
	adHoc := ""
	if d.adHocAmount > 0 {
		c, err := s.Gateway.CreateCoupon(ctx, payment.CouponSpec{
			Name:           "Discount",
			Currency:       s.Currency,
			AmountOff:      d.adHocAmount,
			Duration:       payment.DurationOnce,
			MaxRedemptions: 1,
			Metadata: map[string]string{
				payment.MetaOrigin:  payment.OriginCheckout,
				payment.MetaOrderID: order.ID.String(),
			},
		})
		if err != nil {
			l.Error("adhoc_coupon_error", "error", err)
			return nil, fmt.Errorf("%w: create coupon: %v", ErrExternal, err)
		}
		couponID, adHoc = c.ID, c.ID
	}

	md, err := sessionMetadata{
		OrderID:     order.ID,
		CartID:      cartID,
		Billing:     newAddressRef(billing.ID, billing.AddressSnapshot),
		Shipping:    newAddressRef(shipping.ID, shipping.AddressSnapshot),
		PromoCodes:  d.codes,
		AdHocCoupon: adHoc,
	}.encode()
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	sess, err := s.Gateway.CreateCheckoutSession(ctx, payment.SessionRequest{
		Email:      order.Email,
		Currency:   s.Currency,
		Items:      lines,
		CouponID:   couponID,
		Metadata:   md,
		SuccessURL: fmt.Sprintf("%s/checkout/success?order=%s&session_id={CHECKOUT_SESSION_ID}", s.ClientURL, order.ID),
		CancelURL:  fmt.Sprintf("%s/checkout/fail?order=%s", s.ClientURL, order.ID),
	})
	if err != nil {
		l.Error("checkout_session_error", "error", err)
		if adHoc != "" {
			if derr := s.Gateway.DeleteCoupon(ctx, adHoc); derr != nil {
				l.Warn("adhoc_coupon_cleanup_error", "coupon_id", adHoc, "error", derr)
			}
		}
		return nil, fmt.Errorf("%w: create session: %v", ErrExternal, err)
	}

	if err := s.Repo.AttachSession(ctx, order.ID, sess.ID, adHoc); err != nil {
		l.Error("attach_session_error", "session_id", sess.ID, "error", err)
		return nil, fmt.Errorf("attach session: %w", err)
	}

	l.Info("checkout_session_created", "session_id", sess.ID, "amount", order.Amount)
	return &transport.SessionDescriptor{
		SessionID: sess.ID,
		URL:       sess.URL,
		OrderID:   order.ID,
		Amount:    order.Amount,
		Currency:  s.Currency,
	}, nil
}

type discountPlan struct {
	amount      int64
	codes       []string
	couponID    string
	adHocAmount int64
}

func (s *CheckoutService) discount(ctx context.Context, total int64, req transport.CheckoutRequest) (discountPlan, error) {
	if req.FinalPrice != nil {
		final := *req.FinalPrice
		switch {
		case final < 0:
			return discountPlan{}, fmt.Errorf("%w: finalPrice must be >= 0", ErrValidation)
		case final > total:
			return discountPlan{}, fmt.Errorf("%w: finalPrice %d exceeds cart total %d", ErrValidation, final, total)
		}
		return discountPlan{amount: final, adHocAmount: total - final}, nil
	}

	if len(req.PromoCodes) == 0 {
		return discountPlan{amount: total}, nil
	}

	now := s.now()
	for _, raw := range req.PromoCodes {
		code := models.NormalizeCode(raw)
		if code == "" {
			continue
		}
		p, err := s.Repo.GetPromoCodeByCode(ctx, code)
		if repo.IsNotFound(err) {
			continue
		}
		if err != nil {
			return discountPlan{}, fmt.Errorf("lookup promo code: %w", err)
		}
		if p.Expired(now) || !p.Synced() {
			continue
		}
		return discountPlan{
			amount:   total - p.Discount(total),
			codes:    []string{p.Code},
			couponID: *p.ExternalID,
		}, nil
	}
	return discountPlan{}, fmt.Errorf("%w: no applicable promo code", ErrValidation)
}

func (s *CheckoutService) address(ctx context.Context, id, email string) (*clients.Address, error) {
	a, err := s.Addresses.GetAddress(ctx, id)
	if errors.Is(err, clients.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown address %s", ErrValidation, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: address: %v", ErrExternal, err)
	}
	if a.Email != "" && !strings.EqualFold(a.Email, strings.TrimSpace(email)) {
		return nil, fmt.Errorf("%w: address %s belongs to another customer", ErrValidation, id)
	}
	return a, nil
}

func (s *CheckoutService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// mergeItems validates the request and folds repeated products into one line.
func mergeItems(req transport.CheckoutRequest) ([]models.OrderItem, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("%w: email required", ErrValidation)
	}
	if req.BillingAddressID == "" || req.ShippingAddressID == "" {
		return nil, fmt.Errorf("%w: billing and shipping address required", ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
	}

	idx := make(map[uuid.UUID]int, len(req.Items))
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: productId required", ErrValidation)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be > 0", ErrValidation)
		}
		if it.Quantity > MaxLineQuantity {
			return nil, fmt.Errorf("%w: quantity must be <= %d", ErrValidation, MaxLineQuantity)
		}
		if i, ok := idx[it.ProductID]; ok {
			items[i].Quantity += it.Quantity
			if items[i].Quantity > MaxLineQuantity {
				return nil, fmt.Errorf("%w: quantity must be <= %d", ErrValidation, MaxLineQuantity)
			}
			continue
		}
		idx[it.ProductID] = len(items)
		items = append(items, models.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Note:      it.Note,
		})
	}
	return items, nil
}

func productIDs(items []models.OrderItem) []uuid.UUID {
	ids := make([]uuid.UUID, len(items))
	for i := range items {
		ids[i] = items[i].ProductID
	}
	return ids
}
