package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/shop_checkout/internal/events"
	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/payment"
	"github.com/Skotchmaster/shop_checkout/internal/repo"
	"github.com/Skotchmaster/shop_checkout/internal/transport"
	"github.com/Skotchmaster/shop_checkout/internal/util"
	"github.com/Skotchmaster/shop_checkout/pkg/authclient"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
)

const DefaultReturnWindow = 7 * 24 * time.Hour

var (
	orderSortFields = map[string]string{
		"createdAt":   "created_at",
		"totalAmount": "amount",
		"status":      "status",
		"orderNumber": "id",
		"updatedAt":   "updated_at",
	}
	invoiceSortFields = map[string]string{
		"createdAt":     "created_at",
		"date":          "issued_at",
		"invoiceNumber": "invoice_number",
		"totalAmount":   "total",
	}
)

type OrderService struct {
	Repo    *repo.GormRepo
	Gateway payment.Gateway
	Catalog Catalog
	Users   Users
	Events  Publisher

	ReturnWindow time.Duration
	Now          func() time.Time
}

// GetOrder returns one order of the customer with current product images and
// the payment receipt. A missing receipt does not fail the lookup.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID, email string) (*transport.OrderDetail, error) {
	l := logging.FromContext(ctx).With("service", "orders", "order_id", id)

	o, err := s.Repo.GetOrder(ctx, id)
	if repo.IsNotFound(err) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(o.Email, email) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}

	detail := &transport.OrderDetail{Order: *o, Lines: make([]transport.OrderLine, len(o.Items))}
	for i := range o.Items {
		detail.Lines[i] = transport.OrderLine{OrderItem: o.Items[i]}
	}

	if s.Catalog != nil && len(o.Items) > 0 {
		products, err := s.Catalog.GetProducts(ctx, productIDs(o.Items))
		if err != nil {
			l.Warn("order_catalog_enrich_error", "error", err)
		}
		for i := range detail.Lines {
			if p, ok := products[detail.Lines[i].ProductID]; ok && len(p.Images) > 0 {
				detail.Lines[i].Image = p.Images[0]
			}
		}
	}

	if o.HasSession() {
		url, err := s.Gateway.ReceiptURL(ctx, *o.SessionID)
		if err != nil {
			l.Warn("order_receipt_error", "error", err)
		}
		detail.ReceiptURL = url
	}
	return detail, nil
}

func (s *OrderService) ListOrders(ctx context.Context, email string, q transport.ListQuery) (*transport.Page[models.Order], error) {
	f := repo.OrderFilter{Email: email, Search: q.Search}
	if q.Status != "" {
		st, ok := models.ParseOrderStatus(q.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, q.Status)
		}
		f.Status = st
	}

	var err error
	if f.From, f.To, err = dateRange(q.DateFrom, q.DateTo); err != nil {
		return nil, err
	}
	if f.Page, err = pageOf(q, orderSortFields); err != nil {
		return nil, err
	}

	orders, total, err := s.Repo.ListOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return &transport.Page[models.Order]{
		Items:       orders,
		TotalCount:  total,
		TotalPages:  util.TotalPages(total, f.Limit),
		CurrentPage: util.NormalizePage(q.Page),
	}, nil
}

// ListInvoices pages through the customer's invoice ledger. With q.Expand
// every entry carries its order.
func (s *OrderService) ListInvoices(ctx context.Context, email string, q transport.ListQuery) (*transport.Page[models.InvoiceEntry], error) {
	f := repo.InvoiceFilter{Email: email, Search: q.Search}

	var err error
	if f.From, f.To, err = dateRange(q.DateFrom, q.DateTo); err != nil {
		return nil, err
	}
	if f.Page, err = pageOf(q, invoiceSortFields); err != nil {
		return nil, err
	}

	entries, total, err := s.Repo.ListInvoiceEntries(ctx, f)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.InvoiceEntry{}
	}

	if q.Expand && len(entries) > 0 {
		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.OrderID)
		}
		orders, err := s.Repo.GetOrdersByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			entries[i].Order = orders[entries[i].OrderID]
		}
	}

	return &transport.Page[models.InvoiceEntry]{
		Items:       entries,
		TotalCount:  total,
		TotalPages:  util.TotalPages(total, f.Limit),
		CurrentPage: util.NormalizePage(q.Page),
	}, nil
}

// Cancel cancels an order that has not shipped yet.
func (s *OrderService) Cancel(ctx context.Context, userID string, orderID uuid.UUID) (*models.Order, error) {
	return s.customerAction(ctx, userID, orderID, events.OrderCancelled, func(o *models.Order) error {
		if !o.Status.Cancellable() {
			return fmt.Errorf("%w: order in status %s cannot be cancelled", ErrValidation, o.Status)
		}
		o.Status = models.StatusCancelled
		return nil
	})
}

// Return marks a completed order as returned while the return window is open.
func (s *OrderService) Return(ctx context.Context, userID string, orderID uuid.UUID) (*models.Order, error) {
	now := s.now()
	window := s.returnWindow()
	return s.customerAction(ctx, userID, orderID, events.OrderReturned, func(o *models.Order) error {
		if o.Status != models.StatusComplete {
			return fmt.Errorf("%w: only completed orders can be returned", ErrValidation)
		}
		if !o.WithinWindow(now, window) {
			return fmt.Errorf("%w: return window of %s has passed", ErrValidation, window)
		}
		o.Status = models.StatusReturn
		return nil
	})
}

// Ship hands a paid or completed order to shipping.
func (s *OrderService) Ship(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	l := logging.FromContext(ctx).With("service", "orders", "order_id", orderID)

	o, changed, err := s.Repo.TransitionOrder(ctx, orderID, func(o *models.Order) (bool, error) {
		if o.Status == models.StatusShipped {
			return false, nil
		}
		if !o.Status.CanTransition(models.StatusShipped) {
			return false, fmt.Errorf("%w: order in status %s cannot be shipped", ErrValidation, o.Status)
		}
		o.Status = models.StatusShipped
		return true, nil
	})
	if err := orderErr(orderID, err); err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, l, events.OrderShipped, o)
	}
	return o, nil
}

func (s *OrderService) customerAction(ctx context.Context, userID string, orderID uuid.UUID, typ events.Type, mutate func(o *models.Order) error) (*models.Order, error) {
	l := logging.FromContext(ctx).With("service", "orders", "order_id", orderID, "action", typ)

	u, err := s.Users.GetUser(ctx, userID)
	if errors.Is(err, authclient.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: unknown user", ErrForbidden)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: user service: %v", ErrExternal, err)
	}

	o, _, err := s.Repo.TransitionOrder(ctx, orderID, func(o *models.Order) (bool, error) {
		if !strings.EqualFold(o.Email, u.Email) {
			return false, fmt.Errorf("%w: order belongs to another customer", ErrForbidden)
		}
		if err := mutate(o); err != nil {
			return false, err
		}
		return true, nil
	})
	if err := orderErr(orderID, err); err != nil {
		return nil, err
	}

	s.publish(ctx, l, typ, o)
	l.Info("order_status_changed", "status", o.Status)
	return o, nil
}

func (s *OrderService) publish(ctx context.Context, l *slog.Logger, typ events.Type, o *models.Order) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, events.OrderEvent{
		Type:    typ,
		OrderID: o.ID,
		Email:   o.Email,
		Status:  string(o.Status),
		Amount:  o.Amount,
		At:      s.now().UTC(),
	}); err != nil {
		l.Warn("order_event_publish_error", "type", typ, "error", err)
	}
}

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *OrderService) returnWindow() time.Duration {
	if s.ReturnWindow > 0 {
		return s.ReturnWindow
	}
	return DefaultReturnWindow
}

func orderErr(id uuid.UUID, err error) error {
	switch {
	case err == nil:
		return nil
	case repo.IsNotFound(err):
		return fmt.Errorf("%w: order %s", ErrNotFound, id)
	case errors.Is(err, repo.ErrStaleOrder):
		return fmt.Errorf("%w: order %s is being updated, retry", ErrConflict, id)
	}
	return err
}

func pageOf(q transport.ListQuery, allowed map[string]string) (repo.Page, error) {
	offset, limit := util.Calculate(q.Page, q.Limit)
	p := repo.Page{Offset: offset, Limit: limit, Sort: "created_at", Desc: true}

	if q.SortField != "" {
		col, ok := allowed[q.SortField]
		if !ok {
			return p, fmt.Errorf("%w: cannot sort by %q", ErrValidation, q.SortField)
		}
		p.Sort = col
	}
	switch strings.ToLower(q.SortOrder) {
	case "", "desc":
		p.Desc = true
	case "asc":
		p.Desc = false
	default:
		return p, fmt.Errorf("%w: sortOrder must be asc or desc", ErrValidation)
	}
	return p, nil
}

// dateRange parses YYYY-MM-DD or RFC 3339 bounds. A bare date as upper bound
// covers that whole day.
func dateRange(from, to string) (*time.Time, *time.Time, error) {
	var f, t *time.Time
	if from != "" {
		v, _, err := parseDate(from)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: dateFrom: %v", ErrValidation, err)
		}
		f = &v
	}
	if to != "" {
		v, dateOnly, err := parseDate(to)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: dateTo: %v", ErrValidation, err)
		}
		if dateOnly {
			v = v.Add(24*time.Hour - time.Nanosecond)
		}
		t = &v
	}
	if f != nil && t != nil && t.Before(*f) {
		return nil, nil, fmt.Errorf("%w: dateTo before dateFrom", ErrValidation)
	}
	return f, t, nil
}

func parseDate(s string) (time.Time, bool, error) {
	if v, err := time.Parse(time.DateOnly, s); err == nil {
		return v.UTC(), true, nil
	}
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return v.UTC(), false, nil
}
