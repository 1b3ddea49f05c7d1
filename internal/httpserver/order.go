package httpserver

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/service"
	"github.com/Skotchmaster/shop_checkout/internal/transport"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
)

type OrderHTTP struct {
	Svc *service.OrderService
}

func (h *OrderHTTP) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.list")

	email, err := userEmail(c)
	if err != nil {
		l.Warn("list_orders_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var q transport.ListQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		l.Warn("list_orders_error", "status", 400, "reason", "invalid query", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid query"})
	}

	page, err := h.Svc.ListOrders(ctx, email, q)
	if err != nil {
		return fail(c, l, "list_orders_error", err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *OrderHTTP) ListInvoices(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.invoices")

	email, err := userEmail(c)
	if err != nil {
		l.Warn("list_invoices_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var q transport.ListQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		l.Warn("list_invoices_error", "status", 400, "reason", "invalid query", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid query"})
	}

	page, err := h.Svc.ListInvoices(ctx, email, q)
	if err != nil {
		return fail(c, l, "list_invoices_error", err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *OrderHTTP) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get")

	email, err := userEmail(c)
	if err != nil {
		l.Warn("get_order_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		l.Warn("get_order_error", "status", 400, "reason", "invalid id", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	order, err := h.Svc.GetOrder(ctx, id, email)
	if err != nil {
		return fail(c, l, "get_order_error", err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHTTP) CancelOrder(c echo.Context) error {
	return h.customerAction(c, "order.cancel", h.Svc.Cancel)
}

func (h *OrderHTTP) ReturnOrder(c echo.Context) error {
	return h.customerAction(c, "order.return", h.Svc.Return)
}

func (h *OrderHTTP) ShipOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.ship")

	id, err := pathUUID(c, "id")
	if err != nil {
		l.Warn("ship_order_error", "status", 400, "reason", "invalid id", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	order, err := h.Svc.Ship(ctx, id)
	if err != nil {
		return fail(c, l, "ship_order_error", err)
	}
	l.Info("ship_order_success", "order_id", id)
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHTTP) customerAction(c echo.Context, name string, action func(ctx context.Context, userID string, id uuid.UUID) (*models.Order, error)) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", name)

	uid, err := userID(c)
	if err != nil {
		l.Warn("order_action_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		l.Warn("order_action_error", "status", 400, "reason", "invalid id", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	order, err := action(ctx, uid, id)
	if err != nil {
		return fail(c, l, "order_action_error", err)
	}
	l.Info("order_action_success", "order_id", id, "status", order.Status)
	return c.JSON(http.StatusOK, order)
}
