package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shop_checkout/internal/service"
	"github.com/Skotchmaster/shop_checkout/internal/transport"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
)

type CartHTTP struct {
	Svc *service.CartService
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "get.cart")

	uid, err := userUUID(c)
	if err != nil {
		l.Warn("get_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	items, err := h.Svc.GetCart(ctx, uid)
	if err != nil {
		return fail(c, l, "get_cart_error", err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CartHTTP) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "add.cart")

	uid, err := userUUID(c)
	if err != nil {
		l.Warn("add_to_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var req transport.CartItemRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_to_cart_error", "status", 400, "reason", "invalid body", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}

	item, err := h.Svc.AddToCart(ctx, uid, req)
	if err != nil {
		return fail(c, l, "add_to_cart_error", err)
	}
	l.Info("add_to_cart_success", "product_id", item.ProductID)
	return c.JSON(http.StatusCreated, item)
}

func (h *CartHTTP) RemoveFromCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "delete.one.from.cart")

	uid, err := userUUID(c)
	if err != nil {
		l.Warn("delete_one_from_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	productID, err := pathUUID(c, "productId")
	if err != nil {
		l.Warn("delete_one_from_cart_error", "status", 400, "reason", "invalid product id", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid product id"})
	}

	if err := h.Svc.RemoveFromCart(ctx, uid, productID); err != nil {
		return fail(c, l, "delete_one_from_cart_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHTTP) ClearCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "clear.cart")

	uid, err := userUUID(c)
	if err != nil {
		l.Warn("clear_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	if err := h.Svc.ClearCart(ctx, uid); err != nil {
		return fail(c, l, "clear_cart_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}
