package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shop_checkout/internal/service"
	"github.com/Skotchmaster/shop_checkout/internal/transport"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
)

type PromoCodeHTTP struct {
	Svc *service.PromoCodeService
}

func (h *PromoCodeHTTP) ListPromoCodes(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "promocode.list")

	codes, err := h.Svc.List(ctx)
	if err != nil {
		return fail(c, l, "list_promo_error", err)
	}
	return c.JSON(http.StatusOK, codes)
}

// ApplyPromoCode previews ?code= against ?amount= (minor units).
func (h *PromoCodeHTTP) ApplyPromoCode(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "promocode.apply")

	amount, err := strconv.ParseInt(c.QueryParam("amount"), 10, 64)
	if err != nil {
		l.Warn("apply_promo_error", "status", 400, "reason", "invalid amount", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "amount must be an integer in minor units"})
	}

	res, err := h.Svc.Apply(ctx, c.QueryParam("code"), amount)
	if err != nil {
		return fail(c, l, "apply_promo_error", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *PromoCodeHTTP) CreatePromoCode(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "promocode.create")

	var req transport.PromoCodeRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_promo_error", "status", 400, "reason", "invalid body", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}

	p, err := h.Svc.Create(ctx, req)
	if err != nil {
		return fail(c, l, "create_promo_error", err)
	}
	l.Info("create_promo_success", "promo_code", p.Code)
	return c.JSON(http.StatusCreated, p)
}

func (h *PromoCodeHTTP) UpdatePromoCode(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "promocode.update")

	id, err := pathUUID(c, "id")
	if err != nil {
		l.Warn("update_promo_error", "status", 400, "reason", "invalid id", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	var req transport.PromoCodeUpdate
	if err := c.Bind(&req); err != nil {
		l.Warn("update_promo_error", "status", 400, "reason", "invalid body", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}

	p, err := h.Svc.Update(ctx, id, req)
	if err != nil {
		return fail(c, l, "update_promo_error", err)
	}
	l.Info("update_promo_success", "promo_code", p.Code)
	return c.JSON(http.StatusOK, p)
}

func (h *PromoCodeHTTP) DeletePromoCode(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "promocode.delete")

	id, err := pathUUID(c, "id")
	if err != nil {
		l.Warn("delete_promo_error", "status", 400, "reason", "invalid id", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	if err := h.Svc.Delete(ctx, id); err != nil {
		return fail(c, l, "delete_promo_error", err)
	}
	l.Info("delete_promo_success", "promo_id", id)
	return c.NoContent(http.StatusNoContent)
}
