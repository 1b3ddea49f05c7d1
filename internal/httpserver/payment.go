package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shop_checkout/internal/service"
	"github.com/Skotchmaster/shop_checkout/internal/transport"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
)

const maxWebhookBody = 1 << 20

type PaymentHTTP struct {
	Checkout *service.CheckoutService
	Carts    *service.CartService
	Webhook  *service.WebhookProcessor
}

// CreateCheckout opens a payment session for the caller's cart. Items in the
// body replace the stored cart.
func (h *PaymentHTTP) CreateCheckout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.checkout")

	cartID, err := userUUID(c)
	if err != nil {
		l.Warn("checkout_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var req transport.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("checkout_error", "status", 400, "reason", "invalid body", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if email, err := userEmail(c); err == nil {
		req.Email = email
	}

	if len(req.Items) == 0 {
		req.Items, err = h.Carts.CheckoutItems(ctx, cartID)
		if err != nil {
			return fail(c, l, "checkout_error", err)
		}
	}

	sess, err := h.Checkout.Checkout(ctx, cartID, req)
	if err != nil {
		return fail(c, l, "checkout_error", err)
	}

	l.Info("checkout_success", "order_id", sess.OrderID, "session_id", sess.SessionID)
	return c.JSON(http.StatusCreated, sess)
}

// HandleWebhook receives processor notifications. The body is read raw because the
// signature covers the exact bytes.
func (h *PaymentHTTP) HandleWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.webhook")

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		l.Warn("webhook_error", "status", 400, "reason", "unreadable body", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}

	err = h.Webhook.Handle(ctx, payload, c.Request().Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, service.ErrSignature), errors.Is(err, service.ErrInFlight):
		return fail(c, l, "webhook_error", err)
	default:
		// anything else asks the processor to redeliver later
		l.Error("webhook_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
