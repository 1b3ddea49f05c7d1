package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	middleware "github.com/Skotchmaster/shop_checkout/pkg/middleware/auth"
)

type Deps struct {
	Payment    *PaymentHTTP
	Orders     *OrderHTTP
	PromoCodes *PromoCodeHTTP
	Cart       *CartHTTP

	Auth *middleware.AutoRefreshMiddleware

	// RateLimit is per client address, in requests per second.
	RateLimit rate.Limit
	RateBurst int

	// Ready reports whether the backing stores answer.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			}
		}
		return c.NoContent(http.StatusOK)
	})

	payment := e.Group("/payment", rateLimiter(d.RateLimit, d.RateBurst))
	payment.POST("/webhook", d.Payment.HandleWebhook)
	payment.POST("/checkout", d.Payment.CreateCheckout, d.Auth.RequireAuth)

	orders := e.Group("/orders", d.Auth.RequireAuth)
	orders.GET("", d.Orders.ListOrders)
	orders.GET("/invoices", d.Orders.ListInvoices)
	orders.GET("/:id", d.Orders.GetOrder)
	orders.POST("/:id/cancel", d.Orders.CancelOrder)
	orders.POST("/:id/return", d.Orders.ReturnOrder)
	e.POST("/orders/:id/ship", d.Orders.ShipOrder, d.Auth.RequireAdmin)

	promos := e.Group("/promocodes")
	promos.GET("/apply", d.PromoCodes.ApplyPromoCode, d.Auth.RequireAuth)
	admin := promos.Group("", d.Auth.RequireAdmin)
	admin.GET("", d.PromoCodes.ListPromoCodes)
	admin.POST("", d.PromoCodes.CreatePromoCode)
	admin.PUT("/:id", d.PromoCodes.UpdatePromoCode)
	admin.DELETE("/:id", d.PromoCodes.DeletePromoCode)

	cart := e.Group("/cart", d.Auth.RequireAuth)
	cart.GET("", d.Cart.GetCart)
	cart.POST("", d.Cart.AddToCart)
	cart.DELETE("", d.Cart.ClearCart)
	cart.DELETE("/:productId", d.Cart.RemoveFromCart)
}

func rateLimiter(limit rate.Limit, burst int) echo.MiddlewareFunc {
	if limit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	deny := func(c echo.Context, _ string, _ error) error {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
	}
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: echomw.DefaultSkipper,
		Store: echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
			Rate:      limit,
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "rate limiter identifier unavailable"})
		},
		DenyHandler: deny,
	})
}
