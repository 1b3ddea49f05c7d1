package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shop_checkout/pkg/authclient"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
	"github.com/Skotchmaster/shop_checkout/pkg/tokens"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	RefreshTokens(ctx context.Context, refreshToken, accessToken string) (*authclient.RefreshResponse, error)
}

type AutoRefreshMiddleware struct {
	Keys      *tokens.KeyCache
	Refresher Refresher
}

func NewAutoRefreshMiddleware(keys *tokens.KeyCache, refresher Refresher) *AutoRefreshMiddleware {
	return &AutoRefreshMiddleware{Keys: keys, Refresher: refresher}
}

type ValidatorFunc func(claims *tokens.AccessClaims) error

func (m *AutoRefreshMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, nil)
}

func (m *AutoRefreshMiddleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, func(claims *tokens.AccessClaims) error {
		if claims.Role != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return nil
	})
}

func (m *AutoRefreshMiddleware) requireAuthWithValidator(next echo.HandlerFunc, validator ValidatorFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		l := logging.FromContext(ctx).With("middleware", "auth")

		raw, fromCookie := accessToken(c)
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		secret, err := m.Keys.Get(ctx)
		if err != nil {
			l.Error("signing_key_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}

		claims, err := tokens.AccessClaimsFromToken(raw, secret)
		if err == nil {
			return m.admit(c, next, claims, validator)
		}

		// bearer tokens are never refreshed on behalf of the caller
		if !errors.Is(err, jwt.ErrTokenExpired) || !fromCookie || m.Refresher == nil {
			clearAuthCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		refresh, rErr := c.Cookie(refreshCookie)
		if rErr != nil || refresh.Value == "" {
			clearAuthCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
		}

		resp, err := m.Refresher.RefreshTokens(ctx, refresh.Value, raw)
		if err != nil {
			l.Warn("token_refresh_failed", "status", 401, "error", err)
			clearAuthCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh failed")
		}

		c.SetCookie(createCookie(accessCookie, resp.AccessToken, time.Unix(resp.AccessExp, 0)))
		c.SetCookie(createCookie(refreshCookie, resp.RefreshToken, time.Unix(resp.RefreshExp, 0)))

		claims, err = tokens.AccessClaimsFromToken(resp.AccessToken, secret)
		if err != nil {
			// the auth service may have rotated the key
			m.Keys.Invalidate()
			clearAuthCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "new access token invalid")
		}
		return m.admit(c, next, claims, validator)
	}
}

func (m *AutoRefreshMiddleware) admit(c echo.Context, next echo.HandlerFunc, claims *tokens.AccessClaims, validator ValidatorFunc) error {
	if validator != nil {
		if err := validator(claims); err != nil {
			return err
		}
	}
	c.Set("user_id", claims.Subject)
	c.Set("email", claims.Email)
	c.Set("role", claims.Role)
	return next(c)
}

func accessToken(c echo.Context) (string, bool) {
	if ck, err := c.Cookie(accessCookie); err == nil && ck.Value != "" {
		return ck.Value, true
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token), false
	}
	return "", false
}

func createCookie(name, value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func clearAuthCookies(c echo.Context) {
	for _, name := range []string{accessCookie, refreshCookie} {
		c.SetCookie(&http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	}
}
