package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/shop_checkout/pkg/authclient"
	"github.com/Skotchmaster/shop_checkout/pkg/tokens"
)

var secret = []byte("mw-secret")

type fakeRefresher struct {
	resp *authclient.RefreshResponse
	err  error
}

func (f *fakeRefresher) RefreshTokens(context.Context, string, string) (*authclient.RefreshResponse, error) {
	return f.resp, f.err
}

func newMW(r Refresher) *AutoRefreshMiddleware {
	return NewAutoRefreshMiddleware(tokens.NewKeyCache(tokens.StaticKey(secret), time.Minute), r)
}

func run(t *testing.T, mw echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, echo.Context, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	return rec, c, err
}

func token(t *testing.T, role string, exp time.Time) string {
	t.Helper()
	tok, err := tokens.NewAccessToken(secret, "11111111-1111-1111-1111-111111111111", "u@x.io", role, exp)
	require.NoError(t, err)
	return tok
}

func TestRequireAuth_Bearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, "user", time.Now().Add(time.Minute)))

	rec, c, err := run(t, newMW(nil).RequireAuth, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u@x.io", c.Get("email"))
	assert.Equal(t, "user", c.Get("role"))
}

func TestRequireAuth_Missing(t *testing.T) {
	_, _, err := run(t, newMW(nil).RequireAuth, httptest.NewRequest(http.MethodGet, "/", nil))
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestRequireAdmin_RejectsUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: accessCookie, Value: token(t, "user", time.Now().Add(time.Minute))})

	_, _, err := run(t, newMW(nil).RequireAdmin, req)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusForbidden, he.Code)
}

func TestRequireAuth_RefreshesExpiredCookie(t *testing.T) {
	fresh := token(t, "user", time.Now().Add(time.Hour))
	r := &fakeRefresher{resp: &authclient.RefreshResponse{
		AccessToken:  fresh,
		RefreshToken: "r2",
		AccessExp:    time.Now().Add(time.Hour).Unix(),
		RefreshExp:   time.Now().Add(24 * time.Hour).Unix(),
	}}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: accessCookie, Value: token(t, "user", time.Now().Add(-time.Minute))})
	req.AddCookie(&http.Cookie{Name: refreshCookie, Value: "r1"})

	rec, c, err := run(t, newMW(r).RequireAuth, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", c.Get("user_id"))
	assert.Contains(t, rec.Header().Values("Set-Cookie")[0], accessCookie+"="+fresh)
}

func TestRequireAuth_RefreshFailure(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: accessCookie, Value: token(t, "user", time.Now().Add(-time.Minute))})
	req.AddCookie(&http.Cookie{Name: refreshCookie, Value: "r1"})

	_, _, err := run(t, newMW(&fakeRefresher{err: errors.New("boom")}).RequireAuth, req)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}
