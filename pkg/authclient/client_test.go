package authclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/u1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"u1","email":"a@b.c","role":"user"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	u, err := c.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", u.Email)

	_, err = c.GetUser(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRefreshTokens_SendsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("refreshToken")
		if err != nil || ck.Value != "r1" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"a2","refresh_token":"r2","access_exp":1,"refresh_exp":2}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL+"/").RefreshTokens(context.Background(), "r1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a2", resp.AccessToken)
	assert.Equal(t, "r2", resp.RefreshToken)

	_, err = NewClient(srv.URL).RefreshTokens(context.Background(), "bad", "a1")
	require.Error(t, err)
}
