package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contesthub/contesthub/internal/domain"
)

var testIdentity = domain.Identity{UserID: "user-1", Username: "alice", UserImage: "https://img/alice.png"}

func TestTokenVerifier_RoundTrip(t *testing.T) {
	v := NewTokenVerifier("test-secret")

	token, err := v.IssueToken(testIdentity, time.Hour)
	require.NoError(t, err)

	ident, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, testIdentity, ident)
}

func TestTokenVerifier_RejectsBadTokens(t *testing.T) {
	v := NewTokenVerifier("test-secret")

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not-a-token")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenVerifier("other-secret")
		token, err := other.IssueToken(testIdentity, time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := v.IssueToken(testIdentity, -time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("missing identity claims", func(t *testing.T) {
		token, err := v.IssueToken(domain.Identity{UserID: "user-1"}, time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}

func TestTokenFromRequest(t *testing.T) {
	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer abc123")
		assert.Equal(t, "abc123", TokenFromRequest(req))
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token=abc123", nil)
		assert.Equal(t, "abc123", TokenFromRequest(req))
	})

	t.Run("absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		assert.Empty(t, TokenFromRequest(req))
	})
}

func TestAuthMiddleware(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	e := echo.New()

	handler := Auth(v)(func(c echo.Context) error {
		ident, ok := IdentityFromContext(c)
		require.True(t, ok)
		return c.String(http.StatusOK, ident.Username)
	})

	t.Run("valid token passes through", func(t *testing.T) {
		token, err := v.IssueToken(testIdentity, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := httptest.NewRecorder()

		err = handler(e.NewContext(req, rec))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", rec.Body.String())
	})

	t.Run("missing token is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		err := handler(e.NewContext(req, rec))
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})

	t.Run("invalid token is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer junk")
		rec := httptest.NewRecorder()

		err := handler(e.NewContext(req, rec))
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})
}
