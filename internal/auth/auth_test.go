package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/dispatch-engine/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "dispatch-engine", 5)
	token, exp, err := tm.GenerateToken("voice-gateway", []Scope{ScopeProcess})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, time.Minute)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "voice-gateway", claims.ClientID)
	assert.Equal(t, []Scope{ScopeProcess}, claims.Scopes)
}

func TestParseTokenRejects(t *testing.T) {
	tm := NewTokenManager("secret", "dispatch-engine", 5)

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := NewTokenManager("other", "dispatch-engine", 5).GenerateToken("c", nil)
		require.NoError(t, err)
		_, err = tm.ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, _, err := NewTokenManager("secret", "someone-else", 5).GenerateToken("c", nil)
		require.NoError(t, err)
		_, err = tm.ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		claims := &Claims{ClientID: "c", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "dispatch-engine",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = tm.ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("unknown scope is not minted", func(t *testing.T) {
		_, _, err := tm.GenerateToken("c", []Scope{"admin"})
		assert.Error(t, err)
	})
}

func TestParseScopes(t *testing.T) {
	scopes, err := ParseScopes("dispatch:process, audit:read,")
	require.NoError(t, err)
	assert.Equal(t, []Scope{ScopeProcess, ScopeAuditRead}, scopes)

	_, err = ParseScopes("dispatch:process,root")
	assert.Error(t, err)
}

func newProtectedApp(m *AuthMiddleware) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		de := apperrors.ToDomainError(err)
		return c.Status(de.HTTPStatus).SendString(de.Code)
	}})
	app.Get("/audit", m.Handle, RequireScope(ScopeAuditRead), func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.ClientID)
	})
	return app
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", "dispatch-engine", 5)
	app := newProtectedApp(NewAuthMiddleware(tm, false))

	reader, _, err := tm.GenerateToken("ops-console", []Scope{ScopeAuditRead})
	require.NoError(t, err)
	writer, _, err := tm.GenerateToken("voice-gateway", []Scope{ScopeProcess})
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"missing scope", "Bearer " + writer, http.StatusForbidden},
		{"granted", "Bearer " + reader, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/audit", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	app := newProtectedApp(NewAuthMiddleware(nil, true))
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/audit", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
