package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/dispatch-engine/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated transport client.
type Principal struct {
	ClientID string
	Scopes   []Scope
}

// Has reports whether the principal was granted scope.
func (p *Principal) Has(scope Scope) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// AuthMiddleware validates bearer tokens.
type AuthMiddleware struct {
	tokens   *TokenManager
	disabled bool
}

// NewAuthMiddleware constructs middleware. A disabled middleware admits
// every request as a local client holding all scopes.
func NewAuthMiddleware(tokens *TokenManager, disabled bool) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, disabled: disabled}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	if m.disabled {
		c.Locals(principalKey, &Principal{ClientID: "local", Scopes: AllScopes})
		return c.Next()
	}

	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{ClientID: claims.ClientID, Scopes: claims.Scopes})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
