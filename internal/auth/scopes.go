package auth

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/dispatch-engine/pkg/util/errorutil"
)

// Scope is one permission a caller token can carry.
type Scope string

const (
	ScopeProcess    Scope = "dispatch:process"
	ScopeAuditRead  Scope = "audit:read"
	ScopeAuditWrite Scope = "audit:write"
)

// AllScopes lists every scope in a stable order.
var AllScopes = []Scope{ScopeProcess, ScopeAuditRead, ScopeAuditWrite}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	for _, known := range AllScopes {
		if s == known {
			return true
		}
	}
	return false
}

// ParseScopes splits a comma separated scope list. Unknown names are rejected.
func ParseScopes(list string) ([]Scope, error) {
	var out []Scope
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s := Scope(part)
		if !s.Valid() {
			return nil, fmt.Errorf("unknown scope %q", part)
		}
		out = append(out, s)
	}
	return out, nil
}

// RequireScope ensures the principal carries scope.
func RequireScope(scope Scope) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Has(scope) {
			return apperrors.NewForbidden("missing scope " + string(scope))
		}
		return c.Next()
	}
}
