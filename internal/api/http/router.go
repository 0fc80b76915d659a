package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-engine/internal/api/http/handlers"
	"github.com/spec-kit/dispatch-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Dispatch       *handlers.DispatchHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	v1 := app.Group("/v1", cfg.AuthMiddleware.Handle)
	v1.Post("/process", auth.RequireScope(auth.ScopeProcess), cfg.Dispatch.Process)

	v1.Get("/audit/:request_id", auth.RequireScope(auth.ScopeAuditRead), cfg.Dispatch.AuditTrail)
	v1.Post("/audit/:request_id/corrections", auth.RequireScope(auth.ScopeAuditWrite), cfg.Dispatch.CorrectAudit)
	v1.Get("/idempotency/:key", auth.RequireScope(auth.ScopeAuditRead), cfg.Dispatch.InspectKey)
}
