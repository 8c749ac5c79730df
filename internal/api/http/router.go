package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/reeltap/internal/api/http/handlers"
	"github.com/spec-kit/reeltap/internal/auth"
	"github.com/spec-kit/reeltap/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Prefix         string
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	CSRF           *handlers.CSRFHandler
	CSRFGuard      *auth.CSRFGuard
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes. Every route under the prefix passes the CSRF guard
// before any authentication happens.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Handler())
	}

	api := app.Group(cfg.Prefix, cfg.CSRFGuard.Protect)
	api.Get("/health/live", cfg.Health.Live)
	api.Get("/health/ready", cfg.Health.Ready)
	api.Get("/csrf-token", cfg.CSRF.Token)

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)
	authGroup.Post("/logout", cfg.Auth.Logout)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)
}
