package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/reeltap/internal/edge"
	"github.com/spec-kit/reeltap/internal/observability"
)

// EdgeRouteConfig bundles dependencies of the browser-facing server.
type EdgeRouteConfig struct {
	Prefix    string
	Proxy     *edge.Proxy
	Health    *edge.HealthHandler
	Metrics   *observability.Metrics
	ClientDir string
}

// RegisterEdgeRoutes wires the edge: its own health and metrics, the API forward and
// the SPA fallback, in that order.
func RegisterEdgeRoutes(app *fiber.App, cfg EdgeRouteConfig) {
	app.Get("/health", cfg.Health.Health)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Handler())
	}

	app.All(cfg.Prefix, cfg.Proxy.Handler)
	app.All(cfg.Prefix+"/*", cfg.Proxy.Handler)

	if cfg.ClientDir != "" {
		edge.RegisterSPA(app, cfg.ClientDir)
	}
}
