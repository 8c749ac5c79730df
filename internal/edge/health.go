package edge

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const probeBudget = 2 * time.Second

// HealthHandler reports edge liveness together with upstream reachability. It never
// requires authentication and never fails because the upstream is down.
type HealthHandler struct {
	serviceName string
	version     string
	upstream    string
	probePath   string
	client      *fasthttp.Client
}

// NewHealthHandler builds the handler. probePath is requested on the upstream, e.g.
// "/api/health/live".
func NewHealthHandler(serviceName, version string, p *Proxy, probePath string) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		upstream:    p.upstream,
		probePath:   probePath,
		client:      p.client,
	}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": h.serviceName,
		"version": h.version,
		"upstream": fiber.Map{
			"address":   h.upstream,
			"reachable": h.reachable(),
		},
	})
}

func (h *HealthHandler) reachable() bool {
	req := fasthttp.AcquireRequest()
	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(res)

	req.SetRequestURI(h.upstream + h.probePath)
	req.Header.SetMethod(fasthttp.MethodGet)
	if err := h.client.DoTimeout(req, res, probeBudget); err != nil {
		return false
	}
	return res.StatusCode() < fasthttp.StatusInternalServerError
}
