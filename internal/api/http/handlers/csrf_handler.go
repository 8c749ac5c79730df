package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/reeltap/internal/api/dto"
	"github.com/spec-kit/reeltap/internal/auth"
)

// CSRFHandler hands out the anti-forgery token.
type CSRFHandler struct {
	guard *auth.CSRFGuard
}

// NewCSRFHandler constructs handler.
func NewCSRFHandler(guard *auth.CSRFGuard) *CSRFHandler {
	return &CSRFHandler{guard: guard}
}

// Token handles GET /csrf-token.
func (h *CSRFHandler) Token(c *fiber.Ctx) error {
	token, err := h.guard.Ensure(c)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(dto.CSRFResponse{CSRFToken: token})
}
