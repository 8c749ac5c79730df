package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/reeltap/internal/api/dto"
	"github.com/spec-kit/reeltap/internal/auth"
	"github.com/spec-kit/reeltap/internal/service"
	apperrors "github.com/spec-kit/reeltap/pkg/util"
)

// AuthHandler exposes the session endpoints.
type AuthHandler struct {
	auth    *service.AuthService
	cookies auth.Cookies
	csrf    *auth.CSRFGuard
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, cookies auth.Cookies, csrf *auth.CSRFGuard) *AuthHandler {
	return &AuthHandler{auth: authService, cookies: cookies, csrf: csrf}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	session, err := h.auth.Register(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	if err := h.startSession(c, session); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sessionResponse(session))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	session, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	if err := h.startSession(c, session); err != nil {
		return err
	}
	return c.JSON(sessionResponse(session))
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	session, err := h.auth.Refresh(c.UserContext(), c.Cookies(auth.RefreshCookieName))
	if err != nil {
		return err
	}
	if err := h.startSession(c, session); err != nil {
		return err
	}
	return c.JSON(sessionResponse(session))
}

// Me handles GET /auth/me. Runs behind the auth middleware.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("not authenticated")
	}
	user, err := h.auth.CurrentUser(c.UserContext(), principal.SubjectID)
	if err != nil {
		return err
	}
	return c.JSON(dto.UserEnvelope{User: dto.NewUserResponse(user)})
}

// Logout handles POST /auth/logout. Cookies are cleared even when revocation fails.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	access := auth.AccessTokenFromRequest(c)
	refresh := c.Cookies(auth.RefreshCookieName)
	h.cookies.ClearSession(c)

	if err := h.auth.Logout(c.UserContext(), access, refresh); err != nil {
		return err
	}
	return c.JSON(dto.StatusResponse{Status: "logged_out"})
}

func (h *AuthHandler) startSession(c *fiber.Ctx, session *service.Session) error {
	h.cookies.SetAccess(c, session.AccessToken, session.AccessExpiresAt)
	if session.RefreshToken != "" {
		h.cookies.SetRefresh(c, session.RefreshToken, session.RefreshExpiresAt)
	}
	_, err := h.csrf.Rotate(c)
	return err
}

func sessionResponse(session *service.Session) dto.SessionResponse {
	return dto.SessionResponse{
		User:            dto.NewUserResponse(session.User),
		AccessExpiresAt: session.AccessExpiresAt,
	}
}
