package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/reeltap/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectID string
	TokenID   string
	Claims    *Claims
}

// Authenticator validates an access token, including revocation.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*Claims, error)
}

// AuthMiddleware guards routes that need a session.
type AuthMiddleware struct {
	authenticator Authenticator
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token := AccessTokenFromRequest(c)
	if token == "" {
		return apperrors.NewUnauthorized("missing access token")
	}

	claims, err := m.authenticator.Authenticate(c.UserContext(), token)
	if err != nil {
		return err
	}

	c.Locals(principalKey, &Principal{
		SubjectID: claims.SubjectID(),
		TokenID:   claims.TokenID(),
		Claims:    claims,
	})
	return c.Next()
}

// AccessTokenFromRequest reads the access cookie, falling back to a bearer header for
// non-browser clients.
func AccessTokenFromRequest(c *fiber.Ctx) string {
	if token := c.Cookies(AccessCookieName); token != "" {
		return token
	}
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
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
