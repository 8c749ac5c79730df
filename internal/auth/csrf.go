package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/reeltap/pkg/util"
)

const csrfTokenBytes = 32

// CSRFGuard implements the double-submit cookie pattern: a mutating request must echo
// the csrfToken cookie in the X-CSRF-Token header.
type CSRFGuard struct {
	cookies Cookies
}

// NewCSRFGuard constructs the guard.
func NewCSRFGuard(cookies Cookies) *CSRFGuard {
	return &CSRFGuard{cookies: cookies}
}

// NewCSRFToken returns 32 random bytes, base64url encoded.
func NewCSRFToken() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func wellFormedCSRFToken(token string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(raw) == csrfTokenBytes
}

// Protect rejects unsafe requests whose header does not match the cookie.
func (g *CSRFGuard) Protect(c *fiber.Ctx) error {
	if isSafeMethod(c.Method()) {
		return c.Next()
	}

	cookie := c.Cookies(CSRFCookieName)
	header := c.Get(CSRFHeaderName)
	if cookie == "" || header == "" {
		return apperrors.NewForbiddenCSRF("missing csrf token")
	}
	if subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
		return apperrors.NewForbiddenCSRF("csrf token mismatch")
	}
	return c.Next()
}

// Ensure returns the session's token, minting and setting one if the browser has none.
func (g *CSRFGuard) Ensure(c *fiber.Ctx) (string, error) {
	if existing := c.Cookies(CSRFCookieName); wellFormedCSRFToken(existing) {
		g.cookies.SetCSRF(c, existing)
		return existing, nil
	}
	return g.Rotate(c)
}

// Rotate always mints a new token. Called whenever a session is created or renewed.
func (g *CSRFGuard) Rotate(c *fiber.Ctx) (string, error) {
	token, err := NewCSRFToken()
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	g.cookies.SetCSRF(c, token)
	return token, nil
}

func isSafeMethod(method string) bool {
	switch method {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions, fiber.MethodTrace:
		return true
	default:
		return false
	}
}
