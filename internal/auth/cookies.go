package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Cookie and header names shared by the API and the browser client.
const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
	CSRFCookieName    = "csrfToken"
	CSRFHeaderName    = "X-CSRF-Token"
)

// Cookies writes session cookies. Every cookie is host-only (no Domain) with Path=/,
// so the edge can relay it to the browser unchanged.
type Cookies struct {
	Secure bool
}

// NewCookies builds a cookie writer.
func NewCookies(secure bool) Cookies {
	return Cookies{Secure: secure}
}

// SetAccess stores the access token in an HttpOnly cookie.
func (w Cookies) SetAccess(c *fiber.Ctx, token string, expiresAt time.Time) {
	w.set(c, AccessCookieName, token, expiresAt, true)
}

// SetRefresh stores the refresh token in an HttpOnly cookie.
func (w Cookies) SetRefresh(c *fiber.Ctx, token string, expiresAt time.Time) {
	w.set(c, RefreshCookieName, token, expiresAt, true)
}

// SetCSRF stores the anti-forgery token in a script-readable session cookie and
// mirrors it in the response header.
func (w Cookies) SetCSRF(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:        CSRFCookieName,
		Value:       token,
		Path:        "/",
		Secure:      w.Secure,
		HTTPOnly:    false,
		SameSite:    fiber.CookieSameSiteLaxMode,
		SessionOnly: true,
	})
	c.Set(CSRFHeaderName, token)
}

// ClearSession expires both credential cookies.
func (w Cookies) ClearSession(c *fiber.Ctx) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0).UTC(),
			Secure:   w.Secure,
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
}

func (w Cookies) set(c *fiber.Ctx, name, value string, expiresAt time.Time, httpOnly bool) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expiresAt,
		Secure:   w.Secure,
		HTTPOnly: httpOnly,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
