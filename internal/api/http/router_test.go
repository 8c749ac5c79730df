package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/reeltap/internal/api/http/handlers"
	"github.com/spec-kit/reeltap/internal/auth"
	"github.com/spec-kit/reeltap/internal/events"
	"github.com/spec-kit/reeltap/internal/repository"
	"github.com/spec-kit/reeltap/internal/service"
)

type switchableStore struct {
	repository.RevocationStore
	down bool
}

func (s *switchableStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s.down {
		return false, errors.New("dial tcp: connection refused")
	}
	return s.RevocationStore.IsRevoked(ctx, jti)
}

func (s *switchableStore) Ping(ctx context.Context) error {
	if s.down {
		return errors.New("down")
	}
	return nil
}

func newTestAPI(t *testing.T) (*fiber.App, *switchableStore) {
	t.Helper()
	store := &switchableStore{RevocationStore: repository.NewMemoryRevocationStore()}

	tokens, err := auth.NewTokenManager(auth.TokenConfig{Secret: "router-test", Issuer: "reeltap-api", Audience: "reeltap-web"})
	require.NoError(t, err)

	svc, err := service.NewAuthService(service.SessionConfig{
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        time.Hour,
		BcryptCost:        bcrypt.MinCost,
		RotateRefresh:     true,
		RevocationTimeout: time.Second,
	}, service.AuthDependencies{
		Users:       repository.NewMemoryUserRepository(),
		Revocations: store,
		Tokens:      tokens,
		Dispatcher:  events.NewInMemoryDispatcher(),
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)

	cookies := auth.NewCookies(false)
	guard := auth.NewCSRFGuard(cookies)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), nil, MiddlewareConfig{Timeout: 5 * time.Second})
	RegisterRoutes(app, RouteConfig{
		Prefix:         "/api",
		Health:         handlers.NewHealthHandler("reeltap-api", "test", map[string]handlers.Pinger{"revocation": store}),
		Auth:           handlers.NewAuthHandler(svc, cookies, guard),
		CSRF:           handlers.NewCSRFHandler(guard),
		CSRFGuard:      guard,
		AuthMiddleware: auth.NewAuthMiddleware(svc),
	})
	return app, store
}

// browser keeps cookies between calls and echoes the csrf cookie in the header.
type browser struct {
	t       *testing.T
	app     *fiber.App
	cookies map[string]string
	noCSRF  bool
}

func newBrowser(t *testing.T, app *fiber.App) *browser {
	return &browser{t: t, app: app, cookies: map[string]string{}}
}

func (b *browser) snapshot() map[string]string {
	return clone(b.cookies)
}

func clone(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (b *browser) do(method, path string, body any) (*http.Response, map[string]any) {
	b.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(b.t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if csrf := b.cookies[auth.CSRFCookieName]; csrf != "" && !b.noCSRF {
		req.Header.Set(auth.CSRFHeaderName, csrf)
	}

	resp, err := b.app.Test(req, 5000)
	require.NoError(b.t, err)

	for _, ck := range resp.Cookies() {
		if ck.Value == "" || (!ck.Expires.IsZero() && ck.Expires.Before(time.Now())) {
			delete(b.cookies, ck.Name)
			continue
		}
		b.cookies[ck.Name] = ck.Value
	}

	payload := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &payload)
	}
	return resp, payload
}

func (b *browser) primeCSRF() string {
	b.t.Helper()
	resp, body := b.do(fiber.MethodGet, "/api/csrf-token", nil)
	require.Equal(b.t, fiber.StatusOK, resp.StatusCode)
	token, _ := body["csrfToken"].(string)
	require.NotEmpty(b.t, token)
	require.Equal(b.t, token, resp.Header.Get(auth.CSRFHeaderName))
	return token
}

func register(b *browser, email string) map[string]any {
	b.t.Helper()
	b.primeCSRF()
	resp, body := b.do(fiber.MethodPost, "/api/auth/register", map[string]string{
		"name": "Ada", "email": email, "password": "Secret123!",
	})
	require.Equal(b.t, fiber.StatusCreated, resp.StatusCode, body)
	return body["user"].(map[string]any)
}

func TestScenario_RegisterMeLogoutMe(t *testing.T) {
	app, _ := newTestAPI(t)
	b := newBrowser(t, app)

	user := register(b, "a@x.com")
	require.NotEmpty(t, b.cookies[auth.AccessCookieName])
	require.NotEmpty(t, b.cookies[auth.RefreshCookieName])

	resp, body := b.do(fiber.MethodGet, "/api/auth/me", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	me := body["user"].(map[string]any)
	assert.Equal(t, user["id"], me["id"])
	assert.Equal(t, "a@x.com", me["email"])

	old := b.snapshot()
	resp, _ = b.do(fiber.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, b.cookies[auth.AccessCookieName])
	assert.Empty(t, b.cookies[auth.RefreshCookieName])

	b.cookies = clone(old)
	resp, body = b.do(fiber.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error"])

	b.cookies = clone(old)
	resp, _ = b.do(fiber.MethodPost, "/api/auth/refresh", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutTwiceIsIdempotent(t *testing.T) {
	app, _ := newTestAPI(t)
	b := newBrowser(t, app)
	register(b, "twice@x.com")
	old := b.snapshot()

	for i := 0; i < 2; i++ {
		b.cookies = clone(old)
		resp, body := b.do(fiber.MethodPost, "/api/auth/logout", nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "logged_out", body["status"])

		cleared := map[string]bool{}
		for _, ck := range resp.Cookies() {
			if ck.Value == "" && ck.Expires.Before(time.Now()) {
				cleared[ck.Name] = true
			}
		}
		assert.True(t, cleared[auth.AccessCookieName])
		assert.True(t, cleared[auth.RefreshCookieName])
	}
}

func TestCSRF_RejectsMissingOrMismatchedHeaderDespiteSession(t *testing.T) {
	app, _ := newTestAPI(t)
	b := newBrowser(t, app)
	register(b, "csrf@x.com")

	b.noCSRF = true
	resp, body := b.do(fiber.MethodPost, "/api/auth/refresh", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "CSRF_FORBIDDEN", body["error"])

	req := httptest.NewRequest(fiber.MethodPost, "/api/auth/refresh", nil)
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	req.Header.Set(auth.CSRFHeaderName, "forged")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	b.noCSRF = false
	resp, _ = b.do(fiber.MethodPost, "/api/auth/refresh", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRefreshWithoutCookieIsUnauthorized(t *testing.T) {
	app, _ := newTestAPI(t)
	b := newBrowser(t, app)
	b.primeCSRF()

	resp, body := b.do(fiber.MethodPost, "/api/auth/refresh", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error"])
}

func TestRefreshRotatesCookies(t *testing.T) {
	app, _ := newTestAPI(t)
	b := newBrowser(t, app)
	register(b, "rotate@x.com")
	before := b.snapshot()

	resp, body := b.do(fiber.MethodPost, "/api/auth/refresh", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["accessExpiresAt"])
	assert.NotEqual(t, before[auth.AccessCookieName], b.cookies[auth.AccessCookieName])
	assert.NotEqual(t, before[auth.RefreshCookieName], b.cookies[auth.RefreshCookieName])
	assert.NotEqual(t, before[auth.CSRFCookieName], b.cookies[auth.CSRFCookieName])

	resp, _ = b.do(fiber.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRevocationOutageIsServiceUnavailable(t *testing.T) {
	app, store := newTestAPI(t)
	b := newBrowser(t, app)
	register(b, "down@x.com")

	store.down = true
	resp, body := b.do(fiber.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "REVOCATION_UNAVAILABLE", body["error"])

	resp, _ = b.do(fiber.MethodGet, "/api/health/ready", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestRegisterAndLoginErrors(t *testing.T) {
	app, _ := newTestAPI(t)
	b := newBrowser(t, app)
	register(b, "dup@x.com")

	resp, body := b.do(fiber.MethodPost, "/api/auth/register", map[string]string{
		"name": "Ada", "email": "dup@x.com", "password": "Secret123!",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", body["error"])

	resp, body = b.do(fiber.MethodPost, "/api/auth/register", map[string]string{
		"name": "", "email": "nope", "password": "short",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	details := body["details"].(map[string]any)
	assert.Contains(t, details, "name")
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")

	resp, body = b.do(fiber.MethodPost, "/api/auth/login", map[string]string{
		"email": "dup@x.com", "password": "Wrong1234",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", body["error"])

	resp, _ = b.do(fiber.MethodPost, "/api/auth/login", map[string]string{
		"email": "dup@x.com", "password": "Secret123!",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMeWithoutCookiesIsUnauthorized(t *testing.T) {
	app, _ := newTestAPI(t)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/auth/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestUnknownRouteRendersJSONError(t *testing.T) {
	app, _ := newTestAPI(t)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body["error"])
}

func TestHealthLive(t *testing.T) {
	app, _ := newTestAPI(t)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/health/live", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}
