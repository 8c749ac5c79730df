package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/reeltap/pkg/util"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("AUTH_ACCESS_TOKEN_TTL_MINUTES", "")
	t.Setenv("AUTH_REFRESH_TOKEN_TTL_HOURS", "")
	t.Setenv("REVOCATION_BACKEND", "")
	t.Setenv("AUTH_COOKIE_SECURE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Env)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL())
	assert.Equal(t, RevocationBackendRedis, cfg.Revocation.Backend)
	assert.Equal(t, 2*time.Second, cfg.Revocation.Timeout())
	assert.True(t, cfg.Auth.RotateRefreshTokens)
	assert.False(t, cfg.Auth.CookieSecure)
}

func TestLoadAPI_RequiresSigningSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := LoadAPI()
	require.Error(t, err)

	var cfgErr *util.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "AUTH_JWT_SECRET", cfgErr.Key)
}

func TestLoadAPI_RejectsMemoryRevocationInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("REVOCATION_BACKEND", "memory")

	_, err := LoadAPI()
	var cfgErr *util.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "REVOCATION_BACKEND", cfgErr.Key)
}

func TestLoadAPI_ProductionRequiresDurableUserStore(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("REVOCATION_BACKEND", "redis")
	t.Setenv("POSTGRES_DSN", "")

	_, err := LoadAPI()
	var cfgErr *util.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "POSTGRES_DSN", cfgErr.Key)

	t.Setenv("POSTGRES_DSN", "postgres://u:p@db:5432/reeltap")
	_, err = LoadAPI()
	require.NoError(t, err)
}

func TestLoadAPI_DevelopmentAllowsMemoryUserStore(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("REVOCATION_BACKEND", "memory")
	t.Setenv("POSTGRES_DSN", "")

	_, err := LoadAPI()
	require.NoError(t, err)
}

func TestLoadAPI_PostgresBackendNeedsDSN(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("REVOCATION_BACKEND", "postgres")
	t.Setenv("POSTGRES_DSN", "")

	_, err := LoadAPI()
	require.Error(t, err)
}

func TestLoadEdge_ProductionWithoutUpstreamRefusesToStart(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("EDGE_UPSTREAM_URL", "")

	_, err := LoadEdge()
	var cfgErr *util.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "EDGE_UPSTREAM_URL", cfgErr.Key)
}

func TestLoadEdge_DevelopmentFallsBackToDefaultUpstream(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("EDGE_UPSTREAM_URL", "   ")
	t.Setenv("EDGE_API_PREFIX", "api/")

	cfg, err := LoadEdge()
	require.NoError(t, err)
	assert.Equal(t, DefaultUpstreamURL, cfg.Edge.UpstreamURL)
	assert.Equal(t, "/api", cfg.Edge.APIPrefix)
}

func TestLoadEdge_ProductionWithUpstream(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("EDGE_UPSTREAM_URL", "http://api.internal:8080/")

	cfg, err := LoadEdge()
	require.NoError(t, err)
	assert.Equal(t, "http://api.internal:8080", cfg.Edge.UpstreamURL)
	assert.True(t, cfg.Auth.CookieSecure)
}

func TestNormalizeUpstream(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain", raw: "http://backend:8080", want: "http://backend:8080"},
		{name: "trailing slash", raw: "https://backend/", want: "https://backend"},
		{name: "whitespace", raw: "  http://10.0.0.2:9000 ", want: "http://10.0.0.2:9000"},
		{name: "no scheme", raw: "backend:8080", wantErr: true},
		{name: "ftp", raw: "ftp://backend", wantErr: true},
		{name: "with path", raw: "http://backend/api", wantErr: true},
		{name: "empty host", raw: "http://", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeUpstream(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "/api", NormalizePrefix(""))
	assert.Equal(t, "/api", NormalizePrefix("/api/"))
	assert.Equal(t, "/v2", NormalizePrefix("v2"))
}
