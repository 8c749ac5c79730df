package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/spec-kit/reeltap/pkg/util"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	// DefaultUpstreamURL is where the edge forwards API traffic outside production
	// when no upstream is configured.
	DefaultUpstreamURL = "http://127.0.0.1:8080"
	DefaultAPIPrefix   = "/api"
)

// Revocation store backends.
const (
	RevocationBackendRedis    = "redis"
	RevocationBackendPostgres = "postgres"
	RevocationBackendMemory   = "memory"
)

// Config aggregates runtime configuration for both binaries.
type Config struct {
	App        AppConfig
	Edge       EdgeConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Revocation RevocationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// EdgeConfig controls the browser-facing proxy.
type EdgeConfig struct {
	Host string
	Port string
	// UpstreamURL is the normalized backend base address: scheme://host[:port], no
	// trailing slash. Empty until ResolveUpstream has run.
	UpstreamURL            string
	RawUpstreamURL         string
	APIPrefix              string
	ClientDir              string
	UpstreamTimeoutSeconds int
	DialTimeoutSeconds     int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	Audience              string
	AccessTokenTTLMinutes int
	RefreshTokenTTLHours  int
	BcryptCost            int
	RotateRefreshTokens   bool
	CookieSecure          bool
}

// RevocationConfig selects and tunes the revocation store.
type RevocationConfig struct {
	Backend              string
	TimeoutMillis        int
	PurgeIntervalMinutes int
}

// Load reads configuration from environment variables, applying defaults where possible.
// It performs no binary-specific validation; use LoadAPI or LoadEdge for that.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	env := strings.ToLower(getEnv("APP_ENV", EnvDevelopment))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "reeltap"),
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Edge: EdgeConfig{
			Host:                   getEnv("EDGE_HOST", "0.0.0.0"),
			Port:                   getEnv("EDGE_PORT", "3000"),
			RawUpstreamURL:         os.Getenv("EDGE_UPSTREAM_URL"),
			APIPrefix:              getEnv("EDGE_API_PREFIX", DefaultAPIPrefix),
			ClientDir:              getEnv("EDGE_CLIENT_DIR", "./client/dist"),
			UpstreamTimeoutSeconds: getEnvAsInt("EDGE_UPSTREAM_TIMEOUT_SECONDS", 10),
			DialTimeoutSeconds:     getEnvAsInt("EDGE_DIAL_TIMEOUT_SECONDS", 3),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             os.Getenv("AUTH_JWT_SECRET"),
			Issuer:                getEnv("AUTH_ISSUER", "reeltap-api"),
			Audience:              getEnv("AUTH_AUDIENCE", "reeltap-web"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 15),
			RefreshTokenTTLHours:  getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_HOURS", 7*24),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			RotateRefreshTokens:   getEnvAsBool("AUTH_ROTATE_REFRESH_TOKENS", true),
			CookieSecure:          getEnvAsBool("AUTH_COOKIE_SECURE", env == EnvProduction),
		},
		Revocation: RevocationConfig{
			Backend:              strings.ToLower(getEnv("REVOCATION_BACKEND", RevocationBackendRedis)),
			TimeoutMillis:        getEnvAsInt("REVOCATION_TIMEOUT_MS", 2000),
			PurgeIntervalMinutes: getEnvAsInt("REVOCATION_PURGE_INTERVAL_MINUTES", 10),
		},
	}

	return cfg, nil
}

// LoadAPI loads configuration for the backend API and enforces its startup contract.
func LoadAPI() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEdge loads configuration for the edge proxy and resolves the upstream address.
func LoadEdge() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveUpstream(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateAPI checks settings the API cannot run without.
func (c *Config) ValidateAPI() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return apperrors.NewConfigError("AUTH_JWT_SECRET", "signing secret must be set")
	}
	switch c.Revocation.Backend {
	case RevocationBackendRedis, RevocationBackendMemory:
	case RevocationBackendPostgres:
		if c.Postgres.DSN == "" {
			return apperrors.NewConfigError("REVOCATION_BACKEND", "postgres backend requires POSTGRES_DSN")
		}
	default:
		return apperrors.NewConfigError("REVOCATION_BACKEND", fmt.Sprintf("unknown backend %q", c.Revocation.Backend))
	}
	if c.App.IsProduction() && c.Revocation.Backend == RevocationBackendMemory {
		return apperrors.NewConfigError("REVOCATION_BACKEND", "memory backend is not durable and cannot be used in production")
	}
	if c.App.IsProduction() && strings.TrimSpace(c.Postgres.DSN) == "" {
		return apperrors.NewConfigError("POSTGRES_DSN", "in-memory user store is not durable and cannot be used in production")
	}
	if c.Auth.AccessTokenTTLMinutes <= 0 || c.Auth.RefreshTokenTTLHours <= 0 {
		return apperrors.NewConfigError("AUTH_*_TTL", "token lifetimes must be positive")
	}
	return nil
}

// ResolveUpstream is the single place an optional upstream address becomes a concrete
// one. Production refuses to guess; other environments fall back to DefaultUpstreamURL.
func (c *Config) ResolveUpstream() error {
	raw := strings.TrimSpace(c.Edge.RawUpstreamURL)
	if raw == "" {
		if c.App.IsProduction() {
			return apperrors.NewConfigError("EDGE_UPSTREAM_URL", "upstream address is required in production")
		}
		raw = DefaultUpstreamURL
	}

	normalized, err := NormalizeUpstream(raw)
	if err != nil {
		return apperrors.NewConfigError("EDGE_UPSTREAM_URL", err.Error())
	}
	c.Edge.UpstreamURL = normalized
	c.Edge.APIPrefix = NormalizePrefix(c.Edge.APIPrefix)
	return nil
}

// NormalizeUpstream validates an absolute http(s) base address and strips any trailing
// slash, path, query or fragment.
func NormalizeUpstream(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("host is missing")
	}
	if strings.Trim(u.Path, "/") != "" {
		return "", fmt.Errorf("upstream must be a base address without a path, got %q", u.Path)
	}
	return u.Scheme + "://" + u.Host, nil
}

// NormalizePrefix turns "", "api", "/api/" into "/api"-style prefixes.
func NormalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return DefaultAPIPrefix
	}
	return "/" + prefix
}

// IsProduction reports whether the process runs with production semantics.
func (a AppConfig) IsProduction() bool {
	return a.Env == EnvProduction
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Addr returns the edge bind address.
func (e EdgeConfig) Addr() string {
	return fmt.Sprintf("%s:%s", e.Host, e.Port)
}

// UpstreamTimeout bounds a single forwarded request.
func (e EdgeConfig) UpstreamTimeout() time.Duration {
	if e.UpstreamTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(e.UpstreamTimeoutSeconds) * time.Second
}

// DialTimeout bounds connection establishment to the upstream.
func (e EdgeConfig) DialTimeout() time.Duration {
	if e.DialTimeoutSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(e.DialTimeoutSeconds) * time.Second
}

func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshTokenTTLHours) * time.Hour
}

// Timeout bounds every revocation store call.
func (r RevocationConfig) Timeout() time.Duration {
	if r.TimeoutMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(r.TimeoutMillis) * time.Millisecond
}

func (r RevocationConfig) PurgeInterval() time.Duration {
	if r.PurgeIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(r.PurgeIntervalMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
