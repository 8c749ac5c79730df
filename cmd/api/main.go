package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/reeltap/internal/api/http"
	"github.com/spec-kit/reeltap/internal/api/http/handlers"
	"github.com/spec-kit/reeltap/internal/auth"
	"github.com/spec-kit/reeltap/internal/config"
	"github.com/spec-kit/reeltap/internal/events"
	"github.com/spec-kit/reeltap/internal/observability"
	"github.com/spec-kit/reeltap/internal/persistence"
	"github.com/spec-kit/reeltap/internal/repository"
	"github.com/spec-kit/reeltap/internal/service"
	"github.com/spec-kit/reeltap/internal/worker"
)

func main() {
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	logger = logger.With(zap.String("service", cfg.App.Name+"-api"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.Enabled() {
		if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var redis *persistence.Redis
	if cfg.Revocation.Backend == config.RevocationBackendRedis {
		redis = persistence.NewRedis(ctx, cfg.Redis, cfg.Revocation.Timeout(), logger)
		defer redis.Close()
	}

	var users repository.UserRepository
	if pg.Enabled() {
		users = repository.NewUserRepository(pg.Pool)
	} else {
		logger.Warn("POSTGRES_DSN not set, accounts are kept in memory")
		users = repository.NewMemoryUserRepository()
	}
	revocations := buildRevocationStore(cfg.Revocation.Backend, pg, redis)
	logger.Info("revocation store selected", zap.String("backend", cfg.Revocation.Backend))

	metrics := observability.NewMetrics("reeltap_api")
	dispatcher := events.NewInMemoryDispatcher()
	service.NewAuditService(dispatcher, logger).RegisterHandlers()

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		logger.Fatal("failed to build token manager", zap.Error(err))
	}

	authService, err := service.NewAuthService(service.SessionConfig{
		AccessTTL:         cfg.Auth.AccessTTL(),
		RefreshTTL:        cfg.Auth.RefreshTTL(),
		BcryptCost:        cfg.Auth.BcryptCost,
		RotateRefresh:     cfg.Auth.RotateRefreshTokens,
		RevocationTimeout: cfg.Revocation.Timeout(),
	}, service.AuthDependencies{
		Users:       users,
		Revocations: revocations,
		Tokens:      tokens,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		logger.Fatal("failed to build auth service", zap.Error(err))
	}

	purger := worker.NewRevocationPurger(revocations, cfg.Revocation.PurgeInterval(), cfg.Revocation.Timeout(), logger, metrics)
	go purger.Run(ctx)

	cookies := auth.NewCookies(cfg.Auth.CookieSecure)
	csrfGuard := auth.NewCSRFGuard(cookies)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name + "-api",
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:       cfg.App.RequestTimeout(),
		ExposeDetails: !cfg.App.IsProduction(),
	})

	readiness := map[string]handlers.Pinger{
		"postgres":   pg,
		"revocation": revocations,
	}
	if redis != nil {
		readiness["redis"] = redis
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Prefix:         config.DefaultAPIPrefix,
		Health:         handlers.NewHealthHandler(cfg.App.Name+"-api", cfg.App.Version, readiness),
		Auth:           handlers.NewAuthHandler(authService, cookies, csrfGuard),
		CSRF:           handlers.NewCSRFHandler(csrfGuard),
		CSRFGuard:      csrfGuard,
		AuthMiddleware: auth.NewAuthMiddleware(authService),
		Metrics:        metrics,
	})

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func buildRevocationStore(backend string, pg *persistence.Postgres, redis *persistence.Redis) repository.RevocationStore {
	switch backend {
	case config.RevocationBackendPostgres:
		return repository.NewPostgresRevocationStore(pg.Pool)
	case config.RevocationBackendMemory:
		return repository.NewMemoryRevocationStore()
	default:
		return repository.NewRedisRevocationStore(redis.Client)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

