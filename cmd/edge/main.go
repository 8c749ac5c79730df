package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/reeltap/internal/api/http"
	"github.com/spec-kit/reeltap/internal/config"
	"github.com/spec-kit/reeltap/internal/edge"
	"github.com/spec-kit/reeltap/internal/observability"
)

func main() {
	cfg, err := config.LoadEdge()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	logger = logger.With(zap.String("service", cfg.App.Name+"-edge"))

	metrics := observability.NewMetrics("reeltap_edge")
	proxy := edge.NewProxy(edge.ProxyConfig{
		UpstreamURL: cfg.Edge.UpstreamURL,
		Prefix:      cfg.Edge.APIPrefix,
		Timeout:     cfg.Edge.UpstreamTimeout(),
		DialTimeout: cfg.Edge.DialTimeout(),
	}, logger, metrics)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name + "-edge",
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		ExposeDetails: !cfg.App.IsProduction(),
	})
	httptransport.RegisterEdgeRoutes(app, httptransport.EdgeRouteConfig{
		Prefix:    cfg.Edge.APIPrefix,
		Proxy:     proxy,
		Health:    edge.NewHealthHandler(cfg.App.Name+"-edge", cfg.App.Version, proxy, cfg.Edge.APIPrefix+"/health/live"),
		Metrics:   metrics,
		ClientDir: cfg.Edge.ClientDir,
	})

	go func() {
		logger.Info("edge listening",
			zap.String("addr", cfg.Edge.Addr()),
			zap.String("upstream", proxy.Upstream()))
		if err := app.Listen(cfg.Edge.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
