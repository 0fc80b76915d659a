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
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/dispatch-engine/internal/api/http"
	"github.com/spec-kit/dispatch-engine/internal/api/http/handlers"
	"github.com/spec-kit/dispatch-engine/internal/auth"
	"github.com/spec-kit/dispatch-engine/internal/bootstrap"
	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/config"
	"github.com/spec-kit/dispatch-engine/internal/observability"
	"github.com/spec-kit/dispatch-engine/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to wire dispatch engine", zap.Error(err))
	}
	defer engine.Close()

	purgeSchedule, err := worker.ParseSchedule(cfg.Ledger.PurgeSchedule)
	if err != nil {
		logger.Fatal("failed to parse purge schedule", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTLMinutes)
	if cfg.Auth.Disabled {
		logger.Warn("caller token checks disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  cfg.App.RequestTimeout(),
		WriteTimeout: cfg.App.RequestTimeout(),
	})
	httptransport.RegisterMiddlewares(app, logger, engine.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, engine.Health, engine.Metrics),
		Dispatch:       handlers.NewDispatchHandler(engine.Dispatch),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, cfg.Auth.Disabled),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	g.Go(func() error {
		worker.RunLedgerPurge(gctx, engine.Ledger, cfg.Ledger.Retention(), purgeSchedule, logger)
		return nil
	})
	if cfg.Rules.Watch && cfg.Rules.Path != "" {
		g.Go(func() error {
			return catalog.Watch(gctx, cfg.Rules.Path, engine.Rules, logger)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}
