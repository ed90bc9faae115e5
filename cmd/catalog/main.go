package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/catalog"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/handlers"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/middleware"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/platform/config"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/platform/observability"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/platform/requestctx"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/reviews"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/storage"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/view"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	startedAt := time.Now().UTC()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(cfg.LogLevel, observability.WithConsoleOutput(cfg.IsLocal()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("catalog").With(zap.String("environment", cfg.Environment))
	ctx = requestctx.WithLogger(ctx, logger)

	cat, err := catalog.LoadFile(cfg.Catalog.File)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.String("file", cfg.Catalog.File), zap.Error(err))
	}

	kv, err := storage.Open(ctx, storage.Options{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Prefix: cfg.Storage.Prefix,
	})
	if err != nil {
		logger.Fatal("failed to open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	if err := catalog.Publish(ctx, kv, cat); err != nil {
		logger.Warn("failed to publish catalog; statistics fall back to the in-process catalog", zap.Error(err))
	}

	registry := reviews.NewRegistry(ctx, kv, cat, cfg.Reviews.Scope,
		reviews.WithLogger(logger.Named("reviews")),
	)

	assets := middleware.NewAssets(cfg.Assets.Dir)
	renderer, err := view.New(cat, assets)
	if err != nil {
		logger.Fatal("failed to parse templates", zap.Error(err))
	}

	sessions := middleware.NewSessions(cfg.Session.SigningKey,
		middleware.WithSecureCookies(cfg.Session.Secure),
		middleware.WithSessionLogger(logger.Named("session")),
	)

	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(handlers.BuildInfo{
			Version:     version,
			CommitSHA:   commit,
			Environment: cfg.Environment,
			StartedAt:   startedAt,
		}),
		handlers.WithReadinessCheck("storage", kv.Ping),
		handlers.WithReadinessCheck("catalog", func(ctx context.Context) error {
			_, ok, err := catalog.ReadPublished(ctx, kv)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("catalog not published")
			}
			return nil
		}),
	)

	pages := handlers.NewPageHandlers(cat, registry, renderer, handlers.WithFlashTTL(cfg.Session.FlashTTL))
	api := handlers.NewAPIHandlers(cat, registry, kv)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithAssets(assets),
		handlers.WithPageRoutes(pages.Routes, sessions.Middleware, middleware.HTMX, middleware.LimitBody(handlers.MaxFormBodySize), middleware.CSRF),
		handlers.WithAPIRoutes(api.Routes, sessions.Middleware),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("starting http server",
			zap.String("version", version),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("reviews_scope", registry.Scope()),
			zap.Int("products", cat.Len()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
