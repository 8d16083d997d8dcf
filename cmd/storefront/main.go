package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/shophub/storefront/internal/catalog"
	"github.com/shophub/storefront/internal/config"
	h "github.com/shophub/storefront/internal/http"
	"github.com/shophub/storefront/internal/logger"
	"github.com/shophub/storefront/internal/poller"
	"github.com/shophub/storefront/internal/publisher"
	"github.com/shophub/storefront/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l, err := logger.New("storefront", cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer l.Sync()
	zap.ReplaceGlobals(l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catalog snapshot store
	repo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		l.Fatal("Failed to open catalog database", zap.Error(err))
	}
	defer repo.Close()
	if err := repo.RunMigrations(); err != nil {
		l.Fatal("Failed to run migrations", zap.Error(err))
	}
	l.Info("Migrations completed successfully", zap.String("path", cfg.CatalogDBPath))

	// Catalog cache
	var cache catalog.Cache = catalog.NopCache{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			l.Fatal("Redis connection failed", zap.Error(err))
		}
		l.Info("Redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		cache = catalog.NewRedisCache(redisClient, cfg.CatalogCacheTTL)
	}

	catalogClient := catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeout, l)
	catalogService := catalog.NewService(catalogClient, cache, repo, l)

	// Sessions and their cart observers
	factories := []session.ObserverFactory{session.LogObserver(l)}
	var events *publisher.CartEvents
	if len(cfg.KafkaBrokers) > 0 {
		events = publisher.NewCartEvents(publisher.NewKafkaWriter(cfg.CartEventsTopic, l, cfg.KafkaBrokers...), l)
		factories = append(factories, events.Observer)
	}
	sessions := session.NewRegistry(cfg.SessionTTL, l, factories...)
	defer sessions.Close()

	if len(cfg.KafkaBrokers) > 0 {
		checkoutPoller := poller.NewPoller(
			poller.NewKafkaReader(cfg.CheckoutTopic, cfg.CheckoutConsumer, cfg.KafkaBrokers...),
			sessions,
			l,
		)
		defer checkoutPoller.Close()
		go checkoutPoller.Run(ctx)
		l.Info("Checkout poller started", zap.String("topic", cfg.CheckoutTopic))
	}

	router := h.NewRouter(
		h.RouterConfig{
			RequestTimeout:     cfg.RequestTimeout,
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		h.NewProductHandler(catalogService, cfg.RequestTimeout, l),
		h.NewCartHandler(sessions, catalogService, cfg.RequestTimeout, l),
		h.NewSessionHandler(sessions, l),
		l,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info("Storefront starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	<-ctx.Done()

	l.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("server forced to shutdown", zap.Error(err))
	}
	if events != nil {
		if err := events.Close(); err != nil {
			l.Warn("failed to flush cart events", zap.Error(err))
		}
	}

	l.Info("server exited")
}
