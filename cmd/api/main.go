package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/popcatch-backend/api/routes"
	"github.com/angelmondragon/popcatch-backend/internal/discounts"
	"github.com/angelmondragon/popcatch-backend/internal/eligibility"
	"github.com/angelmondragon/popcatch-backend/internal/impressions"
	"github.com/angelmondragon/popcatch-backend/internal/popups"
	"github.com/angelmondragon/popcatch-backend/internal/storefront"
	"github.com/angelmondragon/popcatch-backend/internal/stores"
	"github.com/angelmondragon/popcatch-backend/internal/submissions"
	"github.com/angelmondragon/popcatch-backend/internal/webhooks"
	"github.com/angelmondragon/popcatch-backend/pkg/config"
	"github.com/angelmondragon/popcatch-backend/pkg/db"
	"github.com/angelmondragon/popcatch-backend/pkg/env"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
	"github.com/angelmondragon/popcatch-backend/pkg/metrics"
	"github.com/angelmondragon/popcatch-backend/pkg/migrate"
	"github.com/angelmondragon/popcatch-backend/pkg/outbox"
	"github.com/angelmondragon/popcatch-backend/pkg/redis"
	"github.com/angelmondragon/popcatch-backend/pkg/shopify"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		_ = dbClient.Close()
		os.Exit(1)
	}

	defer func() {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	popupMetrics := metrics.NewPopupMetrics(registry)

	handler, err := buildRouter(cfg, logg, dbClient, redisClient, registry, popupMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	id := env.Get("DYNO", "local")
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
		return
	case <-runCtx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
	}
}

func buildRouter(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, registry *prometheus.Registry, popupMetrics *metrics.PopupMetrics) (http.Handler, error) {
	storeService, err := stores.NewService(stores.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}

	popupRepo := popups.NewRepository(dbClient.DB())
	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	popupService, err := popups.NewService(popupRepo, dbClient, events, cfg.Popup.RecordMaxRetries)
	if err != nil {
		return nil, err
	}

	opts := []shopify.Option{shopify.WithTimeout(cfg.Shopify.RequestTimeout)}
	if cfg.Shopify.AdminBaseURL != "" {
		opts = append(opts, shopify.WithBaseURL(cfg.Shopify.AdminBaseURL))
	}
	shopifyClient, err := shopify.NewClient(cfg.Shopify.APIVersion, opts...)
	if err != nil {
		return nil, err
	}

	issuer, err := discounts.NewIssuer(shopifyClient, discounts.Options{
		UsageLimit: cfg.Popup.DiscountUsageLimit,
		Generate:   discounts.RandomCode(cfg.Popup.CodePrefix),
	}, logg, popupMetrics)
	if err != nil {
		return nil, err
	}

	recorder, err := submissions.NewRecorder(popupRepo, dbClient, events, logg, popupMetrics, submissions.Options{
		MaxRetries: cfg.Popup.RecordMaxRetries,
	})
	if err != nil {
		return nil, err
	}

	counter, err := impressions.NewCounter(redisClient)
	if err != nil {
		return nil, err
	}

	storefrontService, err := storefront.NewService(storefront.Params{
		Stores:      storeService,
		Popups:      popupRepo,
		Issuer:      issuer,
		Recorder:    recorder,
		Impressions: counter,
		Policy:      eligibility.Policy{EmptyPageConditions: eligibility.ParseEmptyConditionsPolicy(cfg.Popup.EmptyPageConditions)},
		Logger:      logg,
		Metrics:     popupMetrics,
	})
	if err != nil {
		return nil, err
	}

	hooks, err := webhooks.NewService(stores.NewRepository(dbClient.DB()), popupRepo, dbClient, logg, cfg.Popup.RecordMaxRetries)
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(routes.Deps{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Cache:       redisClient,
		Stores:      storeService,
		Popups:      popupService,
		Storefront:  storefrontService,
		Webhooks:    hooks,
		Gatherer:    registry,
		HTTPMetrics: metrics.NewHTTPMetrics(registry),
	}), nil
}
