package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/popcatch-backend/internal/cron"
	"github.com/angelmondragon/popcatch-backend/pkg/config"
	"github.com/angelmondragon/popcatch-backend/pkg/db"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
	"github.com/angelmondragon/popcatch-backend/pkg/metrics"
	"github.com/angelmondragon/popcatch-backend/pkg/migrate"
	"github.com/angelmondragon/popcatch-backend/pkg/outbox"
	"github.com/angelmondragon/popcatch-backend/pkg/redis"
)

const lockKeyFormat = "pc:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	registry, err := buildRegistry(cfg, logg, dbClient, jobMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	// The lock outlives one cycle so a slow run is never overlapped.
	lock, err := cron.NewRedisLock(redisClient, fmt.Sprintf(lockKeyFormat, envOrLocal(cfg.App.Env)), 2*cfg.Cron.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, jobMetrics *metrics.JobMetrics) (*cron.Registry, error) {
	events := outbox.NewRepository(dbClient.DB())
	dlq := outbox.NewDLQRepository(dbClient.DB())

	outboxJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:    "outbox-retention",
		Days:    cfg.Cron.OutboxRetentionDays,
		DB:      dbClient,
		Prune:   events.DeletePublishedBefore,
		Logger:  logg,
		Metrics: jobMetrics,
	})
	if err != nil {
		return nil, err
	}
	dlqJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:    "dlq-retention",
		Days:    cfg.Cron.DLQRetentionDays,
		DB:      dbClient,
		Prune:   dlq.DeleteFailedBefore,
		Logger:  logg,
		Metrics: jobMetrics,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(outboxJob, dlqJob), nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
