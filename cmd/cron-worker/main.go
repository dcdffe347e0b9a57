package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leaflens/leaflens-server/internal/cron"
	"github.com/leaflens/leaflens-server/internal/entitlements"
	"github.com/leaflens/leaflens-server/internal/events"
	"github.com/leaflens/leaflens-server/internal/trial"
	"github.com/leaflens/leaflens-server/pkg/config"
	"github.com/leaflens/leaflens-server/pkg/db"
	"github.com/leaflens/leaflens-server/pkg/logger"
	"github.com/leaflens/leaflens-server/pkg/metrics"
	"github.com/leaflens/leaflens-server/pkg/migrate"
	"github.com/leaflens/leaflens-server/pkg/outbox"
	"github.com/leaflens/leaflens-server/pkg/redis"
)

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

	trialService, err := trial.NewService(trial.ServiceParams{
		Store:  trial.NewStore(redisClient, cfg.Trial, logg),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create trial service", err)
		os.Exit(1)
	}

	userLock, err := entitlements.NewUserLock(redisClient, cfg.Billing.ReconcileLockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile lock", err)
		os.Exit(1)
	}

	eventsRepo := events.NewRepository(dbClient.DB())
	snapshotStore := entitlements.NewSnapshotStore(redisClient, logg)

	entitlementService, err := entitlements.NewService(entitlements.ServiceParams{
		Events:    eventsRepo,
		Trials:    trialService,
		Snapshots: snapshotStore,
		Lock:      userLock,
		Logger:    logg,
		Grace:     cfg.Billing.GracePeriod,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement service", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewEntitlementSweepJob(cron.EntitlementSweepJobParams{
		Logger:     logg,
		Events:     eventsRepo,
		Snapshots:  snapshotStore,
		Reconciler: entitlementService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement sweep job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, fmt.Sprintf("ll:cron-worker:lock:%s", cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob, retentionJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
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
