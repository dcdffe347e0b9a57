package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/leaflens/leaflens-server/internal/entitlements"
	"github.com/leaflens/leaflens-server/internal/events"
	"github.com/leaflens/leaflens-server/internal/trial"
	"github.com/leaflens/leaflens-server/pkg/config"
	"github.com/leaflens/leaflens-server/pkg/db"
	"github.com/leaflens/leaflens-server/pkg/logger"
	"github.com/leaflens/leaflens-server/pkg/migrate"
	"github.com/leaflens/leaflens-server/pkg/pubsub"
	"github.com/leaflens/leaflens-server/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "reconcile-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "reconcile-worker"

	logg = logger.New(logger.Options{
		ServiceName: "reconcile-worker",
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
			logg.Error(context.Background(), "error closing redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
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

	entitlementService, err := entitlements.NewService(entitlements.ServiceParams{
		Events:    events.NewRepository(dbClient.DB()),
		Trials:    trialService,
		Snapshots: entitlements.NewSnapshotStore(redisClient, logg),
		Lock:      userLock,
		Logger:    logg,
		Grace:     cfg.Billing.GracePeriod,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement service", err)
		os.Exit(1)
	}

	consumer, err := entitlements.NewConsumer(entitlementService, pubsubClient.ReconcileSubscription(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting reconcile worker")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "reconcile worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "reconcile worker shutting down gracefully")
}
