package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leaflens/leaflens-server/api/routes"
	"github.com/leaflens/leaflens-server/internal/entitlements"
	"github.com/leaflens/leaflens-server/internal/events"
	"github.com/leaflens/leaflens-server/internal/trial"
	billingwebhook "github.com/leaflens/leaflens-server/internal/webhooks/billing"
	"github.com/leaflens/leaflens-server/pkg/config"
	"github.com/leaflens/leaflens-server/pkg/db"
	"github.com/leaflens/leaflens-server/pkg/logger"
	"github.com/leaflens/leaflens-server/pkg/metrics"
	"github.com/leaflens/leaflens-server/pkg/migrate"
	"github.com/leaflens/leaflens-server/pkg/outbox"
	"github.com/leaflens/leaflens-server/pkg/redis"
)

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

	billingMetrics := metrics.NewBillingMetrics(prometheus.DefaultRegisterer)

	eventsRepo := events.NewRepository(dbClient.DB())

	webhookService, err := billingwebhook.NewService(billingwebhook.ServiceParams{
		Events:            eventsRepo,
		Outbox:            outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           billingMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := billingwebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "billing")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

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
		Events:    eventsRepo,
		Trials:    trialService,
		Snapshots: entitlements.NewSnapshotStore(redisClient, logg),
		Lock:      userLock,
		Logger:    logg,
		Metrics:   billingMetrics,
		Grace:     cfg.Billing.GracePeriod,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:             cfg,
			Logger:             logg,
			DBPinger:           dbClient,
			RedisPinger:        redisClient,
			EntitlementService: entitlementService,
			WebhookService:     webhookService,
			WebhookGuard:       webhookGuard,
			BillingMetrics:     billingMetrics,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
