package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leaflens/leaflens-server/api/controllers"
	entitlementcontrollers "github.com/leaflens/leaflens-server/api/controllers/entitlements"
	webhookcontrollers "github.com/leaflens/leaflens-server/api/controllers/webhooks"
	"github.com/leaflens/leaflens-server/api/middleware"
	"github.com/leaflens/leaflens-server/pkg/config"
	"github.com/leaflens/leaflens-server/pkg/db"
	"github.com/leaflens/leaflens-server/pkg/logger"
	"github.com/leaflens/leaflens-server/pkg/metrics"
	"github.com/leaflens/leaflens-server/pkg/redis"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config             *config.Config
	Logger             *logger.Logger
	DBPinger           db.Pinger
	RedisPinger        redis.Pinger
	EntitlementService entitlementcontrollers.Service
	WebhookService     webhookcontrollers.BillingIngestService
	WebhookGuard       webhookcontrollers.BillingWebhookGuard
	BillingMetrics     *metrics.BillingMetrics
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DBPinger, params.RedisPinger))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/billing", webhookcontrollers.BillingWebhook(
			params.WebhookService,
			params.WebhookGuard,
			cfg.Billing.WebhookSecret,
			params.BillingMetrics,
			logg,
		))
	})

	r.Route("/api/v1/entitlements", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/me", entitlementcontrollers.Me(params.EntitlementService, logg))
		r.Get("/me/gate", entitlementcontrollers.Gate(params.EntitlementService, logg))
		r.Post("/me/trial", entitlementcontrollers.StartTrial(params.EntitlementService, logg))
		r.Post("/me/scans", entitlementcontrollers.RecordScan(params.EntitlementService, logg))
	})

	return r
}
