package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/leaflens/leaflens-server/api/responses"
	"github.com/leaflens/leaflens-server/pkg/config"
	"github.com/leaflens/leaflens-server/pkg/db"
	pkgerrors "github.com/leaflens/leaflens-server/pkg/errors"
	"github.com/leaflens/leaflens-server/pkg/logger"
	"github.com/leaflens/leaflens-server/pkg/redis"
)

const readinessTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-LeafLens-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when the backing stores answer.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbPinger db.Pinger, redisPinger redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-LeafLens-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if dbPinger != nil {
			if err := dbPinger.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
				return
			}
		}
		if redisPinger != nil {
			if err := redisPinger.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
