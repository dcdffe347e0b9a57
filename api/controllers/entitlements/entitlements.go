package entitlements

import (
	"context"
	"net/http"

	"github.com/leaflens/leaflens-server/api/middleware"
	"github.com/leaflens/leaflens-server/api/responses"
	"github.com/leaflens/leaflens-server/api/validators"
	entsvc "github.com/leaflens/leaflens-server/internal/entitlements"
	pkgerrors "github.com/leaflens/leaflens-server/pkg/errors"
	"github.com/leaflens/leaflens-server/pkg/logger"
)

// Service is the entitlement surface the handlers depend on.
type Service interface {
	CurrentSnapshot(ctx context.Context, userID string) (entsvc.Snapshot, error)
	Gate(ctx context.Context, userID string) (entsvc.Decision, error)
	StartTrial(ctx context.Context, userID string) (entsvc.Snapshot, error)
	RecordScan(ctx context.Context, userID string) (entsvc.Snapshot, error)
}

// ScanReportRequest is the completion report the mobile client sends after a
// gated scan finishes.
type ScanReportRequest struct {
	ScanID string `json:"scanId" validate:"required,uuid4"`
}

// Me returns the caller's entitlement snapshot.
func Me(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		snapshot, err := svc.CurrentSnapshot(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// Gate returns the gating decision for the caller.
func Gate(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		decision, err := svc.Gate(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, decision)
	}
}

// StartTrial begins the caller's local free trial. Calling it again is a
// no-op that returns the current snapshot.
func StartTrial(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		snapshot, err := svc.StartTrial(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, snapshot)
	}
}

// RecordScan counts one completed gated scan against the caller's trial.
func RecordScan(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var req ScanReportRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithField(ctx, "scan_id", req.ScanID)
		}

		snapshot, err := svc.RecordScan(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}
