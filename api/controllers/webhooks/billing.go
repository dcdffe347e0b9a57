package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/leaflens/leaflens-server/api/responses"
	billingwebhook "github.com/leaflens/leaflens-server/internal/webhooks/billing"
	"github.com/leaflens/leaflens-server/pkg/db/models"
	pkgerrors "github.com/leaflens/leaflens-server/pkg/errors"
	"github.com/leaflens/leaflens-server/pkg/logger"
	"github.com/leaflens/leaflens-server/pkg/metrics"
)

const signatureHeader = "X-Signature"

type BillingIngestService interface {
	Ingest(ctx context.Context, event models.BillingEvent) (billingwebhook.Outcome, error)
}

type BillingWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// BillingWebhook ingests billing-platform lifecycle events. A 500 tells the
// provider to redeliver; everything else is final from its point of view.
func BillingWebhook(svc BillingIngestService, guard BillingWebhookGuard, secret string, billingMetrics *metrics.BillingMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if !billingwebhook.VerifySignature(secret, payload, r.Header.Get(signatureHeader)) {
			billingMetrics.IncWebhook(metrics.WebhookResultInvalidSignature)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		event, err := billingwebhook.ParsePayload(payload)
		if err != nil {
			billingMetrics.IncWebhook(metrics.WebhookResultMalformed)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if guard != nil {
			seen, err := guard.CheckAndMark(ctx, event.EventID)
			if err != nil {
				// Redis being down must not drop billing events; the
				// unique index still dedupes.
				if logg != nil {
					logg.Warn(ctx, "webhook idempotency check failed; falling through to store")
				}
			} else if seen {
				billingMetrics.IncWebhook(metrics.WebhookResultDuplicate)
				responses.WriteSuccess(w, map[string]string{"status": string(billingwebhook.OutcomeDuplicate)})
				return
			}
		}

		outcome, err := svc.Ingest(ctx, event)
		if err != nil {
			if guard != nil {
				_ = guard.Delete(ctx, event.EventID)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": string(outcome)})
	}
}
