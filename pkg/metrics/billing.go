package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook ingestion results.
const (
	WebhookResultAccepted         = "accepted"
	WebhookResultDuplicate        = "duplicate"
	WebhookResultInvalidSignature = "invalid_signature"
	WebhookResultMalformed        = "malformed"
	WebhookResultError            = "error"
)

// Reconcile outcomes.
const (
	ReconcileOutcomeApplied = "applied"
	ReconcileOutcomeNoop    = "noop"
	ReconcileOutcomeError   = "error"
)

// BillingMetrics records webhook ingestion and entitlement reconciliation.
type BillingMetrics struct {
	webhookTotal     *prometheus.CounterVec
	reconcileTotal   *prometheus.CounterVec
	reconcileSeconds *prometheus.HistogramVec
}

// NewBillingMetrics registers the billing metrics on the provided registerer.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	webhookTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Billing webhook deliveries by ingestion result.",
	}, []string{"result"})
	reconcileTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_reconcile_total",
		Help: "Entitlement reconciliation runs by outcome.",
	}, []string{"outcome"})
	reconcileSeconds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "entitlement_reconcile_duration_seconds",
		Help:    "Duration of entitlement reconciliation runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(webhookTotal, reconcileTotal, reconcileSeconds)
	return &BillingMetrics{
		webhookTotal:     webhookTotal,
		reconcileTotal:   reconcileTotal,
		reconcileSeconds: reconcileSeconds,
	}
}

// IncWebhook increments the webhook counter for the given result.
func (b *BillingMetrics) IncWebhook(result string) {
	if b == nil || b.webhookTotal == nil {
		return
	}
	b.webhookTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveReconcile records one reconciliation run.
func (b *BillingMetrics) ObserveReconcile(outcome string, duration time.Duration) {
	if b == nil || b.reconcileTotal == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	b.reconcileTotal.WithLabelValues(outcome).Inc()
	b.reconcileSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}
