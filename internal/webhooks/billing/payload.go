package billingwebhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/leaflens/leaflens-server/pkg/db/models"
	"github.com/leaflens/leaflens-server/pkg/enums"
	pkgerrors "github.com/leaflens/leaflens-server/pkg/errors"
)

// WebhookPayload is the provider's native envelope.
type WebhookPayload struct {
	APIVersion string       `json:"api_version"`
	Event      WebhookEvent `json:"event"`
}

// WebhookEvent mirrors the provider event schema; millisecond timestamps,
// uppercase type/store/environment strings.
type WebhookEvent struct {
	Type                     string   `json:"type"`
	ID                       string   `json:"id"`
	AppUserID                string   `json:"app_user_id"`
	ProductID                string   `json:"product_id"`
	EntitlementIDs           []string `json:"entitlement_ids"`
	PeriodType               string   `json:"period_type"`
	EventTimestampMs         int64    `json:"event_timestamp_ms"`
	PurchasedAtMs            int64    `json:"purchased_at_ms"`
	ExpirationAtMs           int64    `json:"expiration_at_ms"`
	Environment              string   `json:"environment"`
	Store                    string   `json:"store"`
	AutoRenewing             *bool    `json:"auto_renewing"`
	IsTrialConversion        bool     `json:"is_trial_conversion"`
	CountryCode              string   `json:"country_code"`
	Currency                 string   `json:"currency"`
	Price                    float64  `json:"price"`
	PriceInPurchasedCurrency float64  `json:"price_in_purchased_currency"`
}

// ParsePayload decodes and validates the raw webhook body into the semantic
// billing event model. Malformed bodies come back as VALIDATION_ERROR.
func ParsePayload(raw []byte) (models.BillingEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.BillingEvent{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}
	return payload.Event.toModel(raw)
}

func (e WebhookEvent) toModel(raw []byte) (models.BillingEvent, error) {
	if strings.TrimSpace(e.ID) == "" {
		return models.BillingEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if strings.TrimSpace(e.AppUserID) == "" {
		return models.BillingEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "app user id is required")
	}
	if strings.TrimSpace(e.Type) == "" {
		return models.BillingEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "event type is required")
	}
	if e.EventTimestampMs <= 0 && e.PurchasedAtMs <= 0 {
		return models.BillingEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "event timestamp is required")
	}

	occurredMs := e.EventTimestampMs
	if occurredMs <= 0 {
		occurredMs = e.PurchasedAtMs
	}

	store, err := enums.ParseBillingStore(strings.ToUpper(strings.TrimSpace(e.Store)))
	if err != nil {
		return models.BillingEvent{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported store")
	}
	environment, err := enums.ParseBillingEnvironment(strings.ToUpper(strings.TrimSpace(e.Environment)))
	if err != nil {
		return models.BillingEvent{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported environment")
	}

	event := models.BillingEvent{
		EventID:        e.ID,
		UserID:         e.AppUserID,
		Type:           enums.NormalizeBillingEventType(e.Type),
		ProductID:      e.ProductID,
		EntitlementIDs: pq.StringArray(e.EntitlementIDs),
		OccurredAt:     time.UnixMilli(occurredMs).UTC(),
		IsTrialPeriod:  strings.EqualFold(e.PeriodType, "TRIAL") || e.IsTrialConversion,
		Store:          store,
		Environment:    environment,
		Price:          decimal.NewFromFloat(e.Price),
		Currency:       e.Currency,
		Raw:            json.RawMessage(raw),
	}
	if e.ExpirationAtMs > 0 {
		expires := time.UnixMilli(e.ExpirationAtMs).UTC()
		event.ExpiresAt = &expires
	}
	if e.AutoRenewing != nil {
		event.AutoRenewing = *e.AutoRenewing
	} else {
		// provider omits the flag on events where renewal is implied
		event.AutoRenewing = event.Type.GrantsEntitlement()
	}
	return event, nil
}
