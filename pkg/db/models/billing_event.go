package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/leaflens/leaflens-server/pkg/enums"
)

// BillingEvent is one inbound billing lifecycle notification. Rows are
// immutable once inserted; event_id is the provider-assigned dedup key.
type BillingEvent struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID        string                   `gorm:"column:event_id;not null;uniqueIndex:ux_billing_events_event_id"`
	UserID         string                   `gorm:"column:user_id;not null;index:ix_billing_events_user_occurred,priority:1"`
	Type           enums.BillingEventType   `gorm:"column:type;not null"`
	ProductID      string                   `gorm:"column:product_id;not null"`
	EntitlementIDs pq.StringArray           `gorm:"column:entitlement_ids;type:text[]"`
	OccurredAt     time.Time                `gorm:"column:occurred_at;not null;index:ix_billing_events_user_occurred,priority:2"`
	ExpiresAt      *time.Time               `gorm:"column:expires_at"`
	IsTrialPeriod  bool                     `gorm:"column:is_trial_period;not null;default:false"`
	AutoRenewing   bool                     `gorm:"column:auto_renewing;not null;default:false"`
	Store          enums.BillingStore       `gorm:"column:store;not null"`
	Environment    enums.BillingEnvironment `gorm:"column:environment;not null"`
	Price          decimal.Decimal          `gorm:"column:price;type:numeric(12,2)"`
	Currency       string                   `gorm:"column:currency"`
	Raw            json.RawMessage          `gorm:"column:raw;type:jsonb"`
	ReceivedAt     time.Time                `gorm:"column:received_at;autoCreateTime"`
}
