package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Source string

const (
	SourceProviderWebhook Source = "provider_webhook"
	SourceProviderConfirm Source = "provider_confirm"
)

func (s Source) Valid() bool {
	return s == SourceProviderWebhook || s == SourceProviderConfirm
}

// EventRecord is one inbound provider notification as persisted. The payload
// is stored byte-for-byte as received and never updated.
type EventRecord struct {
	ID                 snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider           string         `json:"provider" gorm:"type:text;not null"`
	Source             Source         `json:"source" gorm:"type:text;not null;uniqueIndex:ux_payment_events_source_event"`
	EventID            string         `json:"event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_source_event"`
	EventType          string         `json:"event_type" gorm:"type:text;not null"`
	ProviderOrderRef   string         `json:"provider_order_ref" gorm:"type:text;not null"`
	ProviderPaymentRef string         `json:"provider_payment_ref" gorm:"type:text;not null"`
	Payload            datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt         time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt        *time.Time     `json:"processed_at"`
	ApplyAttempts      int            `json:"apply_attempts" gorm:"not null;default:0"`
	LastError          string         `json:"last_error,omitempty" gorm:"type:text;not null;default:''"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentCaptured  = "payment.captured"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentConfirmed = "payment.confirmed"
)

// PaymentEvent is the canonical event parsed by a provider adapter.
type PaymentEvent struct {
	Provider           string
	EventID            string
	EventType          string
	ProviderOrderRef   string
	ProviderPaymentRef string
	RawPayload         []byte
}

// Confirmation is a client-submitted proof of payment for the confirm path.
type Confirmation struct {
	Provider   string `json:"-"`
	OrderRef   string `json:"order_ref"`
	PaymentRef string `json:"payment_ref"`
	Signature  string `json:"signature"`
}

// ListEventsFilter selects audit rows. AfterID is the last id of the previous page.
type ListEventsFilter struct {
	Source   Source
	OrderRef string
	Pending  bool
	AfterID  snowflake.ID
	PageSize int
}
