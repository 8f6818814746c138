package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Adapter knows one provider's header name and envelope layout.
type Adapter interface {
	Provider() string
	SignatureHeader() string
	Parse(payload []byte) (*PaymentEvent, error)
	Supports(eventType string) bool
}

type Repository interface {
	ExistsEvent(ctx context.Context, db *gorm.DB, source Source, eventID string) (bool, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, source Source, eventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
	RecordAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error
	ListPending(ctx context.Context, db *gorm.DB, receivedBefore time.Time, maxAttempts int, limit int) ([]EventRecord, error)
	List(ctx context.Context, db *gorm.DB, filter ListEventsFilter) ([]EventRecord, error)
}

// EventStore is the deduplicating append-only event log.
type EventStore interface {
	HasProcessed(ctx context.Context, source Source, eventID string) (bool, error)
	Record(ctx context.Context, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, id snowflake.ID) error
	MarkFailed(ctx context.Context, id snowflake.ID, reason string) error
	ListPending(ctx context.Context, limit int) ([]EventRecord, error)
	List(ctx context.Context, filter ListEventsFilter) ([]EventRecord, error)
}

// WebhookResult describes how an authentic push delivery was handled.
type WebhookResult struct {
	EventID   string
	EventType string
	Duplicate bool
	Ignored   bool
	Applied   bool
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*WebhookResult, error)
}

type VerificationService interface {
	VerifyPayment(ctx context.Context, req Confirmation) error
}

// FailureRecorder is told about every signature verification failure.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, provider, source string)
}
