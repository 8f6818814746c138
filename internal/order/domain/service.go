package domain

import (
	"context"
	"time"

	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound    = paymentdomain.ErrOrderNotFound
	ErrMissingOrderRef  = paymentdomain.NewError(paymentdomain.KindValidation, "missing order reference")
	ErrUnsupportedEvent = paymentdomain.NewError(paymentdomain.KindValidation, "unsupported event type")
)

type Repository interface {
	// ApplyTransition runs the guarded pending -> t update and returns rows affected.
	ApplyTransition(ctx context.Context, db *gorm.DB, providerOrderRef string, t Transition, paymentRef string, signature *string, now time.Time) (int64, error)
	FindByProviderRef(ctx context.Context, db *gorm.DB, providerOrderRef string) (*Order, error)
}

type Service interface {
	Apply(ctx context.Context, providerOrderRef, eventType, paymentRef string) (*Order, error)
	ApplyConfirmed(ctx context.Context, providerOrderRef, paymentRef, signature string) (*Order, error)
	Get(ctx context.Context, providerOrderRef string) (*Order, error)
}

// OutboxWriter enqueues a message inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx *gorm.DB, eventType string, payload any) error
}

// StatusListener receives committed transitions.
type StatusListener interface {
	Publish(update StatusUpdate)
}
