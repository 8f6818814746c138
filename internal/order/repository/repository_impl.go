package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/paysync/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// ApplyTransition is a single conditional write. Of any number of concurrent
// callers for the same pending order, exactly one observes a row affected.
// A refunded payment is terminal even while the order is still pending.
func (r *repo) ApplyTransition(
	ctx context.Context,
	db *gorm.DB,
	providerOrderRef string,
	t domain.Transition,
	paymentRef string,
	signature *string,
	now time.Time,
) (int64, error) {
	var paymentRefArg *string
	if t.StampPayment && paymentRef != "" {
		paymentRefArg = &paymentRef
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?,
		     payment_status = ?,
		     provider_payment_ref = COALESCE(?, provider_payment_ref),
		     provider_signature = COALESCE(?, provider_signature),
		     updated_at = ?
		 WHERE provider_order_ref = ? AND status = ? AND payment_status <> ?`,
		string(t.Status),
		string(t.PaymentStatus),
		paymentRefArg,
		signature,
		now,
		providerOrderRef,
		string(domain.StatusPending),
		string(domain.PaymentStatusRefunded),
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) FindByProviderRef(ctx context.Context, db *gorm.DB, providerOrderRef string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_number, provider_order_ref, status, payment_status,
			provider_payment_ref, provider_signature, created_at, updated_at
		 FROM orders
		 WHERE provider_order_ref = ?
		 LIMIT 1`,
		providerOrderRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
