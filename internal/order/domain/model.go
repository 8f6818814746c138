package domain

import (
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Order is the subset of the storefront order row this service owns: its
// status, payment status and the provider audit fields.
type Order struct {
	ID                 int64         `json:"id" gorm:"primaryKey"`
	OrderNumber        string        `json:"order_number" gorm:"type:text;not null"`
	ProviderOrderRef   string        `json:"provider_order_ref" gorm:"type:text;not null;uniqueIndex"`
	Status             Status        `json:"status" gorm:"type:text;not null"`
	PaymentStatus      PaymentStatus `json:"payment_status" gorm:"type:text;not null"`
	ProviderPaymentRef *string       `json:"provider_payment_ref,omitempty"`
	ProviderSignature  *string       `json:"-"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`

	// Transitioned is set when the call that returned this order moved it out of pending.
	Transitioned bool `json:"-" gorm:"-"`
}

func (Order) TableName() string { return "orders" }

// Transition is the target state of a guarded pending -> X update.
type Transition struct {
	Status        Status
	PaymentStatus PaymentStatus
	// StampPayment records the provider payment ref on the order.
	StampPayment bool
}

// StatusUpdate is what subscribers and the outbox see after a transition.
type StatusUpdate struct {
	OrderRef      string        `json:"order_ref"`
	OrderNumber   string        `json:"order_number"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentRef    string        `json:"payment_ref,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

func NewStatusUpdate(o *Order, at time.Time) StatusUpdate {
	update := StatusUpdate{
		OrderRef:      o.ProviderOrderRef,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		OccurredAt:    at,
	}
	if o.ProviderPaymentRef != nil {
		update.PaymentRef = *o.ProviderPaymentRef
	}
	return update
}

const EventTypeOrderPaymentUpdated = "order.payment_updated"
