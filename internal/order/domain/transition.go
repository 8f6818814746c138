package domain

import (
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
)

var transitions = map[string]Transition{
	paymentdomain.EventTypePaymentCaptured: {
		Status:        StatusPaid,
		PaymentStatus: PaymentStatusCompleted,
		StampPayment:  true,
	},
	paymentdomain.EventTypePaymentFailed: {
		Status:        StatusFailed,
		PaymentStatus: PaymentStatusFailed,
	},
	paymentdomain.EventTypePaymentConfirmed: {
		Status:        StatusPaid,
		PaymentStatus: PaymentStatusCompleted,
		StampPayment:  true,
	},
}

// TransitionFor maps a provider event type onto the pending order transition
// it drives. Only pending orders ever move; every other state is final here.
func TransitionFor(eventType string) (Transition, bool) {
	t, ok := transitions[eventType]
	return t, ok
}

// IsTerminal reports states a payment event may never overwrite.
func IsTerminal(status Status, paymentStatus PaymentStatus) bool {
	switch {
	case status == StatusDelivered, status == StatusCancelled:
		return true
	case paymentStatus == PaymentStatusRefunded:
		return true
	default:
		return false
	}
}
