package orders

import (
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusShipping  Status = "SHIPPING"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "CASH"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

var validStatus = map[Status]bool{
	StatusPending:   true,
	StatusShipping:  true,
	StatusDelivered: true,
	StatusCancelled: true,
}

func ParseStatus(s string) (Status, error) {
	if !validStatus[Status(s)] {
		return "", apperr.ErrInvalidStatus.With("invalid order status %q", s)
	}
	return Status(s), nil
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentCash, PaymentBankTransfer:
		return PaymentMethod(s), nil
	}
	return "", apperr.ErrInvalidPaymentMethod.With("invalid payment method %q", s)
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return PaymentStatus(s), nil
	}
	return "", apperr.ErrValidation.With("invalid payment status %q", s)
}

// InitialPaymentStatus: bank transfers are paid up front, cash is collected on delivery.
func InitialPaymentStatus(m PaymentMethod) PaymentStatus {
	if m == PaymentBankTransfer {
		return PaymentPaid
	}
	return PaymentPending
}

// Transition moves the order to next. Any status may follow any other; a cash
// order that reaches DELIVERED is marked paid. Every call appends to Tracking.
func (o *Order) Transition(next Status, at time.Time) {
	o.Status = next
	if next == StatusDelivered && o.PaymentMethod == PaymentCash {
		o.PaymentStatus = PaymentPaid
	}
	o.Tracking = append(o.Tracking, Tracking{Status: next, UpdatedAt: at})
	o.UpdatedAt = at
}
