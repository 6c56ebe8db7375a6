// Package apperr defines the error taxonomy surfaced to API callers.
//
// Every business failure is an *Error carrying a Kind (how the caller should
// treat it) and a Code (what exactly went wrong). errors.Is compares codes, so
// a detailed error built from a sentinel with With or Wrap still matches the
// sentinel.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// With returns a copy of e with a more specific message.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Cause: e.Cause}
}

// Wrap returns a copy of e that records cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Cause: cause}
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// KindOf reports the Kind of err, KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the Code of err, "internal_error" when err is not an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}

var (
	ErrValidation           = New(KindValidation, "validation_error", "invalid request")
	ErrMissingGuestIdentity = New(KindValidation, "missing_guest_identity", "user name and email are required")
	ErrInvalidDiscount      = New(KindValidation, "invalid_discount", "discount exceeds the payable amount")

	ErrEmptyCart          = New(KindNotFound, "empty_cart", "cart is empty")
	ErrProductUnavailable = New(KindNotFound, "product_unavailable", "product not found or not available")
	ErrInvalidCoupon      = New(KindNotFound, "invalid_coupon", "invalid coupon code")
	ErrCartNotFound       = New(KindNotFound, "cart_not_found", "cart not found")
	ErrCartItemNotFound   = New(KindNotFound, "cart_item_not_found", "item not found in cart")
	ErrOrderNotFound      = New(KindNotFound, "order_not_found", "order not found")
	ErrVariantNotFound    = New(KindNotFound, "variant_not_found", "product variant not found")
	ErrUserNotFound       = New(KindNotFound, "user_not_found", "user not found")

	ErrPriceChanged       = New(KindConflict, "price_changed", "product information has changed, please review your cart")
	ErrInsufficientStock  = New(KindConflict, "insufficient_stock", "not enough stock")
	ErrCouponLimitReached = New(KindConflict, "coupon_limit_reached", "coupon usage limit has been reached")
	ErrLoyaltyBalance     = New(KindConflict, "loyalty_balance_changed", "loyalty balance changed during checkout")

	ErrInvalidPaymentMethod = New(KindState, "invalid_payment_method", "invalid payment method")
	ErrInvalidStatus        = New(KindState, "invalid_status", "invalid order status")
)
