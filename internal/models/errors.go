package models

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInsufficientInventory = errors.New("not enough tickets available")
	ErrDuplicateCouponCode   = errors.New("coupon code already exists")
	ErrDuplicateInventory    = errors.New("inventory already provisioned for this time slot and sku")
	ErrOrderNotPending       = errors.New("order is not pending")
	ErrPaymentNotCompleted   = errors.New("payment not completed")
	ErrCouponInvalid         = errors.New("coupon is not valid")
)

// ErrStoreUnavailable marks failures reaching the backing store
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrInUse is returned when deleting a catalog entry that orders still reference
var ErrInUse = errors.New("still referenced by existing orders")

// ErrDuplicateOrder is returned when an idempotency key was already used
var ErrDuplicateOrder = errors.New("order with this idempotency key already exists")
