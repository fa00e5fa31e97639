package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventDate is one calendar day the festival runs
type EventDate struct {
	ID          string    `db:"id" json:"id"`
	EventID     string    `db:"event_id" json:"event_id"`
	Date        string    `db:"date" json:"date"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TimeSlot is a bookable entry window on an event date.
// StartTime and EndTime are "HH:MM" in the event timezone.
type TimeSlot struct {
	ID          string    `db:"id" json:"id"`
	EventDateID string    `db:"event_date_id" json:"event_date_id"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	Capacity    int       `db:"capacity" json:"capacity"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SKU is a purchasable ticket type
type SKU struct {
	ID          string          `db:"id" json:"id"`
	EventID     string          `db:"event_id" json:"event_id"`
	Name        string          `db:"name" json:"name"`
	Description *string         `db:"description" json:"description,omitempty"`
	BasePrice   decimal.Decimal `db:"base_price" json:"base_price"`
	Category    *string         `db:"category" json:"category,omitempty"`
	IsActive    bool            `db:"is_active" json:"is_active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Inventory is the per (time slot, SKU) ticket counter
type Inventory struct {
	ID                string    `db:"id" json:"id"`
	TimeSlotID        string    `db:"time_slot_id" json:"time_slot_id"`
	SKUID             string    `db:"sku_id" json:"sku_id"`
	TotalQuantity     int       `db:"total_quantity" json:"total_quantity"`
	AvailableQuantity int       `db:"available_quantity" json:"available_quantity"`
	Version           int64     `db:"version" json:"-"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Sold returns the number of tickets currently held by orders
func (i *Inventory) Sold() int {
	return i.TotalQuantity - i.AvailableQuantity
}

// Coupon is a discount rule. Code is stored upper-cased.
type Coupon struct {
	ID             string              `db:"id" json:"id"`
	Code           string              `db:"code" json:"code"`
	EventID        *string             `db:"event_id" json:"event_id"`
	DiscountType   string              `db:"discount_type" json:"discount_type"`
	DiscountValue  decimal.Decimal     `db:"discount_value" json:"discount_value"`
	MinOrderAmount decimal.NullDecimal `db:"min_order_amount" json:"min_order_amount"`
	MaxDiscount    decimal.NullDecimal `db:"max_discount" json:"max_discount"`
	UsageLimit     *int                `db:"usage_limit" json:"usage_limit"`
	UsedCount      int                 `db:"used_count" json:"used_count"`
	StartDate      *string             `db:"start_date" json:"start_date"`
	EndDate        *string             `db:"end_date" json:"end_date"`
	IsActive       bool                `db:"is_active" json:"is_active"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}

// Order groups the bookings created by one checkout
type Order struct {
	ID              string          `db:"id" json:"id"`
	EventID         string          `db:"event_id" json:"event_id"`
	TimeSlotID      string          `db:"time_slot_id" json:"time_slot_id"`
	IdempotencyKey  string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	VisitorName     string          `db:"visitor_name" json:"visitor_name"`
	VisitorEmail    string          `db:"visitor_email" json:"visitor_email"`
	VisitorPhone    string          `db:"visitor_phone" json:"visitor_phone"`
	CouponCode      *string         `db:"coupon_code" json:"coupon_code,omitempty"`
	CouponRedeemed  bool            `db:"coupon_redeemed" json:"coupon_redeemed"`
	Subtotal        decimal.Decimal `db:"subtotal" json:"subtotal"`
	DiscountAmount  decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	TotalPrice      decimal.Decimal `db:"total_price" json:"total_price"`
	Status          string          `db:"status" json:"status"`
	MerchantOrderID *string         `db:"merchant_order_id" json:"merchant_order_id,omitempty"`
	QRPayload       *string         `db:"qr_payload" json:"qr_payload,omitempty"`
	CancelReason    *string         `db:"cancel_reason" json:"cancel_reason,omitempty"`
	ExpiresAt       time.Time       `db:"expires_at" json:"expires_at"`
	ConfirmedAt     *time.Time      `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CheckedInAt     *time.Time      `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Booking is one persisted line (one SKU) of an order
type Booking struct {
	ID             string          `db:"id" json:"id"`
	OrderID        string          `db:"order_id" json:"order_id"`
	TimeSlotID     string          `db:"time_slot_id" json:"time_slot_id"`
	SKUID          string          `db:"sku_id" json:"sku_id"`
	SKUName        string          `db:"sku_name" json:"sku_name"`
	Quantity       int             `db:"quantity" json:"quantity"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	TotalPrice     decimal.Decimal `db:"total_price" json:"total_price"`
	CouponCode     *string         `db:"coupon_code" json:"coupon_code,omitempty"`
	VisitorName    string          `db:"visitor_name" json:"visitor_name"`
	VisitorEmail   string          `db:"visitor_email" json:"visitor_email"`
	VisitorPhone   string          `db:"visitor_phone" json:"visitor_phone"`
	Status         string          `db:"status" json:"status"`
	QRPayload      *string         `db:"qr_payload" json:"qr_payload,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Payment records the core's view of a payment attempt
type Payment struct {
	ID              string          `db:"id" json:"id"`
	OrderID         string          `db:"order_id" json:"order_id"`
	MerchantOrderID string          `db:"merchant_order_id" json:"merchant_order_id"`
	Status          string          `db:"status" json:"status"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Order and booking statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusCancelled = "cancelled"
)

// Cancel reasons
const (
	CancelReasonCustomer      = "customer"
	CancelReasonPaymentFailed = "payment_failed"
	CancelReasonExpired       = "expired"
)

// Payment statuses, as reported by the payment collaborator
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// Discount types
const (
	DiscountTypePercentage  = "percentage"
	DiscountTypeFixedAmount = "fixed_amount"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// PaymentSession is the simulated gateway's record of a payment attempt
type PaymentSession struct {
	MerchantOrderID string          `json:"merchant_order_id"`
	OrderID         string          `json:"order_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentURL      string          `json:"payment_url"`
	ReturnURL       string          `json:"return_url,omitempty"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	// ExpiresAt is the last moment the session can be paid. It never
	// outlives the order's reservation.
	ExpiresAt       time.Time       `json:"expires_at"`
}
