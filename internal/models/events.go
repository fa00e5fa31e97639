package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderConfirmed = "ORDER_CONFIRMED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypePaymentSuccess = "PAYMENT_SUCCESS"
	EventTypePaymentFailed  = "PAYMENT_FAILED"
	EventTypeTicketIssued   = "TICKET_ISSUED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a pending order holds its reservations
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	TimeSlotID  string          `json:"time_slot_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CouponCode  *string         `json:"coupon_code,omitempty"`
	Items       []OrderItemData `json:"items"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// OrderConfirmedEvent published when payment completed and the order is confirmed
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID        string          `json:"order_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CouponCode     *string         `json:"coupon_code,omitempty"`
	CouponRedeemed bool            `json:"coupon_redeemed"`
}

// OrderCancelledEvent published when an order releases its reservations
type OrderCancelledEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// PaymentSuccessEvent published by the payment collaborator
type PaymentSuccessEvent struct {
	BaseEvent
	OrderID         string          `json:"order_id"`
	MerchantOrderID string          `json:"merchant_order_id"`
	Amount          decimal.Decimal `json:"amount"`
}

// PaymentFailedEvent published by the payment collaborator
type PaymentFailedEvent struct {
	BaseEvent
	OrderID         string `json:"order_id"`
	MerchantOrderID string `json:"merchant_order_id"`
	Reason          string `json:"reason"`
}

// TicketIssuedEvent is consumed by the e-mail sender
type TicketIssuedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	To            string `json:"to"`
	VisitorName   string `json:"visitor_name"`
	QRCodeDataURL string `json:"qr_code_data_url"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	SKUID     string          `json:"sku_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}
