package service

import (
	"context"
	"time"

	"festival-booking/internal/models"
	"festival-booking/internal/store"

	"github.com/shopspring/decimal"
)

// CatalogStore persists dates, time slots and SKUs
type CatalogStore interface {
	ListEventDates(ctx context.Context, eventID string, onlyAvailable bool) ([]models.EventDate, error)
	GetEventDate(ctx context.Context, id string) (*models.EventDate, error)
	CreateEventDate(ctx context.Context, d *models.EventDate) error
	SetEventDateAvailability(ctx context.Context, id string, available bool) error
	DeleteEventDate(ctx context.Context, id string) error
	ListTimeSlots(ctx context.Context, eventDateID string) ([]models.TimeSlot, error)
	GetTimeSlot(ctx context.Context, id string) (*models.TimeSlot, error)
	CreateTimeSlot(ctx context.Context, slot *models.TimeSlot) error
	DeleteTimeSlot(ctx context.Context, id string) error
	ListSKUs(ctx context.Context, eventID string, onlyActive bool) ([]models.SKU, error)
	GetSKU(ctx context.Context, id string) (*models.SKU, error)
	GetSKUsByIDs(ctx context.Context, ids []string) ([]models.SKU, error)
	CreateSKU(ctx context.Context, sku *models.SKU) error
	SetSKUActive(ctx context.Context, id string, active bool) error
	DeleteSKU(ctx context.Context, id string) error
}

// InventoryStore owns the authoritative ticket counters
type InventoryStore interface {
	GetInventory(ctx context.Context, timeSlotID, skuID string) (*models.Inventory, error)
	ListInventoryBySlot(ctx context.Context, timeSlotID string) ([]models.Inventory, error)
	ProvisionInventory(ctx context.Context, inv *models.Inventory) error
	ReserveInventory(ctx context.Context, timeSlotID, skuID string, quantity int) (*models.Inventory, error)
	ReleaseInventory(ctx context.Context, timeSlotID, skuID string, quantity int) (*models.Inventory, error)
	SetInventoryTotal(ctx context.Context, timeSlotID, skuID string, total int, mode store.ResetMode) (*models.Inventory, error)
}

// CouponStore persists coupons
type CouponStore interface {
	ListCoupons(ctx context.Context, eventID string) ([]models.Coupon, error)
	GetCoupon(ctx context.Context, id string) (*models.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	CreateCoupon(ctx context.Context, c *models.Coupon) error
	UpdateCoupon(ctx context.Context, c *models.Coupon) error
	DeleteCoupon(ctx context.Context, id string) error
}

// OrderStore persists orders, their bookings and payment attempts
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, bookings []models.Booking) ([]models.Inventory, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	ListBookings(ctx context.Context, orderID string) ([]models.Booking, error)
	AttachPayment(ctx context.Context, payment *models.Payment) error
	UpdatePaymentStatus(ctx context.Context, merchantOrderID, status string) error
	ConfirmOrder(ctx context.Context, orderID, qrPayload string) (*store.ConfirmResult, error)
	CancelOrder(ctx context.Context, orderID, reason string) (*store.CancelResult, error)
	ListExpiredPendingOrders(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	MarkCheckedIn(ctx context.Context, orderID string) (bool, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Store is everything the services need from persistence
type Store interface {
	CatalogStore
	InventoryStore
	CouponStore
	OrderStore
	Ping(ctx context.Context) error
}

// InventoryCache mirrors ticket counters for fast availability reads
type InventoryCache interface {
	SyncInventory(ctx context.Context, inv models.Inventory, ttl time.Duration) (bool, error)
	GetAvailability(ctx context.Context, timeSlotID, skuID string) (available, total int, found bool, err error)
	InvalidateInventory(ctx context.Context, timeSlotID, skuID string) error
}

// PaymentSessionStore keeps simulated gateway sessions
type PaymentSessionStore interface {
	SavePaymentSession(ctx context.Context, session *models.PaymentSession, ttl time.Duration) error
	UpdatePaymentSession(ctx context.Context, session *models.PaymentSession) error
	GetPaymentSession(ctx context.Context, merchantOrderID string) (*models.PaymentSession, error)
}

// EventPublisher emits domain events
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishPaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	PublishTicketIssued(ctx context.Context, event *models.TicketIssuedEvent) error
}

// PaymentGateway is the external payment collaborator
type PaymentGateway interface {
	Initiate(ctx context.Context, orderID string, amount decimal.Decimal, returnURL string, deadline time.Time) (*models.PaymentSession, error)
	Status(ctx context.Context, merchantOrderID string) (string, error)
}
