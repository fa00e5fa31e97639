package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"festival-booking/internal/broker"
	"festival-booking/internal/models"
	"festival-booking/internal/pricing"
	"festival-booking/internal/ticket"
	"festival-booking/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Check-in outcomes
const (
	CheckInValid      = "valid"
	CheckInUsed       = "used"
	CheckInWrongEvent = "wrong_event"
	CheckInInvalid    = "invalid"
)

// OrderService runs the order lifecycle: checkout, payment, confirmation,
// cancellation, expiry and check-in
type OrderService struct {
	store          Store
	ledger         *InventoryLedger
	coupons        *CouponService
	gateway        PaymentGateway
	eventPublisher EventPublisher
	clock          *Clock
	event          ticket.Event
	reservationTTL time.Duration
	logger         *zap.Logger
}

// OrderServiceConfig holds the settings of an OrderService
type OrderServiceConfig struct {
	Event          ticket.Event
	ReservationTTL time.Duration
}

// NewOrderService creates a new order service
func NewOrderService(
	store Store,
	ledger *InventoryLedger,
	coupons *CouponService,
	gateway PaymentGateway,
	eventPublisher EventPublisher,
	clock *Clock,
	cfg OrderServiceConfig,
) *OrderService {
	return &OrderService{
		store:          store,
		ledger:         ledger,
		coupons:        coupons,
		gateway:        gateway,
		eventPublisher: eventPublisher,
		clock:          clock,
		event:          cfg.Event,
		reservationTTL: cfg.ReservationTTL,
		logger:         util.GetLogger(),
	}
}

// CheckoutRequest represents a request to book tickets
type CheckoutRequest struct {
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	TimeSlotID     string         `json:"time_slot_id"`
	Items          []CheckoutItem `json:"items"`
	CouponCode     string         `json:"coupon_code,omitempty"`
	Visitor        Visitor        `json:"visitor"`
}

// CheckoutItem represents one ticket type in a checkout
type CheckoutItem struct {
	SKUID    string `json:"sku_id"`
	Quantity int    `json:"quantity"`
}

// OrderView is an order with its bookings
type OrderView struct {
	models.Order
	Bookings []models.Booking `json:"bookings"`
}

// CheckInResult is what the gate sees after scanning a ticket
type CheckInResult struct {
	Status      string        `json:"status"`
	OrderID     string        `json:"order_id,omitempty"`
	VisitorName string        `json:"visitor_name,omitempty"`
	Tickets     []ticket.Line `json:"tickets,omitempty"`
	CheckedInAt *time.Time    `json:"checked_in_at,omitempty"`
}

// Checkout prices the request, reserves every line and records a pending
// order in one step. Replaying an idempotency key returns the existing order.
func (s *OrderService) Checkout(ctx context.Context, req *CheckoutRequest) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout", attribute.String("time_slot_id", req.TimeSlotID))
	defer span.End()

	if req.IdempotencyKey != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			return s.view(ctx, existing)
		}
	} else {
		req.IdempotencyKey = uuid.New().String()
	}

	visitor, items, err := validateCheckout(req)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	if err := s.checkSlotOpen(ctx, req.TimeSlotID); err != nil {
		util.OrdersFailedTotal.WithLabelValues("slot_unavailable").Inc()
		return nil, err
	}

	lines, err := s.priceLines(ctx, items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	subtotal := pricing.Subtotal(lines)
	discount := decimal.Zero
	var couponCode *string
	if strings.TrimSpace(req.CouponCode) != "" {
		coupon, verdict, err := s.coupons.evaluate(ctx, req.CouponCode, s.event.ID, subtotal)
		if err != nil {
			return nil, err
		}
		if !verdict.Valid {
			util.OrdersFailedTotal.WithLabelValues("coupon_invalid").Inc()
			return nil, &CouponError{Reason: verdict.Reason}
		}
		discount = verdict.DiscountAmount
		couponCode = &coupon.Code
	}

	alloc := pricing.Allocate(lines, discount)
	now := s.clock.Now()

	order := &models.Order{
		ID:             uuid.New().String(),
		EventID:        s.event.ID,
		TimeSlotID:     req.TimeSlotID,
		IdempotencyKey: req.IdempotencyKey,
		VisitorName:    visitor.Name,
		VisitorEmail:   visitor.Email,
		VisitorPhone:   visitor.Phone,
		CouponCode:     couponCode,
		Subtotal:       alloc.Subtotal,
		DiscountAmount: alloc.Discount,
		TotalPrice:     alloc.Total,
		Status:         models.OrderStatusPending,
		ExpiresAt:      now.Add(s.reservationTTL),
	}

	bookings := make([]models.Booking, 0, len(alloc.Lines))
	itemData := make([]models.OrderItemData, 0, len(alloc.Lines))
	for _, line := range alloc.Lines {
		bookings = append(bookings, models.Booking{
			ID:             uuid.New().String(),
			OrderID:        order.ID,
			TimeSlotID:     order.TimeSlotID,
			SKUID:          line.SKUID,
			SKUName:        line.Name,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			Subtotal:       line.Subtotal,
			DiscountAmount: line.Discount,
			TotalPrice:     line.Total,
			CouponCode:     couponCode,
			VisitorName:    order.VisitorName,
			VisitorEmail:   order.VisitorEmail,
			VisitorPhone:   order.VisitorPhone,
			Status:         models.OrderStatusPending,
		})
		itemData = append(itemData, models.OrderItemData{
			SKUID:     line.SKUID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}

	start := time.Now()
	counters, err := s.store.CreateOrder(ctx, order, bookings)
	util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientInventory):
			util.OrdersFailedTotal.WithLabelValues("insufficient_inventory").Inc()
			util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			return nil, err
		case errors.Is(err, models.ErrDuplicateOrder):
			// a concurrent request with the same key won
			existing, lookupErr := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				return s.view(ctx, existing)
			}
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.ledger.Mirror(ctx, counters...)
	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("total", order.TotalPrice.StringFixed(2)),
		zap.Time("expires_at", order.ExpiresAt))

	event := &models.OrderCreatedEvent{
		BaseEvent:   broker.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		TimeSlotID:  order.TimeSlotID,
		TotalAmount: order.TotalPrice,
		CouponCode:  order.CouponCode,
		Items:       itemData,
		ExpiresAt:   order.ExpiresAt,
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &OrderView{Order: *order, Bookings: bookings}, nil
}

func validateCheckout(req *CheckoutRequest) (Visitor, []CheckoutItem, error) {
	verr := &ValidationError{}

	visitor, err := req.Visitor.Normalize()
	var visitorErr *ValidationError
	if errors.As(err, &visitorErr) {
		for field, msg := range visitorErr.Fields {
			verr.Add(field, msg)
		}
	}

	if req.TimeSlotID == "" {
		verr.Add("time_slot_id", "Time slot is required")
	}
	if len(req.Items) == 0 {
		verr.Add("items", "At least one ticket is required")
	}

	// merge repeated SKUs, keeping first-seen order
	merged := make([]CheckoutItem, 0, len(req.Items))
	index := make(map[string]int, len(req.Items))
	for i, item := range req.Items {
		if item.SKUID == "" {
			verr.Add(fmt.Sprintf("items[%d].sku_id", i), "Ticket type is required")
			continue
		}
		if item.Quantity <= 0 {
			verr.Add(fmt.Sprintf("items[%d].quantity", i), "Quantity must be at least 1")
			continue
		}
		if j, ok := index[item.SKUID]; ok {
			merged[j].Quantity += item.Quantity
			continue
		}
		index[item.SKUID] = len(merged)
		merged = append(merged, item)
	}

	if err := verr.OrNil(); err != nil {
		return Visitor{}, nil, err
	}
	return visitor, merged, nil
}

func (s *OrderService) checkSlotOpen(ctx context.Context, timeSlotID string) error {
	slot, err := s.store.GetTimeSlot(ctx, timeSlotID)
	if err != nil {
		return err
	}
	date, err := s.store.GetEventDate(ctx, slot.EventDateID)
	if err != nil {
		return err
	}
	if date.EventID != s.event.ID || !date.IsAvailable {
		return invalidField("time_slot_id", "This date is not available for booking")
	}
	return nil
}

func (s *OrderService) priceLines(ctx context.Context, items []CheckoutItem) ([]pricing.Line, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.SKUID
	}

	skus, err := s.store.GetSKUsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.SKU, len(skus))
	for _, sku := range skus {
		byID[sku.ID] = sku
	}

	verr := &ValidationError{}
	lines := make([]pricing.Line, 0, len(items))
	for i, item := range items {
		sku, ok := byID[item.SKUID]
		if !ok || !sku.IsActive || sku.EventID != s.event.ID {
			verr.Add(fmt.Sprintf("items[%d].sku_id", i), "This ticket type is not available")
			continue
		}
		lines = append(lines, pricing.Line{
			SKUID:     sku.ID,
			Name:      sku.Name,
			Quantity:  item.Quantity,
			UnitPrice: sku.BasePrice,
		})
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return lines, nil
}

// GetOrder retrieves an order with its bookings
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*OrderView, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, order)
}

func (s *OrderService) view(ctx context.Context, order *models.Order) (*OrderView, error) {
	bookings, err := s.store.ListBookings(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &OrderView{Order: *order, Bookings: bookings}, nil
}

// InitiatePayment opens a payment session for a pending order. An order
// whose reservation window has closed is cancelled instead.
func (s *OrderService) InitiatePayment(ctx context.Context, orderID, returnURL string) (*models.PaymentSession, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.InitiatePayment", attribute.String("order_id", orderID))
	defer span.End()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, models.ErrOrderNotPending)
	}
	if !s.clock.Now().Before(order.ExpiresAt) {
		if _, _, err := s.cancel(ctx, orderID, models.CancelReasonExpired); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("order %s reservation expired: %w", orderID, models.ErrOrderNotPending)
	}

	session, err := s.gateway.Initiate(ctx, order.ID, order.TotalPrice, returnURL, order.ExpiresAt)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to initiate payment: %w", err)
	}

	payment := &models.Payment{
		ID:              uuid.New().String(),
		OrderID:         order.ID,
		MerchantOrderID: session.MerchantOrderID,
		Status:          models.PaymentStatusPending,
		Amount:          order.TotalPrice,
	}
	if err := s.store.AttachPayment(ctx, payment); err != nil {
		return nil, err
	}

	s.logger.Info("Payment initiated",
		zap.String("order_id", order.ID),
		zap.String("merchant_order_id", session.MerchantOrderID))
	return session, nil
}

// ConfirmOrder confirms an order after the visitor returns from the payment
// page. It succeeds only if the gateway reports the payment COMPLETED.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID string) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ConfirmOrder", attribute.String("order_id", orderID))
	defer span.End()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusConfirmed {
		return s.view(ctx, order)
	}
	if order.MerchantOrderID == nil {
		return nil, fmt.Errorf("order %s has no payment: %w", orderID, models.ErrPaymentNotCompleted)
	}
	return s.confirmPaid(ctx, order, *order.MerchantOrderID)
}

// ConfirmPaid confirms an order for a specific payment attempt. It is the
// path taken by payment events.
func (s *OrderService) ConfirmPaid(ctx context.Context, orderID, merchantOrderID string) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ConfirmPaid", attribute.String("order_id", orderID))
	defer span.End()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.confirmPaid(ctx, order, merchantOrderID)
}

func (s *OrderService) confirmPaid(ctx context.Context, order *models.Order, merchantOrderID string) (*OrderView, error) {
	switch order.Status {
	case models.OrderStatusConfirmed:
		return s.view(ctx, order)
	case models.OrderStatusCancelled:
		return nil, fmt.Errorf("order %s is cancelled: %w", order.ID, models.ErrOrderNotPending)
	}

	status, err := s.gateway.Status(ctx, merchantOrderID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("payment %s unknown to gateway: %w", merchantOrderID, models.ErrPaymentNotCompleted)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment status: %w", err)
	}

	switch status {
	case models.PaymentStatusCompleted:
	case models.PaymentStatusFailed:
		s.recordPaymentStatus(ctx, merchantOrderID, models.PaymentStatusFailed)
		if _, _, err := s.cancel(ctx, order.ID, models.CancelReasonPaymentFailed); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("payment %s failed: %w", merchantOrderID, models.ErrPaymentNotCompleted)
	default:
		return nil, fmt.Errorf("payment %s is %s: %w", merchantOrderID, status, models.ErrPaymentNotCompleted)
	}

	bookings, err := s.store.ListBookings(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	payload, err := s.ticketPayload(ctx, order, bookings)
	if err != nil {
		return nil, err
	}

	result, err := s.store.ConfirmOrder(ctx, order.ID, payload)
	if err != nil {
		if !errors.Is(err, models.ErrOrderNotPending) {
			util.OrdersFailedTotal.WithLabelValues("confirm_failed").Inc()
		}
		return nil, err
	}
	s.recordPaymentStatus(ctx, merchantOrderID, models.PaymentStatusCompleted)

	confirmed := result.Order
	if result.AlreadyConfirmed {
		return s.view(ctx, confirmed)
	}

	util.OrdersConfirmedTotal.Inc()
	if confirmed.CouponCode != nil {
		if confirmed.CouponRedeemed {
			util.CouponRedemptionsTotal.WithLabelValues("redeemed").Inc()
		} else {
			util.CouponRedemptionsTotal.WithLabelValues("limit_reached").Inc()
			s.logger.Warn("Coupon usage limit reached before confirmation, order confirmed without redemption",
				zap.String("order_id", confirmed.ID),
				zap.String("coupon_code", *confirmed.CouponCode))
		}
	}
	s.logger.Info("Order confirmed", zap.String("order_id", confirmed.ID))

	event := &models.OrderConfirmedEvent{
		BaseEvent:      broker.NewBaseEvent(models.EventTypeOrderConfirmed),
		OrderID:        confirmed.ID,
		TotalAmount:    confirmed.TotalPrice,
		CouponCode:     confirmed.CouponCode,
		CouponRedeemed: confirmed.CouponRedeemed,
	}
	if err := s.eventPublisher.PublishOrderConfirmed(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderConfirmed event", zap.Error(err))
	}

	s.sendTicket(ctx, confirmed, payload)

	return s.view(ctx, confirmed)
}

func (s *OrderService) ticketPayload(ctx context.Context, order *models.Order, bookings []models.Booking) (string, error) {
	slot, err := s.store.GetTimeSlot(ctx, order.TimeSlotID)
	if err != nil {
		return "", err
	}
	date, err := s.store.GetEventDate(ctx, slot.EventDateID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", err
	}
	return ticket.Build(order, bookings, slot, date, s.event).Encode()
}

// sendTicket hands the QR code to the notifications topic. A failure here
// never undoes the confirmation.
func (s *OrderService) sendTicket(ctx context.Context, order *models.Order, payload string) {
	dataURL, err := ticket.DataURL(payload)
	if err != nil {
		util.NotificationsFailedTotal.Inc()
		s.logger.Error("Failed to render ticket QR code", zap.String("order_id", order.ID), zap.Error(err))
		return
	}

	event := &models.TicketIssuedEvent{
		BaseEvent:     broker.NewBaseEvent(models.EventTypeTicketIssued),
		OrderID:       order.ID,
		To:            order.VisitorEmail,
		VisitorName:   order.VisitorName,
		QRCodeDataURL: dataURL,
	}
	if err := s.eventPublisher.PublishTicketIssued(ctx, event); err != nil {
		util.NotificationsFailedTotal.Inc()
		s.logger.Error("Failed to publish TicketIssued event", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (s *OrderService) recordPaymentStatus(ctx context.Context, merchantOrderID, status string) {
	if err := s.store.UpdatePaymentStatus(ctx, merchantOrderID, status); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("Failed to update payment status",
			zap.String("merchant_order_id", merchantOrderID),
			zap.String("status", status),
			zap.Error(err))
	}
}

// CancelOrder cancels a pending order and releases its reservations.
// Cancelling a cancelled order returns it unchanged; a confirmed order
// cannot be cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.String("order_id", orderID))
	defer span.End()

	if reason == "" {
		reason = models.CancelReasonCustomer
	}

	order, _, err := s.cancel(ctx, orderID, reason)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusConfirmed {
		return nil, fmt.Errorf("order %s is confirmed: %w", orderID, models.ErrOrderNotPending)
	}
	return s.view(ctx, order)
}

func (s *OrderService) cancel(ctx context.Context, orderID, reason string) (*models.Order, bool, error) {
	result, err := s.store.CancelOrder(ctx, orderID, reason)
	if err != nil {
		return nil, false, err
	}
	if !result.Cancelled {
		return result.Order, false, nil
	}

	s.ledger.Mirror(ctx, result.Inventory...)
	util.OrdersCancelledTotal.WithLabelValues(reason).Inc()
	s.logger.Info("Order cancelled",
		zap.String("order_id", orderID),
		zap.String("reason", reason),
		zap.Int("bookings", len(result.Bookings)))

	event := &models.OrderCancelledEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   orderID,
		Reason:    reason,
	}
	if err := s.eventPublisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
	return result.Order, true, nil
}

// ExpirePending cancels up to limit pending orders whose reservation window
// closed. It returns how many were cancelled.
func (s *OrderService) ExpirePending(ctx context.Context, limit int) (int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ExpirePending")
	defer span.End()

	orders, err := s.store.ListExpiredPendingOrders(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, o := range orders {
		_, cancelled, err := s.cancel(ctx, o.ID, models.CancelReasonExpired)
		if err != nil {
			s.logger.Error("Failed to expire order", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		if cancelled {
			expired++
		}
	}

	if expired > 0 {
		util.ReservationsExpiredTotal.Add(float64(expired))
		s.logger.Info("Expired pending orders", zap.Int("count", expired))
	}
	return expired, nil
}

// CheckIn admits the holder of a scanned ticket. Only the first scan of a
// confirmed order is valid.
func (s *OrderService) CheckIn(ctx context.Context, raw string) (*CheckInResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CheckIn")
	defer span.End()

	result, err := s.checkIn(ctx, strings.TrimSpace(raw))
	if err != nil {
		util.CheckInsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	util.CheckInsTotal.WithLabelValues(result.Status).Inc()
	return result, nil
}

func (s *OrderService) checkIn(ctx context.Context, raw string) (*CheckInResult, error) {
	payload, err := ticket.Parse(raw)
	if err != nil {
		return &CheckInResult{Status: CheckInInvalid}, nil
	}
	if payload.EventID != s.event.ID {
		return &CheckInResult{Status: CheckInWrongEvent, OrderID: payload.OrderID}, nil
	}

	order, err := s.store.GetOrder(ctx, payload.OrderID)
	if errors.Is(err, models.ErrNotFound) {
		return &CheckInResult{Status: CheckInInvalid}, nil
	}
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusConfirmed || order.QRPayload == nil || *order.QRPayload != raw {
		return &CheckInResult{Status: CheckInInvalid, OrderID: order.ID}, nil
	}

	result := &CheckInResult{
		OrderID:     order.ID,
		VisitorName: order.VisitorName,
		Tickets:     payload.Tickets,
	}

	admitted, err := s.store.MarkCheckedIn(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if !admitted {
		result.Status = CheckInUsed
		result.CheckedInAt = order.CheckedInAt
		return result, nil
	}

	result.Status = CheckInValid
	s.logger.Info("Visitor checked in", zap.String("order_id", order.ID))
	return result, nil
}
