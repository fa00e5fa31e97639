package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"festival-booking/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, event_id, time_slot_id, idempotency_key, visitor_name, visitor_email, visitor_phone,
	coupon_code, coupon_redeemed, subtotal, discount_amount, total_price, status, merchant_order_id,
	qr_payload, cancel_reason, expires_at, confirmed_at, cancelled_at, checked_in_at, created_at, updated_at`

const bookingColumns = `id, order_id, time_slot_id, sku_id, sku_name, quantity, unit_price, subtotal,
	discount_amount, total_price, coupon_code, visitor_name, visitor_email, visitor_phone, status,
	qr_payload, created_at, updated_at`

// ConfirmResult is the outcome of ConfirmOrder
type ConfirmResult struct {
	Order *models.Order
	// AlreadyConfirmed is set when the order was confirmed by an earlier call
	AlreadyConfirmed bool
}

// CancelResult is the outcome of CancelOrder
type CancelResult struct {
	Order    *models.Order
	Bookings []models.Booking
	// Inventory holds the counters after the release
	Inventory []models.Inventory
	// Cancelled is false when the order was no longer pending
	Cancelled bool
}

// InLockOrder returns a copy of bookings sorted by (time_slot_id, sku_id).
// Every transaction touching several inventory rows locks them in this order.
func InLockOrder(bookings []models.Booking) []models.Booking {
	sorted := make([]models.Booking, len(bookings))
	copy(sorted, bookings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TimeSlotID != sorted[j].TimeSlotID {
			return sorted[i].TimeSlotID < sorted[j].TimeSlotID
		}
		return sorted[i].SKUID < sorted[j].SKUID
	})
	return sorted
}

// CreateOrder persists a pending order with its bookings and reserves the
// inventory of every booking in the same transaction. If any line cannot be
// reserved nothing is written. The updated counters are returned in lock order.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, bookings []models.Booking) ([]models.Inventory, error) {
	var counters []models.Inventory

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, b := range InLockOrder(bookings) {
			inv, err := reserve(ctx, tx, b.TimeSlotID, b.SKUID, b.Quantity)
			if err != nil {
				return err
			}
			counters = append(counters, *inv)
		}

		err := tx.QueryRowxContext(ctx,
			`INSERT INTO orders (id, event_id, time_slot_id, idempotency_key, visitor_name, visitor_email,
				visitor_phone, coupon_code, subtotal, discount_amount, total_price, status, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 RETURNING created_at, updated_at`,
			order.ID, order.EventID, order.TimeSlotID, order.IdempotencyKey, order.VisitorName,
			order.VisitorEmail, order.VisitorPhone, order.CouponCode, order.Subtotal, order.DiscountAmount,
			order.TotalPrice, order.Status, order.ExpiresAt).Scan(&order.CreatedAt, &order.UpdatedAt)
		if isUniqueViolation(err) {
			return models.ErrDuplicateOrder
		}
		if err != nil {
			return wrapErr("create order", err)
		}

		for i := range bookings {
			b := &bookings[i]
			err := tx.QueryRowxContext(ctx,
				`INSERT INTO bookings (id, order_id, time_slot_id, sku_id, sku_name, quantity, unit_price,
					subtotal, discount_amount, total_price, coupon_code, visitor_name, visitor_email,
					visitor_phone, status)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
				 RETURNING created_at, updated_at`,
				b.ID, b.OrderID, b.TimeSlotID, b.SKUID, b.SKUName, b.Quantity, b.UnitPrice,
				b.Subtotal, b.DiscountAmount, b.TotalPrice, b.CouponCode, b.VisitorName, b.VisitorEmail,
				b.VisitorPhone, b.Status).Scan(&b.CreatedAt, &b.UpdatedAt)
			if err != nil {
				return wrapErr("create booking", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counters, nil
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("order", id)
	}
	if err != nil {
		return nil, wrapErr("get order", err)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key.
// It returns nil without error when no order used the key.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get order by idempotency key", err)
	}
	return &order, nil
}

// ListBookings retrieves all bookings of an order
func (s *Store) ListBookings(ctx context.Context, orderID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings,
		`SELECT `+bookingColumns+` FROM bookings WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, wrapErr("list bookings", err)
	}
	return bookings, nil
}

// AttachPayment records a payment attempt and points the pending order at it
func (s *Store) AttachPayment(ctx context.Context, payment *models.Payment) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET merchant_order_id = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
			payment.MerchantOrderID, payment.OrderID, models.OrderStatusPending)
		if err != nil {
			return wrapErr("attach payment", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrapErr("attach payment", err)
		}
		if n == 0 {
			return fmt.Errorf("order %s: %w", payment.OrderID, models.ErrOrderNotPending)
		}

		err = tx.QueryRowxContext(ctx,
			`INSERT INTO payments (id, order_id, merchant_order_id, status, amount)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING created_at, updated_at`,
			payment.ID, payment.OrderID, payment.MerchantOrderID, payment.Status, payment.Amount).
			Scan(&payment.CreatedAt, &payment.UpdatedAt)
		if err != nil {
			return wrapErr("create payment", err)
		}
		return nil
	})
}

// UpdatePaymentStatus updates the status of a payment attempt
func (s *Store) UpdatePaymentStatus(ctx context.Context, merchantOrderID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE payments SET status = $1, updated_at = NOW() WHERE merchant_order_id = $2`,
		status, merchantOrderID)
	if err != nil {
		return wrapErr("update payment status", err)
	}
	return nil
}

// ConfirmOrder moves a pending order and its bookings to confirmed, stores
// the ticket payload and redeems the order's coupon at most once. Confirming
// an order that is already confirmed changes nothing.
func (s *Store) ConfirmOrder(ctx context.Context, orderID, qrPayload string) (*ConfirmResult, error) {
	result := &ConfirmResult{}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case models.OrderStatusConfirmed:
			result.Order = order
			result.AlreadyConfirmed = true
			return nil
		case models.OrderStatusCancelled:
			return fmt.Errorf("order %s: %w", orderID, models.ErrOrderNotPending)
		}

		redeemed := order.CouponRedeemed
		if order.CouponCode != nil && !redeemed {
			if redeemed, err = redeemCoupon(ctx, tx, *order.CouponCode); err != nil {
				return err
			}
		}

		var confirmed models.Order
		err = tx.GetContext(ctx, &confirmed,
			`UPDATE orders SET status = $2, coupon_redeemed = $3, qr_payload = $4, confirmed_at = NOW(), updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+orderColumns,
			orderID, models.OrderStatusConfirmed, redeemed, qrPayload)
		if err != nil {
			return wrapErr("confirm order", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE bookings SET status = $2, qr_payload = $3, updated_at = NOW() WHERE order_id = $1`,
			orderID, models.OrderStatusConfirmed, qrPayload)
		if err != nil {
			return wrapErr("confirm bookings", err)
		}

		result.Order = &confirmed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelOrder releases the reservations of a pending order and marks it and
// its bookings cancelled. Orders that are not pending are returned unchanged.
func (s *Store) CancelOrder(ctx context.Context, orderID, reason string) (*CancelResult, error) {
	result := &CancelResult{}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			result.Order = order
			return nil
		}

		var bookings []models.Booking
		err = tx.SelectContext(ctx, &bookings,
			`SELECT `+bookingColumns+` FROM bookings WHERE order_id = $1 ORDER BY time_slot_id, sku_id, id`, orderID)
		if err != nil {
			return wrapErr("list bookings", err)
		}

		for _, b := range InLockOrder(bookings) {
			inv, err := release(ctx, tx, b.TimeSlotID, b.SKUID, b.Quantity)
			if err != nil {
				return err
			}
			if inv != nil {
				result.Inventory = append(result.Inventory, *inv)
			}
		}

		var cancelled models.Order
		err = tx.GetContext(ctx, &cancelled,
			`UPDATE orders SET status = $2, cancel_reason = $3, cancelled_at = NOW(), updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+orderColumns,
			orderID, models.OrderStatusCancelled, reason)
		if err != nil {
			return wrapErr("cancel order", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE bookings SET status = $2, updated_at = NOW() WHERE order_id = $1`,
			orderID, models.OrderStatusCancelled)
		if err != nil {
			return wrapErr("cancel bookings", err)
		}

		result.Order = &cancelled
		result.Bookings = bookings
		result.Cancelled = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListExpiredPendingOrders returns pending orders whose reservation window
// closed before now, oldest first.
func (s *Store) ListExpiredPendingOrders(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 AND expires_at < $2 ORDER BY expires_at LIMIT $3`,
		models.OrderStatusPending, now, limit)
	if err != nil {
		return nil, wrapErr("list expired orders", err)
	}
	return orders, nil
}

// MarkCheckedIn stamps the first admission of a confirmed order. It reports
// false when the order was already checked in or is not confirmed.
func (s *Store) MarkCheckedIn(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET checked_in_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = $2 AND checked_in_at IS NULL`,
		orderID, models.OrderStatusConfirmed)
	if err != nil {
		return false, wrapErr("check in order", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("check in order", err)
	}
	return n == 1, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	if err != nil {
		return false, wrapErr("check processed event", err)
	}
	return exists, nil
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return wrapErr("mark event processed", err)
	}
	return nil
}

func lockOrder(ctx context.Context, tx *sqlx.Tx, orderID string) (*models.Order, error) {
	var order models.Order
	err := tx.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("order", orderID)
	}
	if err != nil {
		return nil, wrapErr("lock order", err)
	}
	return &order, nil
}
