package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"festival-booking/internal/models"
	"festival-booking/internal/store"
)

func (s *Store) CreateOrder(ctx context.Context, order *models.Order, bookings []models.Booking) ([]models.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// check every line first so a shortfall leaves nothing reserved
	need := make(map[invKey]int)
	for _, b := range bookings {
		k := invKey{b.TimeSlotID, b.SKUID}
		need[k] += b.Quantity
		if err := s.checkAvailable(b.TimeSlotID, b.SKUID, need[k]); err != nil {
			return nil, err
		}
	}
	for _, o := range s.orders {
		if o.IdempotencyKey == order.IdempotencyKey {
			return nil, models.ErrDuplicateOrder
		}
	}

	counters := make([]models.Inventory, 0, len(bookings))
	for _, b := range store.InLockOrder(bookings) {
		counters = append(counters, *s.adjust(b.TimeSlotID, b.SKUID, -b.Quantity))
	}

	now := s.now()
	order.CreatedAt, order.UpdatedAt = now, now
	s.orders[order.ID] = *order

	stored := make([]models.Booking, len(bookings))
	for i := range bookings {
		bookings[i].CreatedAt, bookings[i].UpdatedAt = now, now
		stored[i] = bookings[i]
	}
	s.bookings[order.ID] = stored
	return counters, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	return &o, nil
}

func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, nil
}

func (s *Store) ListBookings(ctx context.Context, orderID string) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.Booking{}, s.bookings[orderID]...), nil
}

func (s *Store) AttachPayment(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[payment.OrderID]
	if !ok || o.Status != models.OrderStatusPending {
		return fmt.Errorf("order %s: %w", payment.OrderID, models.ErrOrderNotPending)
	}

	mid := payment.MerchantOrderID
	o.MerchantOrderID = &mid
	o.UpdatedAt = s.now()
	s.orders[o.ID] = o

	payment.CreatedAt, payment.UpdatedAt = o.UpdatedAt, o.UpdatedAt
	s.payments[mid] = *payment
	return nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, merchantOrderID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.payments[merchantOrderID]; ok {
		p.Status = status
		p.UpdatedAt = s.now()
		s.payments[merchantOrderID] = p
	}
	return nil
}

// Payment returns the recorded payment attempt for a merchant order id
func (s *Store) Payment(merchantOrderID string) (models.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[merchantOrderID]
	return p, ok
}

func (s *Store) ConfirmOrder(ctx context.Context, orderID, qrPayload string) (*store.ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, notFound("order", orderID)
	}
	switch o.Status {
	case models.OrderStatusConfirmed:
		return &store.ConfirmResult{Order: &o, AlreadyConfirmed: true}, nil
	case models.OrderStatusCancelled:
		return nil, fmt.Errorf("order %s: %w", orderID, models.ErrOrderNotPending)
	}

	if o.CouponCode != nil && !o.CouponRedeemed {
		if c, ok := s.couponByCode(*o.CouponCode); ok && (c.UsageLimit == nil || c.UsedCount < *c.UsageLimit) {
			c.UsedCount++
			c.UpdatedAt = s.now()
			s.coupons[c.ID] = c
			o.CouponRedeemed = true
		}
	}

	now := s.now()
	o.Status = models.OrderStatusConfirmed
	o.QRPayload = &qrPayload
	o.ConfirmedAt = &now
	o.UpdatedAt = now
	s.orders[orderID] = o

	for i := range s.bookings[orderID] {
		b := &s.bookings[orderID][i]
		b.Status = models.OrderStatusConfirmed
		b.QRPayload = &qrPayload
		b.UpdatedAt = now
	}

	return &store.ConfirmResult{Order: &o}, nil
}

func (s *Store) CancelOrder(ctx context.Context, orderID, reason string) (*store.CancelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, notFound("order", orderID)
	}
	if o.Status != models.OrderStatusPending {
		return &store.CancelResult{Order: &o}, nil
	}

	bookings := store.InLockOrder(s.bookings[orderID])
	var counters []models.Inventory
	for _, b := range bookings {
		if inv := s.adjust(b.TimeSlotID, b.SKUID, b.Quantity); inv != nil {
			counters = append(counters, *inv)
		}
	}

	now := s.now()
	o.Status = models.OrderStatusCancelled
	o.CancelReason = &reason
	o.CancelledAt = &now
	o.UpdatedAt = now
	s.orders[orderID] = o

	for i := range s.bookings[orderID] {
		s.bookings[orderID][i].Status = models.OrderStatusCancelled
		s.bookings[orderID][i].UpdatedAt = now
	}

	return &store.CancelResult{Order: &o, Bookings: bookings, Inventory: counters, Cancelled: true}, nil
}

func (s *Store) ListExpiredPendingOrders(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Order{}
	for _, o := range s.orders {
		if o.Status == models.OrderStatusPending && o.ExpiresAt.Before(now) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkCheckedIn(ctx context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.Status != models.OrderStatusConfirmed || o.CheckedInAt != nil {
		return false, nil
	}
	now := s.now()
	o.CheckedInAt = &now
	o.UpdatedAt = now
	s.orders[orderID] = o
	return true, nil
}

func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[eventID]; !ok {
		s.processed[eventID] = eventType
	}
	return nil
}
