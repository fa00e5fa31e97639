// Package memstore is an in-memory store with the same contracts and
// atomicity as the Postgres store. A single mutex serialises every call, so
// multi-row operations are all-or-nothing. The server runs on it with
// STORE_DRIVER=memory.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"festival-booking/internal/models"
	"festival-booking/internal/store"
)

type invKey struct {
	slot string
	sku  string
}

type Store struct {
	mu sync.Mutex

	dates     map[string]models.EventDate
	slots     map[string]models.TimeSlot
	skus      map[string]models.SKU
	inventory map[invKey]models.Inventory
	coupons   map[string]models.Coupon
	orders    map[string]models.Order
	bookings  map[string][]models.Booking
	payments  map[string]models.Payment
	processed map[string]string

	now func() time.Time
}

// New returns an empty store
func New() *Store {
	return &Store{
		dates:     make(map[string]models.EventDate),
		slots:     make(map[string]models.TimeSlot),
		skus:      make(map[string]models.SKU),
		inventory: make(map[invKey]models.Inventory),
		coupons:   make(map[string]models.Coupon),
		orders:    make(map[string]models.Order),
		bookings:  make(map[string][]models.Booking),
		payments:  make(map[string]models.Payment),
		processed: make(map[string]string),
		now:       time.Now,
	}
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error { return nil }

// catalog

func (s *Store) ListEventDates(ctx context.Context, eventID string, onlyAvailable bool) ([]models.EventDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.EventDate{}
	for _, d := range s.dates {
		if d.EventID != eventID || (onlyAvailable && !d.IsAvailable) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) GetEventDate(ctx context.Context, id string) (*models.EventDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dates[id]
	if !ok {
		return nil, notFound("event date", id)
	}
	return &d, nil
}

func (s *Store) CreateEventDate(ctx context.Context, d *models.EventDate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.CreatedAt = s.now()
	s.dates[d.ID] = *d
	return nil
}

func (s *Store) SetEventDateAvailability(ctx context.Context, id string, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dates[id]
	if !ok {
		return notFound("event date", id)
	}
	d.IsAvailable = available
	s.dates[id] = d
	return nil
}

func (s *Store) DeleteEventDate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dates[id]; !ok {
		return notFound("event date", id)
	}
	for _, slot := range s.slots {
		if slot.EventDateID == id && s.slotInUse(slot.ID) {
			return fmt.Errorf("delete event date %s: %w", id, models.ErrInUse)
		}
	}
	for slotID, slot := range s.slots {
		if slot.EventDateID == id {
			s.dropSlot(slotID)
		}
	}
	delete(s.dates, id)
	return nil
}

func (s *Store) ListTimeSlots(ctx context.Context, eventDateID string) ([]models.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.TimeSlot{}
	for _, slot := range s.slots {
		if slot.EventDateID == eventDateID {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (s *Store) GetTimeSlot(ctx context.Context, id string) (*models.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return nil, notFound("time slot", id)
	}
	return &slot, nil
}

func (s *Store) CreateTimeSlot(ctx context.Context, slot *models.TimeSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dates[slot.EventDateID]; !ok {
		return notFound("event date", slot.EventDateID)
	}
	slot.CreatedAt = s.now()
	s.slots[slot.ID] = *slot
	return nil
}

func (s *Store) DeleteTimeSlot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[id]; !ok {
		return notFound("time slot", id)
	}
	if s.slotInUse(id) {
		return fmt.Errorf("delete time slot %s: %w", id, models.ErrInUse)
	}
	s.dropSlot(id)
	return nil
}

func (s *Store) slotInUse(slotID string) bool {
	for _, o := range s.orders {
		if o.TimeSlotID == slotID {
			return true
		}
	}
	return false
}

func (s *Store) dropSlot(slotID string) {
	for k := range s.inventory {
		if k.slot == slotID {
			delete(s.inventory, k)
		}
	}
	delete(s.slots, slotID)
}

func (s *Store) ListSKUs(ctx context.Context, eventID string, onlyActive bool) ([]models.SKU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.SKU{}
	for _, sku := range s.skus {
		if sku.EventID != eventID || (onlyActive && !sku.IsActive) {
			continue
		}
		out = append(out, sku)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BasePrice.Equal(out[j].BasePrice) {
			return out[i].BasePrice.LessThan(out[j].BasePrice)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetSKU(ctx context.Context, id string) (*models.SKU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sku, ok := s.skus[id]
	if !ok {
		return nil, notFound("sku", id)
	}
	return &sku, nil
}

func (s *Store) GetSKUsByIDs(ctx context.Context, ids []string) ([]models.SKU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.SKU{}
	for _, id := range ids {
		if sku, ok := s.skus[id]; ok {
			out = append(out, sku)
		}
	}
	return out, nil
}

func (s *Store) CreateSKU(ctx context.Context, sku *models.SKU) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sku.CreatedAt = s.now()
	s.skus[sku.ID] = *sku
	return nil
}

func (s *Store) SetSKUActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sku, ok := s.skus[id]
	if !ok {
		return notFound("sku", id)
	}
	sku.IsActive = active
	s.skus[id] = sku
	return nil
}

func (s *Store) DeleteSKU(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.skus[id]; !ok {
		return notFound("sku", id)
	}
	for _, bs := range s.bookings {
		for _, b := range bs {
			if b.SKUID == id {
				return fmt.Errorf("delete sku %s: %w", id, models.ErrInUse)
			}
		}
	}
	for k := range s.inventory {
		if k.sku == id {
			delete(s.inventory, k)
		}
	}
	delete(s.skus, id)
	return nil
}

// inventory

func (s *Store) GetInventory(ctx context.Context, timeSlotID, skuID string) (*models.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.inventory[invKey{timeSlotID, skuID}]
	if !ok {
		return nil, notFound("inventory", timeSlotID+"/"+skuID)
	}
	return &inv, nil
}

func (s *Store) ListInventoryBySlot(ctx context.Context, timeSlotID string) ([]models.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Inventory{}
	for k, inv := range s.inventory {
		if k.slot == timeSlotID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKUID < out[j].SKUID })
	return out, nil
}

func (s *Store) ProvisionInventory(ctx context.Context, inv *models.Inventory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := invKey{inv.TimeSlotID, inv.SKUID}
	if _, ok := s.inventory[k]; ok {
		return models.ErrDuplicateInventory
	}
	inv.AvailableQuantity = inv.TotalQuantity
	inv.UpdatedAt = s.now()
	s.inventory[k] = *inv
	return nil
}

func (s *Store) ReserveInventory(ctx context.Context, timeSlotID, skuID string, quantity int) (*models.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAvailable(timeSlotID, skuID, quantity); err != nil {
		return nil, err
	}
	return s.adjust(timeSlotID, skuID, -quantity), nil
}

func (s *Store) ReleaseInventory(ctx context.Context, timeSlotID, skuID string, quantity int) (*models.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adjust(timeSlotID, skuID, quantity), nil
}

func (s *Store) SetInventoryTotal(ctx context.Context, timeSlotID, skuID string, total int, mode store.ResetMode) (*models.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := invKey{timeSlotID, skuID}
	inv, ok := s.inventory[k]
	if !ok {
		return nil, notFound("inventory", timeSlotID+"/"+skuID)
	}

	if mode == store.ResetAvailable {
		inv.AvailableQuantity = total
	} else {
		inv.AvailableQuantity = total - inv.Sold()
		if inv.AvailableQuantity < 0 {
			inv.AvailableQuantity = 0
		}
	}
	inv.TotalQuantity = total
	inv.Version++
	inv.UpdatedAt = s.now()
	s.inventory[k] = inv
	return &inv, nil
}

func (s *Store) checkAvailable(timeSlotID, skuID string, quantity int) error {
	inv, ok := s.inventory[invKey{timeSlotID, skuID}]
	if !ok || inv.AvailableQuantity < quantity {
		return fmt.Errorf("sku %s in slot %s: %w", skuID, timeSlotID, models.ErrInsufficientInventory)
	}
	return nil
}

// adjust moves available by delta, capped to [0, total]. It returns nil for
// pairs that were never provisioned.
func (s *Store) adjust(timeSlotID, skuID string, delta int) *models.Inventory {
	k := invKey{timeSlotID, skuID}
	inv, ok := s.inventory[k]
	if !ok {
		return nil
	}
	inv.AvailableQuantity += delta
	if inv.AvailableQuantity > inv.TotalQuantity {
		inv.AvailableQuantity = inv.TotalQuantity
	}
	if inv.AvailableQuantity < 0 {
		inv.AvailableQuantity = 0
	}
	inv.Version++
	inv.UpdatedAt = s.now()
	s.inventory[k] = inv
	return &inv
}

// coupons

func (s *Store) ListCoupons(ctx context.Context, eventID string) ([]models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Coupon{}
	for _, c := range s.coupons {
		if eventID != "" && c.EventID != nil && *c.EventID != eventID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetCoupon(ctx context.Context, id string) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[id]
	if !ok {
		return nil, notFound("coupon", id)
	}
	return &c, nil
}

func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.couponByCode(code)
	if !ok {
		return nil, notFound("coupon", code)
	}
	return &c, nil
}

func (s *Store) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.couponByCode(c.Code); ok {
		return models.ErrDuplicateCouponCode
	}
	c.UsedCount = 0
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.coupons[c.ID] = *c
	return nil
}

func (s *Store) UpdateCoupon(ctx context.Context, c *models.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.coupons[c.ID]
	if !ok {
		return notFound("coupon", c.ID)
	}
	if other, ok := s.couponByCode(c.Code); ok && other.ID != c.ID {
		return models.ErrDuplicateCouponCode
	}
	c.UsedCount = existing.UsedCount
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now()
	s.coupons[c.ID] = *c
	return nil
}

func (s *Store) DeleteCoupon(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.coupons[id]; !ok {
		return notFound("coupon", id)
	}
	delete(s.coupons, id)
	return nil
}

func (s *Store) couponByCode(code string) (models.Coupon, bool) {
	for _, c := range s.coupons {
		if strings.EqualFold(c.Code, code) {
			return c, true
		}
	}
	return models.Coupon{}, false
}

// SetCouponUsedCount overwrites used_count. It exists for tests that need a
// coupon near its usage limit.
func (s *Store) SetCouponUsedCount(code string, used int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.couponByCode(code); ok {
		c.UsedCount = used
		s.coupons[c.ID] = c
	}
}
