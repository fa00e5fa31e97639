package service

import (
	"context"
	"errors"
	"time"

	"festival-booking/internal/models"
	"festival-booking/internal/store"
	"festival-booking/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mirrorTTL bounds how long a mirrored counter may lag a missed update
const mirrorTTL = 5 * time.Minute

// InventoryLedger is the per (time slot, SKU) ticket counter. The database
// is authoritative; Redis keeps a versioned mirror for availability reads.
type InventoryLedger struct {
	store     InventoryStore
	cache     InventoryCache
	resetMode store.ResetMode
	logger    *zap.Logger
}

// NewInventoryLedger creates a new ledger. cache may be nil.
func NewInventoryLedger(store InventoryStore, cache InventoryCache, resetMode store.ResetMode) *InventoryLedger {
	return &InventoryLedger{
		store:     store,
		cache:     cache,
		resetMode: resetMode,
		logger:    util.GetLogger(),
	}
}

// GetAvailability returns the tickets left for a pair. Pairs that were never
// provisioned have zero availability.
func (l *InventoryLedger) GetAvailability(ctx context.Context, timeSlotID, skuID string) (int, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.GetAvailability")
	defer span.End()

	if l.cache != nil {
		available, _, found, err := l.cache.GetAvailability(ctx, timeSlotID, skuID)
		switch {
		case err != nil:
			util.InventoryCacheLookups.WithLabelValues("error").Inc()
			l.logger.Warn("Redis availability lookup failed, falling back to DB",
				zap.String("time_slot_id", timeSlotID),
				zap.String("sku_id", skuID),
				zap.Error(err))
		case found:
			util.InventoryCacheLookups.WithLabelValues("hit").Inc()
			return available, nil
		default:
			util.InventoryCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	inv, err := l.store.GetInventory(ctx, timeSlotID, skuID)
	if errors.Is(err, models.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		util.FailSpan(span, err)
		return 0, err
	}

	l.Mirror(ctx, *inv)
	return inv.AvailableQuantity, nil
}

// Reserve takes quantity tickets outside any order, as the box office does
// for holds and comps. Checkout reserves inside its own order transaction.
// It fails with ErrInsufficientInventory and changes nothing when fewer are
// available.
func (l *InventoryLedger) Reserve(ctx context.Context, timeSlotID, skuID string, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Reserve")
	defer span.End()

	if quantity <= 0 {
		return invalidField("quantity", "Quantity must be at least 1")
	}

	start := time.Now()
	inv, err := l.store.ReserveInventory(ctx, timeSlotID, skuID, quantity)
	util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, models.ErrInsufficientInventory) {
			util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		} else {
			util.InventoryReservationsFailed.WithLabelValues("error").Inc()
			util.FailSpan(span, err)
		}
		return err
	}

	l.Mirror(ctx, *inv)
	return nil
}

// Release gives quantity tickets back, never exceeding the total. Order
// cancellation releases inside its own transaction instead.
func (l *InventoryLedger) Release(ctx context.Context, timeSlotID, skuID string, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Release")
	defer span.End()

	if quantity <= 0 {
		return invalidField("quantity", "Quantity must be at least 1")
	}

	inv, err := l.store.ReleaseInventory(ctx, timeSlotID, skuID, quantity)
	if err != nil {
		util.FailSpan(span, err)
		return err
	}
	if inv != nil {
		l.Mirror(ctx, *inv)
	}
	return nil
}

// SetTotal changes the total of a pair. Availability is recomputed according
// to the configured reset mode.
func (l *InventoryLedger) SetTotal(ctx context.Context, timeSlotID, skuID string, total int) (*models.Inventory, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.SetTotal")
	defer span.End()

	if total < 0 {
		return nil, invalidField("total_quantity", "Total quantity cannot be negative")
	}

	inv, err := l.store.SetInventoryTotal(ctx, timeSlotID, skuID, total, l.resetMode)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Inventory total updated",
		zap.String("time_slot_id", timeSlotID),
		zap.String("sku_id", skuID),
		zap.Int("total", inv.TotalQuantity),
		zap.Int("available", inv.AvailableQuantity),
		zap.String("mode", string(l.resetMode)))

	l.Mirror(ctx, *inv)
	return inv, nil
}

// Provision creates the counter for a pair with every ticket available
func (l *InventoryLedger) Provision(ctx context.Context, timeSlotID, skuID string, total int) (*models.Inventory, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Provision")
	defer span.End()

	verr := &ValidationError{}
	if timeSlotID == "" {
		verr.Add("time_slot_id", "Time slot is required")
	}
	if skuID == "" {
		verr.Add("sku_id", "SKU is required")
	}
	if total < 0 {
		verr.Add("total_quantity", "Total quantity cannot be negative")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	inv := &models.Inventory{
		ID:            uuid.New().String(),
		TimeSlotID:    timeSlotID,
		SKUID:         skuID,
		TotalQuantity: total,
	}
	if err := l.store.ProvisionInventory(ctx, inv); err != nil {
		return nil, err
	}

	l.Mirror(ctx, *inv)
	return inv, nil
}

// ListBySlot returns the counters of a time slot
func (l *InventoryLedger) ListBySlot(ctx context.Context, timeSlotID string) ([]models.Inventory, error) {
	return l.store.ListInventoryBySlot(ctx, timeSlotID)
}

// Mirror pushes counters read from the database to the cache. Failures only
// cost cache freshness, so they are logged and the entry is dropped.
func (l *InventoryLedger) Mirror(ctx context.Context, counters ...models.Inventory) {
	if l.cache == nil {
		return
	}
	for _, inv := range counters {
		if _, err := l.cache.SyncInventory(ctx, inv, mirrorTTL); err != nil {
			l.logger.Warn("Failed to mirror inventory to Redis",
				zap.String("time_slot_id", inv.TimeSlotID),
				zap.String("sku_id", inv.SKUID),
				zap.Error(err))
			if err := l.cache.InvalidateInventory(ctx, inv.TimeSlotID, inv.SKUID); err != nil {
				l.logger.Error("Failed to invalidate mirrored inventory", zap.Error(err))
			}
		}
	}
}
