package memstore

import (
	"context"
	"testing"

	"festival-booking/internal/models"
	"festival-booking/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedInventory(t *testing.T, s *Store, total int) {
	t.Helper()
	require.NoError(t, s.ProvisionInventory(context.Background(),
		&models.Inventory{ID: "inv-1", TimeSlotID: "slot-1", SKUID: "sku-1", TotalQuantity: total}))
}

func TestCreateOrderIsAllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedInventory(t, s, 3)

	order := &models.Order{ID: "o-1", IdempotencyKey: "k-1", Status: models.OrderStatusPending}
	bookings := []models.Booking{
		{ID: "b-1", OrderID: "o-1", TimeSlotID: "slot-1", SKUID: "sku-1", Quantity: 2},
		{ID: "b-2", OrderID: "o-1", TimeSlotID: "slot-1", SKUID: "missing", Quantity: 1},
	}

	_, err := s.CreateOrder(ctx, order, bookings)
	assert.ErrorIs(t, err, models.ErrInsufficientInventory)

	inv, err := s.GetInventory(ctx, "slot-1", "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 3, inv.AvailableQuantity)

	_, err = s.GetOrder(ctx, "o-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSetInventoryTotalPreservesSold(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedInventory(t, s, 10)
	_, err := s.ReserveInventory(ctx, "slot-1", "sku-1", 7)
	require.NoError(t, err)

	inv, err := s.SetInventoryTotal(ctx, "slot-1", "sku-1", 5, store.PreserveSold)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.AvailableQuantity)

	inv, err = s.SetInventoryTotal(ctx, "slot-1", "sku-1", 20, store.ResetAvailable)
	require.NoError(t, err)
	assert.Equal(t, 20, inv.AvailableQuantity)
}

func TestReleaseIsCapped(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedInventory(t, s, 4)

	_, err := s.ReleaseInventory(ctx, "slot-1", "sku-1", 10)
	require.NoError(t, err)

	inv, err := s.GetInventory(ctx, "slot-1", "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 4, inv.AvailableQuantity)
}

func TestCouponCodesAreCaseInsensitive(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateCoupon(ctx, &models.Coupon{ID: "c-1", Code: "SAVE10"}))
	assert.ErrorIs(t, s.CreateCoupon(ctx, &models.Coupon{ID: "c-2", Code: "save10"}), models.ErrDuplicateCouponCode)

	c, err := s.GetCouponByCode(ctx, "Save10")
	require.NoError(t, err)
	assert.Equal(t, "c-1", c.ID)
}
