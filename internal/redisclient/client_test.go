package redisclient

import (
	"context"
	"testing"
	"time"

	"festival-booking/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewFromRedis(rdb), mr
}

func TestSyncInventoryDropsStaleVersions(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	inv := models.Inventory{TimeSlotID: "slot-1", SKUID: "sku-1", TotalQuantity: 10, AvailableQuantity: 6, Version: 4}
	applied, err := c.SyncInventory(ctx, inv, time.Minute)
	require.NoError(t, err)
	assert.True(t, applied)

	stale := inv
	stale.AvailableQuantity = 8
	stale.Version = 3
	applied, err = c.SyncInventory(ctx, stale, time.Minute)
	require.NoError(t, err)
	assert.False(t, applied)

	available, total, found, err := c.GetAvailability(ctx, "slot-1", "sku-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 6, available)
	assert.Equal(t, 10, total)
}

func TestSyncInventorySetsTTL(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, err := c.SyncInventory(ctx, models.Inventory{TimeSlotID: "s", SKUID: "k", TotalQuantity: 1, AvailableQuantity: 1, Version: 1}, 30*time.Second)
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)

	_, _, found, err := c.GetAvailability(ctx, "s", "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetAvailabilityMiss(t *testing.T) {
	c, _ := newTestClient(t)

	_, _, found, err := c.GetAvailability(context.Background(), "slot-x", "sku-x")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidateInventory(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.SyncInventory(ctx, models.Inventory{TimeSlotID: "s", SKUID: "k", TotalQuantity: 3, AvailableQuantity: 3}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.InvalidateInventory(ctx, "s", "k"))

	_, _, found, err := c.GetAvailability(ctx, "s", "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPaymentSessionRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	session := &models.PaymentSession{
		MerchantOrderID: "MO-1",
		OrderID:         "order-1",
		Amount:          decimal.NewFromInt(2160),
		Status:          models.PaymentStatusPending,
	}
	require.NoError(t, c.SavePaymentSession(ctx, session, 10*time.Minute))

	session.Status = models.PaymentStatusCompleted
	require.NoError(t, c.UpdatePaymentSession(ctx, session))
	assert.True(t, mr.TTL("payment:MO-1") > 0)

	got, err := c.GetPaymentSession(ctx, "MO-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, got.Status)
	assert.True(t, decimal.NewFromInt(2160).Equal(got.Amount))

	_, err = c.GetPaymentSession(ctx, "MO-unknown")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLockIsReleasedOnlyByOwner(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	token, ok, err := c.AcquireLock(ctx, "sweeper", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.AcquireLock(ctx, "sweeper", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "sweeper", "someone-else"))
	_, ok, err = c.AcquireLock(ctx, "sweeper", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "sweeper", token))
	_, ok, err = c.AcquireLock(ctx, "sweeper", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
