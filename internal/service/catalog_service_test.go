package service

import (
	"context"
	"testing"

	"festival-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSKUsWithAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.Checkout(ctx, f.checkout(f.ga, 3, ""))
	require.NoError(t, err)

	extra, err := f.catalog.CreateSKU(ctx, SKUInput{Name: "Family Pack", BasePrice: dec("3000")})
	require.NoError(t, err)
	hidden, err := f.catalog.CreateSKU(ctx, SKUInput{Name: "Backstage", BasePrice: dec("9000"), IsActive: ptr(false)})
	require.NoError(t, err)

	skus, err := f.catalog.ListSKUsWithAvailability(ctx, f.slotID)
	require.NoError(t, err)

	byID := map[string]int{}
	for _, s := range skus {
		byID[s.ID] = s.Available
	}
	assert.Equal(t, 7, byID[f.ga])
	assert.Equal(t, 5, byID[f.vip])
	// never provisioned for this slot
	assert.Equal(t, 0, byID[extra.ID])
	assert.NotContains(t, byID, hidden.ID)

	_, err = f.catalog.ListSKUsWithAvailability(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListDatesAndSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closed, err := f.catalog.CreateDate(ctx, "2026-03-21", false)
	require.NoError(t, err)

	dates, err := f.catalog.ListDates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.Equal(t, "2026-03-20", dates[0].Date)

	all, err := f.catalog.AllDates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	slots, err := f.catalog.ListSlots(ctx, f.dateID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "10:00", slots[0].StartTime)

	slots, err = f.catalog.ListSlots(ctx, closed.ID)
	require.NoError(t, err)
	assert.Empty(t, slots)

	_, err = f.catalog.ListSlots(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCatalogAdminValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.CreateDate(ctx, "20/03/2026", true)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "date")

	_, err = f.catalog.CreateSlot(ctx, TimeSlotInput{EventDateID: f.dateID, StartTime: "14:00", EndTime: "14:00"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "end_time")

	_, err = f.catalog.CreateSlot(ctx, TimeSlotInput{EventDateID: f.dateID, StartTime: "9:00", EndTime: "25:00"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "start_time")
	assert.Contains(t, verr.Fields, "end_time")

	_, err = f.catalog.CreateSlot(ctx, TimeSlotInput{EventDateID: "missing", StartTime: "09:00", EndTime: "11:00"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.catalog.CreateSKU(ctx, SKUInput{Name: " ", BasePrice: dec("-1")})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "base_price")
}

func TestDeleteSKUInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.Checkout(ctx, f.checkout(f.vip, 1, ""))
	require.NoError(t, err)

	err = f.catalog.DeleteSKU(ctx, f.vip)
	assert.ErrorIs(t, err, models.ErrInUse)

	unused, err := f.catalog.CreateSKU(ctx, SKUInput{Name: "Parking", BasePrice: dec("150")})
	require.NoError(t, err)
	require.NoError(t, f.catalog.DeleteSKU(ctx, unused.ID))
}
