package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"festival-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentSessionEndsWithReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.ga, 1, ""))
	require.NoError(t, err)
	session, err := f.orders.InitiatePayment(ctx, order.ID, "http://shop.local/return")
	require.NoError(t, err)

	assert.WithinDuration(t, order.ExpiresAt, session.ExpiresAt, time.Second)
	assert.Equal(t, 15*time.Minute, f.redis.TTL("payment:"+session.MerchantOrderID))
}

func TestCompleteDeclinesAfterReservationReleased(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.vip, 2, ""))
	require.NoError(t, err)
	session, err := f.orders.InitiatePayment(ctx, order.ID, "")
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	n, err := f.orders.ExpirePending(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, 5, f.available(t, f.vip))

	settled, err := f.gateway.Complete(ctx, session.MerchantOrderID, OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, settled.Status)
	assert.Empty(t, f.publisher.succeeded)
	require.Len(t, f.publisher.failed, 1)
	assert.Equal(t, DeclineReasonExpired, f.publisher.failed[0].Reason)

	require.NoError(t, f.saga.HandlePaymentFailed(ctx, f.publisher.failed[0]))

	view, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, view.Status)
	assert.Equal(t, models.CancelReasonExpired, *view.CancelReason)
	assert.Equal(t, 5, f.available(t, f.vip))
}

func TestCompleteDeclinesExpiredSessionBeforeSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.ga, 3, ""))
	require.NoError(t, err)
	session, err := f.orders.InitiatePayment(ctx, order.ID, "")
	require.NoError(t, err)

	f.clock.Advance(15 * time.Minute)
	settled, err := f.gateway.Complete(ctx, session.MerchantOrderID, OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, settled.Status)

	_, err = f.orders.ConfirmOrder(ctx, order.ID)
	assert.ErrorIs(t, err, models.ErrPaymentNotCompleted)

	view, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, view.Status)
	assert.Equal(t, 10, f.available(t, f.ga))
}

func TestCompleteChargesPendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.ga, 1, ""))
	require.NoError(t, err)
	session, err := f.orders.InitiatePayment(ctx, order.ID, "")
	require.NoError(t, err)

	f.clock.Advance(14 * time.Minute)
	settled, err := f.gateway.Complete(ctx, session.MerchantOrderID, OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, settled.Status)
	require.Len(t, f.publisher.succeeded, 1)

	// settled sessions do not change
	again, err := f.gateway.Complete(ctx, session.MerchantOrderID, OutcomeFail)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, again.Status)
	assert.Empty(t, f.publisher.failed)
}

func TestInitiateRejectsForeignReturnURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.ga, 1, ""))
	require.NoError(t, err)

	for _, target := range []string{"https://evil.example/return", "//evil.example", "ftp://shop.local/return"} {
		_, err = f.orders.InitiatePayment(ctx, order.ID, target)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), target)
		assert.Contains(t, verr.Fields, "return_url")
	}

	_, err = f.orders.InitiatePayment(ctx, order.ID, "http://SHOP.local/done?x=1")
	assert.NoError(t, err)
}

func TestCompleteRejectsUnknownOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.ga, 1, ""))
	require.NoError(t, err)
	session, err := f.orders.InitiatePayment(ctx, order.ID, "")
	require.NoError(t, err)

	_, err = f.gateway.Complete(ctx, session.MerchantOrderID, "maybe")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	status, err := f.gateway.Status(ctx, session.MerchantOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, status)
}
