package service

import (
	"context"
	"testing"

	"festival-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaConfirmsOnPaymentSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.ga, 2, ""))
	require.NoError(t, err)
	f.pay(t, order.ID, OutcomeSuccess)
	require.Len(t, f.publisher.succeeded, 1)

	event := f.publisher.succeeded[0]
	require.NoError(t, f.saga.HandlePaymentSuccess(ctx, event))

	view, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, view.Status)

	// redelivery is skipped
	require.NoError(t, f.saga.HandlePaymentSuccess(ctx, event))
	assert.Len(t, f.publisher.confirmed, 1)

	// the storefront return after the event finds the order confirmed
	again, err := f.orders.ConfirmOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, again.Status)
	assert.Len(t, f.publisher.confirmed, 1)
}

func TestSagaCancelsOnPaymentFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.vip, 2, ""))
	require.NoError(t, err)
	session := f.pay(t, order.ID, OutcomeFail)
	require.Len(t, f.publisher.failed, 1)

	require.NoError(t, f.saga.HandlePaymentFailed(ctx, f.publisher.failed[0]))

	view, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, view.Status)
	assert.Equal(t, models.CancelReasonPaymentFailed, *view.CancelReason)
	assert.Equal(t, 5, f.available(t, f.vip))

	payment, ok := f.store.Payment(session.MerchantOrderID)
	require.True(t, ok)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
}

func TestSagaAcknowledgesLatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.ga, 1, ""))
	require.NoError(t, err)
	session := f.pay(t, order.ID, OutcomeSuccess)
	require.Len(t, f.publisher.succeeded, 1)

	// the visitor cancels before the success event is consumed
	_, err = f.orders.CancelOrder(ctx, order.ID, models.CancelReasonCustomer)
	require.NoError(t, err)

	_, err = f.orders.ConfirmPaid(ctx, order.ID, session.MerchantOrderID)
	assert.ErrorIs(t, err, models.ErrOrderNotPending)

	event := f.publisher.succeeded[0]
	require.NoError(t, f.saga.HandlePaymentSuccess(ctx, event))

	view, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, view.Status)

	processed, err := f.store.IsEventProcessed(ctx, event.EventID)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestSagaHandlesDeclineForCancelledOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.ga, 1, ""))
	require.NoError(t, err)
	session, err := f.orders.InitiatePayment(ctx, order.ID, "")
	require.NoError(t, err)

	_, err = f.orders.CancelOrder(ctx, order.ID, models.CancelReasonCustomer)
	require.NoError(t, err)

	_, err = f.gateway.Complete(ctx, session.MerchantOrderID, OutcomeSuccess)
	require.NoError(t, err)
	assert.Empty(t, f.publisher.succeeded)
	require.Len(t, f.publisher.failed, 1)

	require.NoError(t, f.saga.HandlePaymentFailed(ctx, f.publisher.failed[0]))

	view, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, view.Status)
	assert.Equal(t, models.CancelReasonCustomer, *view.CancelReason)
	assert.Equal(t, 10, f.available(t, f.ga))
}
