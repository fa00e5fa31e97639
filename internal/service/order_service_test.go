package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"festival-booking/internal/models"
	"festival-booking/internal/ticket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutWithCouponThroughCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coupon := f.coupon(t, CouponInput{
		Code:          ptr("save10"),
		DiscountType:  ptr(models.DiscountTypePercentage),
		DiscountValue: ptr(dec("10")),
		UsageLimit:    ptr(100),
	})
	assert.Equal(t, "SAVE10", coupon.Code)

	order, err := f.orders.Checkout(ctx, f.checkout(f.ga, 2, "save10"))
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, dec("2400").Equal(order.Subtotal))
	assert.True(t, dec("240").Equal(order.DiscountAmount))
	assert.True(t, dec("2160").Equal(order.TotalPrice))
	assert.Equal(t, "asha@example.com", order.VisitorEmail)
	assert.Equal(t, "919876543210", order.VisitorPhone)
	require.Len(t, order.Bookings, 1)
	assert.True(t, dec("2160").Equal(order.Bookings[0].TotalPrice))
	assert.Equal(t, 8, f.available(t, f.ga))
	assert.Len(t, f.publisher.created, 1)

	session := f.pay(t, order.ID, OutcomeSuccess)
	assert.Equal(t, models.PaymentStatusCompleted, session.Status)
	assert.True(t, dec("2160").Equal(session.Amount))

	confirmed, err := f.orders.ConfirmOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, confirmed.Status)
	assert.True(t, confirmed.CouponRedeemed)
	require.NotNil(t, confirmed.QRPayload)
	for _, b := range confirmed.Bookings {
		assert.Equal(t, models.OrderStatusConfirmed, b.Status)
	}

	stored, err := f.coupons.Get(ctx, coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)

	payment, ok := f.store.Payment(session.MerchantOrderID)
	require.True(t, ok)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)

	require.Len(t, f.publisher.tickets, 1)
	assert.Equal(t, "asha@example.com", f.publisher.tickets[0].To)
	assert.True(t, strings.HasPrefix(f.publisher.tickets[0].QRCodeDataURL, "data:image/png;base64,"))

	var payload ticket.Payload
	require.NoError(t, json.Unmarshal([]byte(*confirmed.QRPayload), &payload))
	assert.Equal(t, order.ID, payload.OrderID)
	assert.Equal(t, "2026-03-20", payload.Date)
	assert.Equal(t, "10:00", payload.Time)
	assert.Equal(t, testEventID, payload.EventID)

	// confirming again changes nothing
	again, err := f.orders.ConfirmOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, again.Status)
	stored, err = f.coupons.Get(ctx, coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)
	assert.Len(t, f.publisher.confirmed, 1)
	assert.Len(t, f.publisher.tickets, 1)

	first, err := f.orders.CheckIn(ctx, *confirmed.QRPayload)
	require.NoError(t, err)
	assert.Equal(t, CheckInValid, first.Status)
	assert.Equal(t, "Asha Rao", first.VisitorName)

	second, err := f.orders.CheckIn(ctx, *confirmed.QRPayload)
	require.NoError(t, err)
	assert.Equal(t, CheckInUsed, second.Status)
	assert.NotNil(t, second.CheckedInAt)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.ledger.Reserve(ctx, f.slotID, f.ga, 6)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrInsufficientInventory)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 4, f.available(t, f.ga))
}

func TestConcurrentCheckoutsSellExactlyWhatIsLeft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const buyers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.Checkout(ctx, f.checkout(f.vip, 1, ""))
			if err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, models.ErrInsufficientInventory)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, sold)
	assert.Equal(t, 0, f.available(t, f.vip))
}

func TestCheckoutShortfallReservesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.checkout(f.ga, 8, "")
	req.Items = append(req.Items, CheckoutItem{SKUID: f.vip, Quantity: 6})

	_, err := f.orders.Checkout(ctx, req)
	assert.ErrorIs(t, err, models.ErrInsufficientInventory)
	assert.Equal(t, 10, f.available(t, f.ga))
	assert.Equal(t, 5, f.available(t, f.vip))
	assert.Empty(t, f.publisher.created)
}

func TestCheckoutReplaysIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.checkout(f.ga, 3, "")
	req.IdempotencyKey = "checkout-abc"
	first, err := f.orders.Checkout(ctx, req)
	require.NoError(t, err)

	replay := f.checkout(f.ga, 3, "")
	replay.IdempotencyKey = "checkout-abc"
	second, err := f.orders.Checkout(ctx, replay)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Bookings, 1)
	assert.Equal(t, 7, f.available(t, f.ga))
}

func TestCheckoutMergesRepeatedTicketTypes(t *testing.T) {
	f := newFixture(t)

	req := f.checkout(f.ga, 1, "")
	req.Items = append(req.Items, CheckoutItem{SKUID: f.vip, Quantity: 1}, CheckoutItem{SKUID: f.ga, Quantity: 2})

	order, err := f.orders.Checkout(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, order.Bookings, 2)
	assert.Equal(t, f.ga, order.Bookings[0].SKUID)
	assert.Equal(t, 3, order.Bookings[0].Quantity)
	assert.True(t, dec("6100").Equal(order.TotalPrice))
	assert.Equal(t, 7, f.available(t, f.ga))
}

func TestCheckoutAllocatesDiscountAcrossLines(t *testing.T) {
	f := newFixture(t)
	f.coupon(t, CouponInput{
		Code:          ptr("FLAT100"),
		DiscountType:  ptr(models.DiscountTypeFixedAmount),
		DiscountValue: ptr(dec("100")),
	})

	req := f.checkout(f.ga, 1, "flat100")
	req.Items = append(req.Items, CheckoutItem{SKUID: f.vip, Quantity: 1})

	order, err := f.orders.Checkout(context.Background(), req)
	require.NoError(t, err)

	sum := order.Bookings[0].TotalPrice.Add(order.Bookings[1].TotalPrice)
	assert.True(t, sum.Equal(order.TotalPrice))
	assert.True(t, dec("3600").Equal(order.TotalPrice))
	for _, b := range order.Bookings {
		assert.True(t, b.Subtotal.Sub(b.DiscountAmount).Equal(b.TotalPrice))
		require.NotNil(t, b.CouponCode)
		assert.Equal(t, "FLAT100", *b.CouponCode)
	}
}

func TestCheckoutRejectsInvalidCoupon(t *testing.T) {
	f := newFixture(t)
	f.coupon(t, CouponInput{
		Code:           ptr("BIGSPEND"),
		DiscountType:   ptr(models.DiscountTypePercentage),
		DiscountValue:  ptr(dec("20")),
		MinOrderAmount: ptr(dec("5000")),
	})

	_, err := f.orders.Checkout(context.Background(), f.checkout(f.ga, 1, "BIGSPEND"))

	var couponErr *CouponError
	require.ErrorAs(t, err, &couponErr)
	assert.ErrorIs(t, err, models.ErrCouponInvalid)
	assert.Equal(t, "Minimum order amount of ₹5000 required", couponErr.Reason)
	assert.Equal(t, 10, f.available(t, f.ga))

	_, err = f.orders.Checkout(context.Background(), f.checkout(f.ga, 1, "NOPE"))
	require.ErrorAs(t, err, &couponErr)
	assert.Equal(t, "Invalid coupon code", couponErr.Reason)
}

func TestCheckoutValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := &CheckoutRequest{
		TimeSlotID: f.slotID,
		Items:      []CheckoutItem{{SKUID: f.ga, Quantity: 0}},
		Visitor:    Visitor{Name: "A", Email: "not-an-email", Phone: "123"},
	}
	_, err := f.orders.Checkout(ctx, req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "visitor.name")
	assert.Contains(t, verr.Fields, "visitor.email")
	assert.Contains(t, verr.Fields, "visitor.phone")
	assert.Contains(t, verr.Fields, "items[0].quantity")

	require.NoError(t, f.catalog.SetSKUActive(ctx, f.vip, false))
	_, err = f.orders.Checkout(ctx, f.checkout(f.vip, 1, ""))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "items[0].sku_id")

	require.NoError(t, f.catalog.SetDateAvailability(ctx, f.dateID, false))
	_, err = f.orders.Checkout(ctx, f.checkout(f.ga, 1, ""))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "time_slot_id")

	_, err = f.orders.Checkout(ctx, &CheckoutRequest{
		TimeSlotID: "missing",
		Items:      []CheckoutItem{{SKUID: f.ga, Quantity: 1}},
		Visitor:    Visitor{Name: "Asha Rao", Email: "asha@example.com", Phone: "9876543210"},
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConfirmRequiresCompletedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.ga, 2, ""))
	require.NoError(t, err)

	_, err = f.orders.ConfirmOrder(ctx, order.ID)
	assert.ErrorIs(t, err, models.ErrPaymentNotCompleted)

	_, err = f.orders.InitiatePayment(ctx, order.ID, "")
	require.NoError(t, err)
	_, err = f.orders.ConfirmOrder(ctx, order.ID)
	assert.ErrorIs(t, err, models.ErrPaymentNotCompleted)

	view, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, view.Status)
	assert.Equal(t, 8, f.available(t, f.ga))
}

func TestFailedPaymentCancelsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.ga, 2, ""))
	require.NoError(t, err)
	session := f.pay(t, order.ID, OutcomeFail)
	assert.Equal(t, models.PaymentStatusFailed, session.Status)

	_, err = f.orders.ConfirmOrder(ctx, order.ID)
	assert.ErrorIs(t, err, models.ErrPaymentNotCompleted)

	view, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, view.Status)
	require.NotNil(t, view.CancelReason)
	assert.Equal(t, models.CancelReasonPaymentFailed, *view.CancelReason)
	assert.Equal(t, 10, f.available(t, f.ga))
}

func TestExhaustedCouponStillConfirms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coupon := f.coupon(t, CouponInput{
		Code:          ptr("ONCE"),
		DiscountType:  ptr(models.DiscountTypeFixedAmount),
		DiscountValue: ptr(dec("200")),
		UsageLimit:    ptr(1),
	})

	first, err := f.orders.Checkout(ctx, f.checkout(f.ga, 1, "ONCE"))
	require.NoError(t, err)
	second, err := f.orders.Checkout(ctx, f.checkout(f.ga, 1, "ONCE"))
	require.NoError(t, err)

	f.pay(t, first.ID, OutcomeSuccess)
	f.pay(t, second.ID, OutcomeSuccess)

	a, err := f.orders.ConfirmOrder(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, a.CouponRedeemed)

	b, err := f.orders.ConfirmOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, b.Status)
	assert.False(t, b.CouponRedeemed)
	assert.True(t, dec("1000").Equal(b.TotalPrice))

	stored, err := f.coupons.Get(ctx, coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.Checkout(ctx, f.checkout(f.vip, 3, ""))
	require.NoError(t, err)
	assert.Equal(t, 2, f.available(t, f.vip))

	cancelled, err := f.orders.CancelOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, models.CancelReasonCustomer, *cancelled.CancelReason)
	assert.Equal(t, 5, f.available(t, f.vip))

	again, err := f.orders.CancelOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, again.Status)
	assert.Equal(t, 5, f.available(t, f.vip))
	assert.Len(t, f.publisher.cancelled, 1)

	paid, err := f.orders.Checkout(ctx, f.checkout(f.vip, 1, ""))
	require.NoError(t, err)
	f.pay(t, paid.ID, OutcomeSuccess)
	_, err = f.orders.ConfirmOrder(ctx, paid.ID)
	require.NoError(t, err)

	_, err = f.orders.CancelOrder(ctx, paid.ID, "")
	assert.ErrorIs(t, err, models.ErrOrderNotPending)
	assert.Equal(t, 4, f.available(t, f.vip))

	_, err = f.orders.ConfirmOrder(ctx, order.ID)
	assert.ErrorIs(t, err, models.ErrPaymentNotCompleted)
}

func TestExpirePendingReleasesReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, err := f.orders.Checkout(ctx, f.checkout(f.ga, 4, ""))
	require.NoError(t, err)
	late, err := f.orders.Checkout(ctx, f.checkout(f.vip, 2, ""))
	require.NoError(t, err)

	n, err := f.orders.ExpirePending(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(16 * time.Minute)
	fresh, err := f.orders.Checkout(ctx, f.checkout(f.ga, 1, ""))
	require.NoError(t, err)

	_, err = f.orders.InitiatePayment(ctx, late.ID, "")
	assert.ErrorIs(t, err, models.ErrOrderNotPending)

	n, err = f.orders.ExpirePending(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	view, err := f.orders.GetOrder(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, view.Status)
	assert.Equal(t, models.CancelReasonExpired, *view.CancelReason)

	view, err = f.orders.GetOrder(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, view.Status)

	assert.Equal(t, 9, f.available(t, f.ga))
	assert.Equal(t, 5, f.available(t, f.vip))
}

func TestCheckInRejectsForeignAndForgedTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.orders.CheckIn(ctx, "not a ticket")
	require.NoError(t, err)
	assert.Equal(t, CheckInInvalid, res.Status)

	foreign, err := (&ticket.Payload{OrderID: "o-1", EventID: "other-festival"}).Encode()
	require.NoError(t, err)
	res, err = f.orders.CheckIn(ctx, foreign)
	require.NoError(t, err)
	assert.Equal(t, CheckInWrongEvent, res.Status)

	order, err := f.orders.Checkout(ctx, f.checkout(f.ga, 1, ""))
	require.NoError(t, err)
	forged, err := (&ticket.Payload{OrderID: order.ID, EventID: testEventID}).Encode()
	require.NoError(t, err)

	// pending orders never admit
	res, err = f.orders.CheckIn(ctx, forged)
	require.NoError(t, err)
	assert.Equal(t, CheckInInvalid, res.Status)

	f.pay(t, order.ID, OutcomeSuccess)
	_, err = f.orders.ConfirmOrder(ctx, order.ID)
	require.NoError(t, err)

	res, err = f.orders.CheckIn(ctx, forged)
	require.NoError(t, err)
	assert.Equal(t, CheckInInvalid, res.Status)
}
