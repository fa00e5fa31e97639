package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"festival-booking/internal/models"
	"festival-booking/internal/redisclient"
	"festival-booking/internal/store"
	"festival-booking/internal/store/memstore"
	"festival-booking/internal/ticket"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testEventID = "festival-2026"

type fakePublisher struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	confirmed []*models.OrderConfirmedEvent
	cancelled []*models.OrderCancelledEvent
	succeeded []*models.PaymentSuccessEvent
	failed    []*models.PaymentFailedEvent
	tickets   []*models.TicketIssuedEvent
}

func (p *fakePublisher) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *fakePublisher) PublishOrderConfirmed(ctx context.Context, e *models.OrderConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, e)
	return nil
}

func (p *fakePublisher) PublishOrderCancelled(ctx context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return nil
}

func (p *fakePublisher) PublishPaymentSuccess(ctx context.Context, e *models.PaymentSuccessEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.succeeded = append(p.succeeded, e)
	return nil
}

func (p *fakePublisher) PublishPaymentFailed(ctx context.Context, e *models.PaymentFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, e)
	return nil
}

func (p *fakePublisher) PublishTicketIssued(ctx context.Context, e *models.TicketIssuedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickets = append(p.tickets, e)
	return nil
}

type fixture struct {
	store     *memstore.Store
	redis     *miniredis.Miniredis
	publisher *fakePublisher
	clock     *Clock

	ledger  *InventoryLedger
	catalog *CatalogService
	coupons *CouponService
	gateway *SimulatedGateway
	orders  *OrderService
	saga    *SagaOrchestrator

	dateID string
	slotID string
	ga     string
	vip    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	cache := redisclient.NewFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })

	f := &fixture{
		store:     memstore.New(),
		redis:     mr,
		publisher: &fakePublisher{},
		clock:     FixedClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)),
	}

	f.ledger = NewInventoryLedger(f.store, cache, store.PreserveSold)
	f.catalog = NewCatalogService(f.store, f.ledger, testEventID)
	f.coupons = NewCouponService(f.store, f.clock, "₹")
	f.gateway = NewSimulatedGateway(cache, f.store, f.publisher, f.clock, GatewayConfig{
		BaseURL:       "http://localhost:8080",
		StorefrontURL: "http://shop.local",
		SuccessRate:   1.0,
		SessionTTL:    30 * time.Minute,
	})
	f.orders = NewOrderService(f.store, f.ledger, f.coupons, f.gateway, f.publisher, f.clock, OrderServiceConfig{
		Event:          ticket.Event{ID: testEventID, Name: "Spring Lights", Venue: "Riverside Grounds"},
		ReservationTTL: 15 * time.Minute,
	})
	f.saga = NewSagaOrchestrator(f.store, f.orders)

	ctx := context.Background()

	date, err := f.catalog.CreateDate(ctx, "2026-03-20", true)
	require.NoError(t, err)
	f.dateID = date.ID

	slot, err := f.catalog.CreateSlot(ctx, TimeSlotInput{EventDateID: date.ID, StartTime: "10:00", EndTime: "14:00", Capacity: 500})
	require.NoError(t, err)
	f.slotID = slot.ID

	ga, err := f.catalog.CreateSKU(ctx, SKUInput{Name: "General Admission", BasePrice: decimal.NewFromInt(1200)})
	require.NoError(t, err)
	f.ga = ga.ID

	vip, err := f.catalog.CreateSKU(ctx, SKUInput{Name: "VIP", BasePrice: decimal.NewFromInt(2500)})
	require.NoError(t, err)
	f.vip = vip.ID

	_, err = f.ledger.Provision(ctx, f.slotID, f.ga, 10)
	require.NoError(t, err)
	_, err = f.ledger.Provision(ctx, f.slotID, f.vip, 5)
	require.NoError(t, err)

	return f
}

func (f *fixture) coupon(t *testing.T, in CouponInput) *models.Coupon {
	t.Helper()
	c, err := f.coupons.Create(context.Background(), in)
	require.NoError(t, err)
	return c
}

func (f *fixture) available(t *testing.T, skuID string) int {
	t.Helper()
	n, err := f.ledger.GetAvailability(context.Background(), f.slotID, skuID)
	require.NoError(t, err)
	return n
}

func (f *fixture) checkout(sku string, qty int, coupon string) *CheckoutRequest {
	return &CheckoutRequest{
		TimeSlotID: f.slotID,
		Items:      []CheckoutItem{{SKUID: sku, Quantity: qty}},
		CouponCode: coupon,
		Visitor:    Visitor{Name: "Asha Rao", Email: "Asha@Example.com", Phone: "+91 98765 43210"},
	}
}

// pay runs the simulated payment page for an order with the given outcome
func (f *fixture) pay(t *testing.T, orderID, outcome string) *models.PaymentSession {
	t.Helper()
	ctx := context.Background()
	session, err := f.orders.InitiatePayment(ctx, orderID, "http://shop.local/return")
	require.NoError(t, err)
	session, err = f.gateway.Complete(ctx, session.MerchantOrderID, outcome)
	require.NoError(t, err)
	return session
}

func ptr[T any](v T) *T {
	return &v
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
