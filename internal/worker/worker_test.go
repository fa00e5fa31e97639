package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"festival-booking/internal/broker"
	"festival-booking/internal/models"
	"festival-booking/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSaga struct {
	succeeded []string
	failed    []string
}

func (s *recordingSaga) HandlePaymentSuccess(ctx context.Context, e *models.PaymentSuccessEvent) error {
	s.succeeded = append(s.succeeded, e.OrderID)
	return nil
}

func (s *recordingSaga) HandlePaymentFailed(ctx context.Context, e *models.PaymentFailedEvent) error {
	s.failed = append(s.failed, e.OrderID)
	return nil
}

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestOrderWorkerRoutesPaymentEvents(t *testing.T) {
	saga := &recordingSaga{}
	w := NewOrderWorker(nil, saga)
	ctx := context.Background()

	require.NoError(t, w.Handle(ctx, message(t, &models.PaymentSuccessEvent{
		BaseEvent:       broker.NewBaseEvent(models.EventTypePaymentSuccess),
		OrderID:         "order-1",
		MerchantOrderID: "MO-1",
		Amount:          decimal.NewFromInt(2160),
	})))
	require.NoError(t, w.Handle(ctx, message(t, &models.PaymentFailedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypePaymentFailed),
		OrderID:   "order-2",
		Reason:    "declined",
	})))
	// other events on the topic are ignored
	require.NoError(t, w.Handle(ctx, message(t, &models.OrderCancelledEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   "order-3",
	})))
	require.NoError(t, w.Handle(ctx, kafka.Message{Value: []byte("{garbage")}))

	assert.Equal(t, []string{"order-1"}, saga.succeeded)
	assert.Equal(t, []string{"order-2"}, saga.failed)
}

type countingExpirer struct {
	mu      sync.Mutex
	batches []int
	calls   int
}

func (e *countingExpirer) ExpirePending(ctx context.Context, limit int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.calls >= len(e.batches) {
		return 0, nil
	}
	n := e.batches[e.calls]
	e.calls++
	return n, nil
}

func newLocker(t *testing.T) (*redisclient.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	c := redisclient.NewFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestSweepDrainsFullBatches(t *testing.T) {
	locker, mr := newLocker(t)
	expirer := &countingExpirer{batches: []int{sweepBatch, 7}}
	s := NewExpirySweeper(expirer, locker, time.Minute)

	assert.Equal(t, sweepBatch+7, s.Sweep(context.Background()))
	assert.Equal(t, 2, expirer.calls)
	assert.False(t, mr.Exists("lock:"+sweepLockKey))
}

func TestSweepSkipsWhileAnotherInstanceHoldsTheLock(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	token, ok, err := locker.AcquireLock(ctx, sweepLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	expirer := &countingExpirer{batches: []int{3}}
	s := NewExpirySweeper(expirer, locker, time.Minute)
	assert.Zero(t, s.Sweep(ctx))
	assert.Zero(t, expirer.calls)

	require.NoError(t, locker.ReleaseLock(ctx, sweepLockKey, token))
	assert.Equal(t, 3, s.Sweep(ctx))
}

func TestSweeperStopsOnCancel(t *testing.T) {
	expirer := &countingExpirer{batches: []int{1}}
	s := NewExpirySweeper(expirer, nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		expirer.mu.Lock()
		defer expirer.mu.Unlock()
		return expirer.calls >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
