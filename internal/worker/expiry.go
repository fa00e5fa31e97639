package worker

import (
	"context"
	"time"

	"festival-booking/internal/util"

	"go.uber.org/zap"
)

const (
	sweepLockKey = "reservation-sweeper"
	sweepBatch   = 100
)

// Expirer cancels pending orders whose reservation window closed
type Expirer interface {
	ExpirePending(ctx context.Context, limit int) (int, error)
}

// Locker is a distributed mutex
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// ExpirySweeper periodically releases the reservations of abandoned
// checkouts. With several replicas running, the Redis lock lets one sweep
// at a time.
type ExpirySweeper struct {
	expirer  Expirer
	locker   Locker
	interval time.Duration
	logger   *zap.Logger
}

// NewExpirySweeper creates a sweeper. locker may be nil for a single instance.
func NewExpirySweeper(expirer Expirer, locker Locker, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		expirer:  expirer,
		locker:   locker,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start sweeps immediately and then on every tick until ctx is cancelled
func (s *ExpirySweeper) Start(ctx context.Context) error {
	s.logger.Info("Starting reservation expiry sweeper", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reservation expiry sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. It returns how many orders were expired.
func (s *ExpirySweeper) Sweep(ctx context.Context) int {
	if s.locker != nil {
		token, ok, err := s.locker.AcquireLock(ctx, sweepLockKey, s.interval)
		if err != nil {
			s.logger.Error("Failed to acquire sweeper lock", zap.Error(err))
			return 0
		}
		if !ok {
			s.logger.Debug("Another instance is sweeping")
			return 0
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), sweepLockKey, token); err != nil {
				s.logger.Warn("Failed to release sweeper lock", zap.Error(err))
			}
		}()
	}

	total := 0
	for ctx.Err() == nil {
		n, err := s.expirer.ExpirePending(ctx, sweepBatch)
		if err != nil {
			s.logger.Error("Failed to expire pending orders", zap.Error(err))
			break
		}
		total += n
		if n < sweepBatch {
			break
		}
	}
	return total
}
