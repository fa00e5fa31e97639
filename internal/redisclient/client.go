package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"festival-booking/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/sync_inventory.lua
var syncInventoryScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	syncScript    *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		syncScript:    redis.NewScript(syncInventoryScript),
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func inventoryKey(timeSlotID, skuID string) string {
	return fmt.Sprintf("inventory:%s:%s", timeSlotID, skuID)
}

// SyncInventory mirrors a counter read from the database. Counters carrying
// an older version than the mirror are ignored; the return value reports
// whether the write was applied.
func (c *Client) SyncInventory(ctx context.Context, inv models.Inventory, ttl time.Duration) (bool, error) {
	key := inventoryKey(inv.TimeSlotID, inv.SKUID)

	result, err := c.syncScript.Run(ctx, c.rdb, []string{key},
		inv.TotalQuantity, inv.AvailableQuantity, inv.Version, ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("sync inventory script failed: %w", err)
	}

	applied, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return applied == 1, nil
}

// GetAvailability reads a mirrored counter. found is false on a cache miss.
func (c *Client) GetAvailability(ctx context.Context, timeSlotID, skuID string) (available, total int, found bool, err error) {
	result, err := c.rdb.HMGet(ctx, inventoryKey(timeSlotID, skuID), "available", "total").Result()
	if err != nil {
		return 0, 0, false, err
	}

	if len(result) != 2 || result[0] == nil || result[1] == nil {
		return 0, 0, false, nil
	}

	available, err = strconv.Atoi(fmt.Sprint(result[0]))
	if err != nil {
		return 0, 0, false, fmt.Errorf("bad available value: %w", err)
	}
	total, err = strconv.Atoi(fmt.Sprint(result[1]))
	if err != nil {
		return 0, 0, false, fmt.Errorf("bad total value: %w", err)
	}

	return available, total, true, nil
}

// InvalidateInventory drops a mirrored counter
func (c *Client) InvalidateInventory(ctx context.Context, timeSlotID, skuID string) error {
	return c.rdb.Del(ctx, inventoryKey(timeSlotID, skuID)).Err()
}

func paymentKey(merchantOrderID string) string {
	return fmt.Sprintf("payment:%s", merchantOrderID)
}

// SavePaymentSession stores a gateway session with TTL
func (c *Client) SavePaymentSession(ctx context.Context, session *models.PaymentSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal payment session: %w", err)
	}
	return c.rdb.Set(ctx, paymentKey(session.MerchantOrderID), data, ttl).Err()
}

// UpdatePaymentSession rewrites a session keeping its remaining TTL
func (c *Client) UpdatePaymentSession(ctx context.Context, session *models.PaymentSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal payment session: %w", err)
	}
	return c.rdb.SetArgs(ctx, paymentKey(session.MerchantOrderID), data, redis.SetArgs{KeepTTL: true}).Err()
}

// GetPaymentSession loads a gateway session. Expired or unknown sessions
// return models.ErrNotFound.
func (c *Client) GetPaymentSession(ctx context.Context, merchantOrderID string) (*models.PaymentSession, error) {
	data, err := c.rdb.Get(ctx, paymentKey(merchantOrderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("payment session %s: %w", merchantOrderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var session models.PaymentSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment session: %w", err)
	}
	return &session, nil
}

// AcquireLock acquires a distributed lock. The returned token must be passed
// to ReleaseLock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock if it is still held by token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
