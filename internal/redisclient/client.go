package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// Client caches read-side projections. Correctness of reservations lives in
// the row-locked ledger, so everything here is advisory: a cache miss or a
// Redis outage only costs a database read.
type Client struct {
	rdb *redis.Client
}

const availabilityTTL = 10 * time.Second

// NewClient creates a new Redis client
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

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetAvailability returns a cached availability snapshot for the review
// projection, or ok=false on a miss.
func (c *Client) GetAvailability(ctx context.Context, warehouseID, productID int64) (decimal.Decimal, bool, error) {
	key := availabilityKey(warehouseID, productID)

	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	qty, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt availability cache for %s: %w", key, err)
	}
	return qty, true, nil
}

// SetAvailability stores an availability snapshot with a short TTL.
func (c *Client) SetAvailability(ctx context.Context, warehouseID, productID int64, qty decimal.Decimal) error {
	return c.rdb.Set(ctx, availabilityKey(warehouseID, productID), qty.String(), availabilityTTL).Err()
}

// InvalidateAvailability drops the snapshot after stock-changing operations.
func (c *Client) InvalidateAvailability(ctx context.Context, warehouseID, productID int64) error {
	return c.rdb.Del(ctx, availabilityKey(warehouseID, productID)).Err()
}

// ClaimReceipt takes the one-shot guard against a double-submitted receipt
// for a shipment. Returns false if another submission already holds it.
func (c *Client) ClaimReceipt(ctx context.Context, shipmentID int64, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("receipt:%d", shipmentID), "1", ttl).Result()
}

// ReleaseReceipt frees the receipt guard after a failed attempt so the
// store can resubmit.
func (c *Client) ReleaseReceipt(ctx context.Context, shipmentID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf("receipt:%d", shipmentID)).Err()
}

func availabilityKey(warehouseID, productID int64) string {
	return fmt.Sprintf("availability:%d:%d", warehouseID, productID)
}
