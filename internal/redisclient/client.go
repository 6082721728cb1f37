package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// pendingOrder marks an idempotency key whose checkout has not committed yet
const pendingOrder = "pending"

// releaseLockScript deletes a key only if it still holds the expected value
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and verifies connectivity
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

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ReserveIdempotencyKey claims key for an in-flight checkout with SetNX.
// When the key is already taken, reserved is false and orderID is the recorded order,
// or 0 while the first checkout is still running.
func (c *Client) ReserveIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (orderID int64, reserved bool, err error) {
	rkey := idempotencyKey(key)
	reserved, err = c.rdb.SetNX(ctx, rkey, pendingOrder, ttl).Result()
	if err != nil || reserved {
		return 0, reserved, err
	}

	val, err := c.rdb.Get(ctx, rkey).Result()
	if errors.Is(err, redis.Nil) || val == pendingOrder {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	orderID, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed idempotency value %q: %w", val, err)
	}
	return orderID, false, nil
}

// SetIdempotencyKey records the order placed for an idempotency key
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), orderID, ttl).Err()
}

// ReleaseIdempotencyKey drops a reservation whose checkout did not commit; a recorded order is kept
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return releaseLockScript.Run(ctx, c.rdb, []string{idempotencyKey(key)}, pendingOrder).Err()
}

// AcquireLock takes a lock, retrying until wait elapses.
// The returned release func is a no-op when the lock was not acquired.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl, wait time.Duration) (func(), bool, error) {
	key := fmt.Sprintf("lock:%s", lockKey)
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		acquired, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return func() {}, false, err
		}
		if acquired {
			release := func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseLockScript.Run(ctx, c.rdb, []string{key}, token).Err()
			}
			return release, true, nil
		}
		if time.Now().After(deadline) {
			return func() {}, false, nil
		}

		select {
		case <-ctx.Done():
			return func() {}, false, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:checkout:%s", key)
}
