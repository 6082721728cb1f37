package redisclient

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestClient(t *testing.T) *Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Integration test - set TEST_REDIS_ADDR to run")
	}

	client, err := NewClient(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIdempotencyKey(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("guest:a@b.com:%d", time.Now().UnixNano())
	t.Cleanup(func() { client.GetClient().Del(ctx, idempotencyKey(key)) })

	_, reserved, err := client.ReserveIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)

	orderID, reserved, err := client.ReserveIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, reserved, "second claim while the first checkout runs")
	assert.Zero(t, orderID)

	require.NoError(t, client.SetIdempotencyKey(ctx, key, 42, time.Minute))

	orderID, reserved, err = client.ReserveIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, int64(42), orderID)

	// a recorded order survives release
	require.NoError(t, client.ReleaseIdempotencyKey(ctx, key))
	orderID, _, err = client.ReserveIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(42), orderID)
}

func TestReleaseIdempotencyKey(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("customer:7:%d", time.Now().UnixNano())
	t.Cleanup(func() { client.GetClient().Del(ctx, idempotencyKey(key)) })

	_, reserved, err := client.ReserveIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)

	require.NoError(t, client.ReleaseIdempotencyKey(ctx, key))

	_, reserved, err = client.ReserveIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved, "a released key can be claimed again")
}

func TestAcquireLock(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("guest:%d", time.Now().UnixNano())

	release, acquired, err := client.AcquireLock(ctx, key, 5*time.Second, 0)
	require.NoError(t, err)
	require.True(t, acquired)

	_, acquired, err = client.AcquireLock(ctx, key, 5*time.Second, 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, acquired, "lock is held")

	release()

	release, acquired, err = client.AcquireLock(ctx, key, 5*time.Second, 0)
	require.NoError(t, err)
	assert.True(t, acquired)
	release()
}

func TestIdempotencyKeyNamespace(t *testing.T) {
	assert.Equal(t, "idempotency:checkout:customer:7:k", idempotencyKey("customer:7:k"))
}
