//go:build integration

package idempotency_test

import (
	"context"
	"testing"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/testenv"
	"github.com/dmehra2102/payment-gateway/pkg/idempotency"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: testenv.Redis(t)})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := idempotency.NewRedisLocker(rdb)
	ctx := context.Background()

	unlock, err := locker.Acquire(ctx, "K1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "K1", time.Minute)
	assert.ErrorIs(t, err, idempotency.ErrLocked)

	other, err := locker.Acquire(ctx, "K2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	again, err := locker.Acquire(ctx, "K1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLocker_ExpiredHolderCannotReleaseSuccessor(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: testenv.Redis(t)})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := idempotency.NewRedisLocker(rdb)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "K", 100*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	current, err := locker.Acquire(ctx, "K", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	_, err = locker.Acquire(ctx, "K", time.Minute)
	assert.ErrorIs(t, err, idempotency.ErrLocked, "stale unlock must not drop the successor's lock")

	require.NoError(t, current(ctx))
}
