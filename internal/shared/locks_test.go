package shared_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/opsledger/opsledger/internal/shared"
)

func TestLockerAcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := shared.NewLocker(client, time.Minute)
	ctx := context.Background()

	key := shared.ReconcileLockKey("dev@corp.test", "January 2026")
	require.NoError(t, locker.Acquire(ctx, key))
	require.ErrorIs(t, locker.Acquire(ctx, key), shared.ErrLockBusy)

	require.NoError(t, locker.Release(ctx, key))
	require.NoError(t, locker.Acquire(ctx, key))
}

func TestLockerLeaseExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := shared.NewLocker(client, time.Minute)
	ctx := context.Background()

	key := shared.ReconcileLockKey("dev@corp.test", "January 2026")
	require.NoError(t, locker.Acquire(ctx, key))

	// A crashed holder never releases; the lease TTL unblocks the next run.
	mr.FastForward(2 * time.Minute)
	require.NoError(t, locker.Acquire(ctx, key))
}

func TestLockerKeysIsolatePersonAndPeriod(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := shared.NewLocker(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, locker.Acquire(ctx, shared.ReconcileLockKey("dev@corp.test", "January 2026")))
	require.NoError(t, locker.Acquire(ctx, shared.ReconcileLockKey("ops@corp.test", "January 2026")))
	require.NoError(t, locker.Acquire(ctx, shared.ReconcileLockKey("dev@corp.test", "February 2026")))
}
