package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockBusy indicates another holder owns the critical section.
var ErrLockBusy = errors.New("lock already held")

// ReconcileLockKey builds redis keys for per-person reconciliation runs.
func ReconcileLockKey(person string, period BillingPeriod) string {
	return fmt.Sprintf("expenses:reconcile:%s:%s:lock", person, period)
}

// Locker serializes critical sections through redis SETNX leases.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker constructs a Locker with the given lease TTL.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes the lock or returns ErrLockBusy.
func (l *Locker) Acquire(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return errors.New("locker not initialised")
	}
	ok, err := l.client.SetNX(ctx, key, time.Now().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	if !ok {
		return ErrLockBusy
	}
	return nil
}

// Release drops the lock. Releasing an expired lock is harmless.
func (l *Locker) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, key).Err()
}
