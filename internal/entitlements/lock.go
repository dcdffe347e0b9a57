package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL     = 30 * time.Second
	lockAcquireRetries = 5
	lockRetryBackoff   = 50 * time.Millisecond
)

// ErrLockBusy is returned when the per-user lock could not be acquired within
// the retry budget. Callers treat it as retryable.
var ErrLockBusy = errors.New("reconcile lock busy")

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	ReconcileLockKey(userID string) string
}

// UserLock serializes reconciliation per user via Redis SETNX + TTL.
type UserLock struct {
	client lockStore
	ttl    time.Duration
}

func NewUserLock(client lockStore, ttl time.Duration) (*UserLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &UserLock{client: client, ttl: ttl}, nil
}

// Acquire claims the user's lock, retrying briefly on contention. The returned
// release func frees the lock only while this caller still owns it.
func (l *UserLock) Acquire(ctx context.Context, userID string) (func(context.Context) error, error) {
	key := l.client.ReconcileLockKey(userID)
	owner := uuid.NewString()

	backoff := lockRetryBackoff
	for attempt := 0; attempt <= lockAcquireRetries; attempt++ {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("setnx: %w", err)
		}
		if ok {
			return func(releaseCtx context.Context) error {
				return l.release(releaseCtx, key, owner)
			}, nil
		}
		if attempt == lockAcquireRetries {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, ErrLockBusy
}

func (l *UserLock) release(ctx context.Context, key, owner string) error {
	value, err := l.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != owner {
		// TTL expired and someone else owns it now
		return nil
	}
	if err := l.client.Del(ctx, key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}
