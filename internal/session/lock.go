package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL    = 30 * time.Second
	lockRetryInterval = 50 * time.Millisecond
)

// releaseScript deletes the lease only if the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lock serializes conversation turns per (clinic, contact) pair via a Redis
// lease. Turns for the same contact run one at a time; different contacts
// proceed in parallel.
type Lock struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewLock builds a session lock with the given lease duration. A ttl of zero
// uses the default.
func NewLock(redisClient *redis.Client, ttl time.Duration) *Lock {
	if redisClient == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Lock{redis: redisClient, ttl: ttl}
}

// Acquire blocks until the lease for the pair is held or ctx expires. The
// returned function releases the lease; it is safe to call exactly once.
func (l *Lock) Acquire(ctx context.Context, clinicID, contact string) (func(), error) {
	key := lockKey(clinicID, contact)
	token := uuid.NewString()

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("session: failed to acquire lock: %w", err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_, _ = releaseScript.Run(releaseCtx, l.redis, []string{key}, token).Result()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("session: lock wait aborted: %w", ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
}

func lockKey(clinicID, contact string) string {
	return fmt.Sprintf("session_lock:%s:%s", clinicID, contact)
}
