package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when it still holds our token,
// so an expired lock re-acquired by another instance is never released by
// the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker backed by Redis SET NX with a TTL, for
// deployments where multiple instances reconcile against the same store.
// The TTL bounds how long a crashed holder can block a key.
type RedisLocker struct {
	client    redis.UniversalClient
	ttl       time.Duration
	retryWait time.Duration
	prefix    string
}

// NewRedisLocker creates a locker. ttl must cover the longest expected
// critical section; retries poll at retryWait intervals.
func NewRedisLocker(client redis.UniversalClient, ttl, retryWait time.Duration) *RedisLocker {
	if client == nil {
		panic("lock: redis client is required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retryWait <= 0 {
		retryWait = 50 * time.Millisecond
	}
	return &RedisLocker{
		client:    client,
		ttl:       ttl,
		retryWait: retryWait,
		prefix:    "lock:",
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Join(ErrBackendUnavailable, err)
		}
		if ok {
			return func() {
				// Best effort: on failure the TTL reclaims the key.
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_, _ = releaseScript.Run(ctx, l.client, []string{redisKey}, token).Result()
			}, nil
		}

		select {
		case <-time.After(l.retryWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
