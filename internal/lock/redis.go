package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kinship/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker guards keys across processes sharing one Redis.
type RedisLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	wait  time.Duration
	retry time.Duration
}

// NewRedisLocker returns a RedisLocker whose keys expire after ttl and which
// gives up acquiring after wait.
func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl, wait: wait, retry: 10 * time.Millisecond}
}

func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	defer observeWait("redis", time.Now())
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	token := uuid.NewString()
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	release := func() {
		// Release must run even when the request context is gone.
		relCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(relCtx, l.rdb, []string{held[i]}, token).Err(); err != nil {
				observability.Logger.WarnContext(relCtx, "lock release failed", "key", held[i], "error", err)
			}
		}
	}

	for _, key := range keys {
		rkey := redisKeyPrefix + key
		if err := l.acquireOne(ctx, rkey, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, rkey)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *RedisLocker) acquireOne(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w %q", ErrTimeout, key)
			}
			return fmt.Errorf("lock %q: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("%w %q", ErrTimeout, key)
		}
	}
}
