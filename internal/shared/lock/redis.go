package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// unlockScript deletes the key only if it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a lease based lock shared by every replica.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// NewRedisLocker creates a RedisLocker. ttl bounds how long a crashed holder blocks others;
// wait bounds how long Lock polls before giving up.
func NewRedisLocker(rdb redis.UniversalClient, ttl, wait time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		rdb:    rdb,
		prefix: "nimo:mes:lock:",
		ttl:    ttl,
		wait:   wait,
		retry:  50 * time.Millisecond,
		logger: logger,
	}
}

// Lock polls SET NX until acquired, ctx is done or the wait budget runs out.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.New().String()

	deadline := time.Now().Add(l.wait)
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s: %w", key, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 请求上下文可能已取消，释放锁使用独立上下文
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := unlockScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("release redis lock failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}
