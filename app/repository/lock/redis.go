package lock

import (
	"context"
	"fmt"
	"fulfillment-service/app/domain"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	client redis.UniversalClient
}

func NewRedisLocker(client redis.UniversalClient) domain.Locker {
	return &redisLocker{client}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token, err := uuid.NewV4()
	if err != nil {
		return nil, false, err
	}

	acquired, err := l.client.SetNX(ctx, key, token.String(), ttl).Result()
	if err != nil {
		slog.ErrorContext(ctx, "[redisLocker] TryLock", "key", key, "setNX", err)
		return nil, false, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	if !acquired {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token.String()).Err(); err != nil {
			slog.WarnContext(ctx, "[redisLocker] unlock", "key", key, "error", err)
			return err
		}
		return nil
	}

	return unlock, true, nil
}

// NewRedisClient returns nil when addr is empty; the service then runs without cross-instance locking.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
