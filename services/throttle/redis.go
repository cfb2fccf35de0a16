package throttle

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-guardian/core"
)

// RedisThrottle shares reservations between API instances.
type RedisThrottle struct {
	client *redis.Client
	prefix string
}

// NewRedisClient connects to redis with short timeouts.
func NewRedisClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         conf.Redis.Addr,
		Password:     conf.Redis.Password,
		DB:           conf.Redis.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
}

func NewRedisThrottle(client *redis.Client, prefix string) *RedisThrottle {
	return &RedisThrottle{client: client, prefix: prefix}
}

// Allow reserves key with `SET NX PX`; when it is taken, it returns its remaining TTL.
func (t *RedisThrottle) Allow(ctx context.Context, key string, window time.Duration) (time.Duration, error) {
	key = t.prefix + key
	ok, err := t.client.SetNX(ctx, key, time.Now().UTC().Unix(), window).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis.SetNX")
	}
	if ok {
		return 0, nil
	}

	ttl, err := t.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis.PTTL")
	}
	if ttl <= 0 {
		// expired in between, or no expiry
		ttl = time.Millisecond
	}
	return ttl, nil
}

// PingContext makes the throttle a core.Pinger for health checks.
func (t *RedisThrottle) PingContext(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *RedisThrottle) Close() error {
	return t.client.Close()
}
