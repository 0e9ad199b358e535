package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig tunes the Redis locker.
type RedisConfig struct {
	TTL          time.Duration // lease length; bounds how long a crashed holder blocks the key
	RetryEvery   time.Duration
	MaxWait      time.Duration
	ReleaseAfter time.Duration // timeout for the release round trip
}

// Redis is a token lock shared by every instance pointed at the same Redis.
type Redis struct {
	client redis.UniversalClient
	cfg    RedisConfig
}

// NewRedis constructs a Redis locker around an existing client.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = 25 * time.Millisecond
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Second
	}
	if cfg.ReleaseAfter <= 0 {
		cfg.ReleaseAfter = time.Second
	}
	return &Redis{client: client, cfg: cfg}
}

// DialRedis parses url, connects and verifies the server responds.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Acquire polls SET NX until it owns key, ctx is done or MaxWait elapses.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(r.cfg.MaxWait)

	ticker := time.NewTicker(r.cfg.RetryEvery)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return r.releaser(key, token), nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire %s: %w", key, ErrNotAcquired)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Redis) releaser(key, token string) func() {
	return func() {
		// The request context may already be cancelled; release on a fresh one.
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ReleaseAfter)
		defer cancel()
		_ = releaseScript.Run(ctx, r.client, []string{key}, token).Err()
	}
}
