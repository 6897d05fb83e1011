package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements Cache and the progress broker using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// --- pub/sub ---

func (c *RedisCache) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	return c.client.Publish(ctx, channel, payload).Result()
}

// Subscribe confirms the subscription before returning, so messages
// published afterwards are not lost. ctx bounds only the confirmation.
// After stop runs the relay goroutine exits even if nobody reads the
// stream; messages already buffered stay readable until it is closed.
func (c *RedisCache) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	ps := c.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 64)
	done := make(chan struct{})
	var once sync.Once
	stop := func() error {
		var err error
		once.Do(func() {
			close(done)
			err = ps.Close()
		})
		return err
	}

	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			if !relay(out, done, []byte(msg.Payload)) {
				return
			}
		}
	}()
	return out, stop, nil
}

// relay hands payload to out. It prefers delivery and gives up only when out
// is full after stop was called.
func relay(out chan<- []byte, done <-chan struct{}, payload []byte) bool {
	select {
	case out <- payload:
		return true
	default:
	}
	select {
	case out <- payload:
		return true
	case <-done:
		return false
	}
}

func (c *RedisCache) NumSubscribers(ctx context.Context, channel string) (int64, error) {
	counts, err := c.client.PubSubNumSub(ctx, channel).Result()
	if err != nil {
		return 0, err
	}
	return counts[channel], nil
}
