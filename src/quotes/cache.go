package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const keyPrefix = "last_price:"

// Cache is the shared last-price store. Get returns ok=false on a miss.
type Cache interface {
	Get(ctx context.Context, symbol string) (price decimal.Decimal, ok bool, err error)
	Set(ctx context.Context, symbol string, price decimal.Decimal) error
}

// MemoryCache is a process-local Cache with per-entry expiry.
type MemoryCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]memoryEntry
	now   func() time.Time
}

type memoryEntry struct {
	price   decimal.Decimal
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:   ttl,
		items: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, symbol string) (decimal.Decimal, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[normalize(symbol)]
	if !ok {
		return decimal.Zero, false, nil
	}
	if c.ttl > 0 && c.now().After(e.expires) {
		return decimal.Zero, false, nil
	}
	return e.price, true, nil
}

func (c *MemoryCache) Set(_ context.Context, symbol string, price decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[normalize(symbol)] = memoryEntry{price: price, expires: c.now().Add(c.ttl)}
	return nil
}

// RedisCache shares prices between agent processes through redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// ConnectRedis parses the URL and pings the server.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+normalize(symbol)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("redis get last price: %w", err)
	}
	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis last price %q: %w", val, err)
	}
	return price, true, nil
}

func (c *RedisCache) Set(ctx context.Context, symbol string, price decimal.Decimal) error {
	return c.client.Set(ctx, keyPrefix+normalize(symbol), price.String(), c.ttl).Err()
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
