// Package cache keeps computed statistics keyed by document format and
// content hash, so identical bytes are analyzed once.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brunobiangulo/docstat/stats"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores Statistics by format and content hash.
type Cache interface {
	Get(ctx context.Context, format, hash string) (stats.Statistics, error)
	Set(ctx context.Context, format, hash string, s stats.Statistics) error
	Close() error
}

// Key returns the cache key for a document, without prefix.
func Key(format, hash string) string {
	return format + ":" + hash
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
	// TTL of each entry. Zero keeps entries until evicted.
	TTL time.Duration
}

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "docstat:"
	}

	return &RedisCache{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

// Get retrieves cached statistics.
func (c *RedisCache) Get(ctx context.Context, format, hash string) (stats.Statistics, error) {
	val, err := c.client.Get(ctx, c.prefix+Key(format, hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return stats.Statistics{}, ErrCacheMiss
	}
	if err != nil {
		return stats.Statistics{}, fmt.Errorf("redis get: %w", err)
	}

	var s stats.Statistics
	if err := json.Unmarshal(val, &s); err != nil {
		return stats.Statistics{}, fmt.Errorf("decoding cached statistics: %w", err)
	}
	return s, nil
}

// Set stores statistics with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, format, hash string, s stats.Statistics) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding statistics: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+Key(format, hash), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// MemoryCache implements Cache in process, for use without Redis.
type MemoryCache struct {
	mu      sync.RWMutex
	data    map[string]memoryEntry
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	value     stats.Statistics
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache holding at most maxSize entries.
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryCache{
		data:    make(map[string]memoryEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves cached statistics.
func (c *MemoryCache) Get(ctx context.Context, format, hash string) (stats.Statistics, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[Key(format, hash)]
	if !ok || c.expired(entry) {
		return stats.Statistics{}, ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores statistics, evicting expired entries first and an arbitrary
// entry when still full.
func (c *MemoryCache) Set(ctx context.Context, format, hash string, s stats.Statistics) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(format, hash)
	if _, ok := c.data[key]; !ok && len(c.data) >= c.maxSize {
		for k, e := range c.data {
			if c.expired(e) {
				delete(c.data, k)
			}
		}
		if len(c.data) >= c.maxSize {
			for k := range c.data {
				delete(c.data, k)
				break
			}
		}
	}

	entry := memoryEntry{value: s}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.data[key] = entry
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close releases the cache contents.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]memoryEntry)
	return nil
}

func (c *MemoryCache) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}
