package answer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"docqa/internal/logger"
)

// CacheConfig configures the answer cache.
type CacheConfig struct {
	Enabled   bool
	TTL       time.Duration
	KeyPrefix string
}

// Cache stores generated answers in Redis. A nil or disabled cache misses on
// every lookup, and Redis failures are logged rather than returned so they
// never fail a query.
type Cache struct {
	redis  *goredis.Client
	config CacheConfig
}

// NewCache wraps a Redis client.
func NewCache(client *goredis.Client, cfg CacheConfig) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "docqa:answer:"
	}
	return &Cache{redis: client, config: cfg}
}

func (c *Cache) enabled() bool {
	return c != nil && c.config.Enabled && c.redis != nil
}

// Key identifies one generated answer. Fingerprint and DocumentID tie the
// answer to the index build and chunk it was generated from.
type Key struct {
	Corpus      string
	Fingerprint string
	DocumentID  string
	Question    string
}

// Key returns the Redis key for k, laid out as <prefix><corpus>:<sha256>.
func (c *Cache) Key(k Key) string {
	sum := sha256.Sum256([]byte(k.Fingerprint + "\x00" + k.DocumentID + "\x00" + k.Question))
	return c.corpusPrefix(k.Corpus) + hex.EncodeToString(sum[:])
}

func (c *Cache) corpusPrefix(corpus string) string {
	return c.config.KeyPrefix + corpus + ":"
}

// Get returns the cached answer, if any.
func (c *Cache) Get(ctx context.Context, k Key) (string, bool) {
	if !c.enabled() {
		return "", false
	}
	key := c.Key(k)
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			logger.Warnw("answer cache get failed", "error", err.Error(), "key", key)
		}
		return "", false
	}
	logger.Debugw("answer cache hit", "corpus", k.Corpus, "key", key)
	return val, true
}

// Set stores an answer for the configured TTL.
func (c *Cache) Set(ctx context.Context, k Key, answer string) {
	if !c.enabled() {
		return
	}
	key := c.Key(k)
	if err := c.redis.Set(ctx, key, answer, c.config.TTL).Err(); err != nil {
		logger.Warnw("answer cache set failed", "error", err.Error(), "key", key)
	}
}

// Clear removes every cached answer of corpus, or of all corpora when corpus
// is empty.
func (c *Cache) Clear(ctx context.Context, corpus string) (int, error) {
	if !c.enabled() {
		return 0, nil
	}
	pattern := c.config.KeyPrefix + "*"
	if corpus != "" {
		pattern = c.corpusPrefix(corpus) + "*"
	}
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("answer cache delete failed", "error", err.Error(), "key", iter.Val())
			continue
		}
		deleted++
	}
	return deleted, iter.Err()
}

// Close releases the Redis connection pool.
func (c *Cache) Close() error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Close()
}
