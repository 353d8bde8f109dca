// Package cache wraps the shared Redis instance with a JSON value convention
// and transparent DEFLATE compression for larger payloads. Every failure is
// swallowed and reported as a miss; the cache is never load-bearing.
package cache

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/metrics"
)

// compressThreshold is the payload size above which values are deflated.
const compressThreshold = 1024

type Cache struct {
	redis    *redis.Client
	logger   *logrus.Logger
	compress bool
}

func New(client *redis.Client, logger *logrus.Logger, compress bool) *Cache {
	return &Cache{
		redis:    client,
		logger:   logger,
		compress: compress,
	}
}

// GetJSON reads key into dest. Returns false on miss, decode failure or any
// transport error.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		metrics.CacheOps.WithLabelValues("get", "miss").Inc()
		return false
	}

	if decompressed, ok := inflate(raw); ok {
		raw = decompressed
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to decode cached value")
		metrics.CacheOps.WithLabelValues("get", "miss").Inc()
		return false
	}
	metrics.CacheOps.WithLabelValues("get", "hit").Inc()
	return true
}

// SetJSON stores value under key with the given TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to encode value for caching")
		return false
	}

	payload := raw
	if c.compress && len(raw) > compressThreshold {
		payload = deflate(raw)
	}

	if err := c.redis.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to write cache value")
		metrics.CacheOps.WithLabelValues("set", "error").Inc()
		return false
	}
	metrics.CacheOps.WithLabelValues("set", "ok").Inc()
	return true
}

// Delete removes a single key and returns the number of keys removed.
func (c *Cache) Delete(ctx context.Context, key string) int {
	n, err := c.redis.Del(ctx, key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// DeleteByPattern scans for keys matching pattern and deletes them.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) int {
	deleted := 0
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		n, err := c.redis.Del(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		deleted += int(n)
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).WithField("pattern", pattern).Warn("Cache pattern scan failed")
	}
	return deleted
}

func deflate(raw []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return raw
	}
	if err := w.Close(); err != nil {
		return raw
	}
	return buf.Bytes()
}

// inflate attempts zlib decompression; uncompressed legacy values pass
// through untouched.
func inflate(raw []byte) ([]byte, bool) {
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, false
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, false
	}
	return out, true
}
