package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Cache is a read-through cache over a Store. At most one computation runs
// per key at a time; concurrent callers for the same key share its result.
//
// Store errors are logged and treated as misses so that a broken cache
// degrades to recomputation.
type Cache struct {
	store  Store
	group  singleflight.Group
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New wraps store. A nil logger uses slog.Default().
func New(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, logger: logger.With("component", "cache")}
}

// GetOrCompute returns the cached value for key or runs compute, stores the
// result and returns it. Values are shared between callers and must not be
// modified. A nil Cache always computes.
//
// The computation runs under the context of the caller that started it.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil {
		return compute(ctx)
	}
	if v, ok := c.lookup(ctx, key); ok {
		return v, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// Another flight may have populated the key since the first lookup.
		if v, ok := c.lookup(ctx, key); ok {
			return v, nil
		}
		c.misses.Add(1)
		data, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, key, data); err != nil {
			c.logger.Warn("cache write failed", "key", key, "error", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("cache flight shared", "key", key)
	}
	return v.([]byte), nil
}

func (c *Cache) lookup(ctx context.Context, key string) ([]byte, bool) {
	v, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}
	if found {
		c.hits.Add(1)
	}
	return v, found
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.store.Close()
}

// Key joins a prefix and parts with ':'.
func Key(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ImageKey addresses a rendered page image by source document hash, page
// number and resolution.
func ImageKey(docHash string, page, dpi int) string {
	return Key("image", docHash, strconv.Itoa(page), strconv.Itoa(dpi))
}

// VisionKey addresses a vision response by the rendered image's content
// hash, the backend and model that produced it, and the prompt hash.
func VisionKey(imageHash, backend, model, promptHash string) string {
	return Key("vision", imageHash, backend, model, promptHash)
}
