// Package cache provides the read-through cache for rendered page images and
// vision responses. Stores are interchangeable; Cache adds single-flight so
// concurrent misses on one key compute once.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendDisk   = "disk"
	BackendRedis  = "redis"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Store is a byte-oriented key/value store. Get reports found=false with a
// nil error on a miss.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config selects and configures a store.
type Config struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Backend string `mapstructure:"backend" yaml:"backend" validate:"omitempty,oneof=memory disk redis"`

	// Dir is the root of the disk store.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// TTL is the entry lifetime; zero keeps entries forever.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gte=0"`

	// CleanupInterval is the memory store's expiry sweep interval.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval" validate:"gte=0"`

	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig holds the redis connection settings.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db" validate:"gte=0"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// DefaultConfig returns an enabled disk cache with no expiry. Dir is filled
// in from the home directory by the caller.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Backend:         BackendDisk,
		CleanupInterval: 10 * time.Minute,
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "pagemerge:",
		},
	}
}

// OpenStore creates the store named by cfg.Backend.
func OpenStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(cfg), nil
	case BackendDisk:
		return NewDiskStore(cfg)
	case BackendRedis:
		return NewRedisStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Open returns a Cache over the configured store, or nil when caching is
// disabled. A nil *Cache computes every request.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(store, logger), nil
}
