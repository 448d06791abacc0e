package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KindLocal   = "local"   // golang-lru
	KindGoCache = "gocache" // go-cache
	KindRedis   = "redis"   // redis
)

// NewCache creates a cache instance based on configuration
func NewCache(config Config) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case KindLocal, "":
		return NewLocalCache(config.Local)
	case KindGoCache:
		return NewGoCache(config.Local), nil
	case KindRedis:
		return NewRedisCache(config.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}

// NewCacheWithOptions creates a cache instance with additional options.
// A distributed cache gets an in-process L1 in front of it when enabled.
func NewCacheWithOptions(config Config, options *Options) (Cache, error) {
	if options == nil {
		options = DefaultOptions()
	}
	if options.UseLocalCache && strings.ToLower(config.Type) == KindRedis {
		return NewLayeredCache(config, options)
	}
	return NewCache(config)
}

// NewLayeredCache creates a layered cache (local cache + redis)
func NewLayeredCache(config Config, options *Options) (Cache, error) {
	localConfig := config.Local
	if options.LocalExpiration > 0 {
		localConfig.DefaultExpiration = options.LocalExpiration
	}
	local, err := NewLocalCache(localConfig)
	if err != nil {
		return nil, err
	}
	distributed, err := NewRedisCache(config.Redis)
	if err != nil {
		_ = local.Close()
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newLayered(local, distributed, options.LocalExpiration), nil
}

func newLayered(local, distributed Cache, localTTL time.Duration) Cache {
	return &layeredCache{local: local, distributed: distributed, localTTL: localTTL}
}

// layeredCache reads local first and backfills it from the distributed layer
type layeredCache struct {
	local       Cache
	distributed Cache
	localTTL    time.Duration
}

func (lc *layeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := lc.local.Get(ctx, key); ok {
		return value, true
	}
	value, ok := lc.distributed.Get(ctx, key)
	if !ok {
		return nil, false
	}
	_ = lc.local.Set(ctx, key, value, lc.localTTL)
	return value, true
}

func (lc *layeredCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if err := lc.distributed.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.local.Set(ctx, key, value, lc.localTTL)
}

func (lc *layeredCache) Delete(ctx context.Context, key string) error {
	return errors.Join(lc.local.Delete(ctx, key), lc.distributed.Delete(ctx, key))
}

func (lc *layeredCache) Exists(ctx context.Context, key string) bool {
	return lc.local.Exists(ctx, key) || lc.distributed.Exists(ctx, key)
}

func (lc *layeredCache) Clear(ctx context.Context) error {
	return errors.Join(lc.local.Clear(ctx), lc.distributed.Clear(ctx))
}

func (lc *layeredCache) Close() error {
	return errors.Join(lc.local.Close(), lc.distributed.Close())
}
