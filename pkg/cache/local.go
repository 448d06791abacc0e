package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// localCache is a size-bounded LRU with per-entry expiry
type localCache struct {
	config LocalConfig
	lru    *lru.Cache[string, localItem]
	stop   chan struct{}
	once   sync.Once
}

type localItem struct {
	value      []byte
	expiration time.Time
}

func (it localItem) expired(now time.Time) bool {
	return !it.expiration.IsZero() && now.After(it.expiration)
}

// NewLocalCache creates a new local cache instance
func NewLocalCache(config LocalConfig) (Cache, error) {
	size := config.MaxSize
	if size <= 0 {
		size = 256
	}
	l, err := lru.New[string, localItem](size)
	if err != nil {
		return nil, err
	}
	lc := &localCache{config: config, lru: l, stop: make(chan struct{})}
	if config.CleanupInterval > 0 {
		go lc.startCleanup()
	}
	return lc, nil
}

func (lc *localCache) Get(ctx context.Context, key string) ([]byte, bool) {
	item, ok := lc.lru.Get(key)
	if !ok {
		return nil, false
	}
	if item.expired(time.Now()) {
		lc.lru.Remove(key)
		return nil, false
	}
	return item.value, true
}

func (lc *localCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if expiration == 0 {
		expiration = lc.config.DefaultExpiration
	}
	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}
	lc.lru.Add(key, localItem{value: value, expiration: exp})
	return nil
}

func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.lru.Remove(key)
	return nil
}

func (lc *localCache) Exists(ctx context.Context, key string) bool {
	item, ok := lc.lru.Peek(key)
	return ok && !item.expired(time.Now())
}

func (lc *localCache) Clear(ctx context.Context) error {
	lc.lru.Purge()
	return nil
}

func (lc *localCache) Close() error {
	lc.once.Do(func() { close(lc.stop) })
	return nil
}

// startCleanup periodically drops expired entries
func (lc *localCache) startCleanup() {
	ticker := time.NewTicker(lc.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-lc.stop:
			return
		case <-ticker.C:
			lc.cleanup()
		}
	}
}

func (lc *localCache) cleanup() {
	now := time.Now()
	for _, key := range lc.lru.Keys() {
		if item, ok := lc.lru.Peek(key); ok && item.expired(now) {
			lc.lru.Remove(key)
		}
	}
}
