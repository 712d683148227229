package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// localCache 基于 LRU 的进程内缓存，每个键单独记录过期时间
type localCache struct {
	config LocalConfig
	lru    *lru.Cache[string, *cacheItem]
	mu     sync.Mutex
	stop   chan struct{}
	once   sync.Once
}

// cacheItem 缓存项
type cacheItem struct {
	value      interface{}
	expiration time.Time
}

func (i *cacheItem) expired(now time.Time) bool {
	return !i.expiration.IsZero() && now.After(i.expiration)
}

// NewLocalCache 创建本地缓存
func NewLocalCache(config LocalConfig) Cache {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultLocalConfig().MaxSize
	}
	l, _ := lru.New[string, *cacheItem](config.MaxSize)

	lc := &localCache{
		config: config,
		lru:    l,
		stop:   make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go lc.startCleanup()
	}
	return lc
}

func (lc *localCache) expiry(expiration time.Duration) time.Time {
	if expiration > 0 {
		return time.Now().Add(expiration)
	}
	if expiration == 0 && lc.config.DefaultExpiration > 0 {
		return time.Now().Add(lc.config.DefaultExpiration)
	}
	return time.Time{}
}

// live 返回未过期的缓存项，调用方需持有锁
func (lc *localCache) live(key string) (*cacheItem, bool) {
	item, ok := lc.lru.Get(key)
	if !ok {
		return nil, false
	}
	if item.expired(time.Now()) {
		lc.lru.Remove(key)
		return nil, false
	}
	return item, true
}

func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	item, ok := lc.live(key)
	if !ok {
		return nil, false
	}
	return item.value, true
}

func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.lru.Add(key, &cacheItem{value: value, expiration: lc.expiry(expiration)})
	return nil
}

func (lc *localCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if _, ok := lc.live(key); ok {
		return false, nil
	}
	lc.lru.Add(key, &cacheItem{value: value, expiration: lc.expiry(expiration)})
	return true, nil
}

func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.lru.Remove(key)
	return nil
}

func (lc *localCache) Exists(ctx context.Context, key string) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	_, ok := lc.live(key)
	return ok
}

func (lc *localCache) IncrWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	item, ok := lc.live(key)
	if !ok {
		lc.lru.Add(key, &cacheItem{value: delta, expiration: lc.expiry(ttl)})
		return delta, nil
	}

	n, err := toInt64(item.value)
	if err != nil {
		return 0, err
	}
	n += delta
	// 保留原有过期时间，窗口从第一次自增开始计算
	lc.lru.Add(key, &cacheItem{value: n, expiration: item.expiration})
	return n, nil
}

func (lc *localCache) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	item, ok := lc.live(key)
	if !ok {
		return nil, 0, false
	}
	if item.expiration.IsZero() {
		return item.value, 0, true
	}
	return item.value, time.Until(item.expiration), true
}

func (lc *localCache) Close() error {
	lc.once.Do(func() { close(lc.stop) })
	return nil
}

// startCleanup 定期清理过期项
func (lc *localCache) startCleanup() {
	ticker := time.NewTicker(lc.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lc.cleanup()
		case <-lc.stop:
			return
		}
	}
}

func (lc *localCache) cleanup() {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	now := time.Now()
	for _, key := range lc.lru.Keys() {
		if item, ok := lc.lru.Peek(key); ok && item.expired(now) {
			lc.lru.Remove(key)
		}
	}
}
