package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/spf13/cast"
)

// goCacheWrapper go-cache包装器
type goCacheWrapper struct {
	cache *gocache.Cache
}

// NewGoCache 创建基于go-cache的本地缓存
func NewGoCache(config LocalConfig) Cache {
	return &goCacheWrapper{
		cache: gocache.New(config.DefaultExpiration, config.CleanupInterval),
	}
}

func (gc *goCacheWrapper) Get(ctx context.Context, key string) (interface{}, bool) {
	return gc.cache.Get(key)
}

func (gc *goCacheWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	gc.cache.Set(key, value, expiration)
	return nil
}

func (gc *goCacheWrapper) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if err := gc.cache.Add(key, value, expiration); err != nil {
		return false, nil
	}
	return true, nil
}

func (gc *goCacheWrapper) Delete(ctx context.Context, key string) error {
	gc.cache.Delete(key)
	return nil
}

func (gc *goCacheWrapper) Exists(ctx context.Context, key string) bool {
	_, found := gc.cache.Get(key)
	return found
}

// IncrWithTTL seeds the counter with Add so the TTL is set once, then
// increments. A lost race on Add falls through to the increment.
func (gc *goCacheWrapper) IncrWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if err := gc.cache.Add(key, delta, ttl); err == nil {
		return delta, nil
	}
	n, err := gc.cache.IncrementInt64(key, delta)
	if err != nil {
		// 键在 Add 与 Increment 之间过期，重试一次
		if addErr := gc.cache.Add(key, delta, ttl); addErr == nil {
			return delta, nil
		}
		return gc.cache.IncrementInt64(key, delta)
	}
	return n, nil
}

func (gc *goCacheWrapper) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	value, exp, found := gc.cache.GetWithExpiration(key)
	if !found {
		return nil, 0, false
	}
	if exp.IsZero() {
		return value, 0, true
	}
	return value, time.Until(exp), true
}

func (gc *goCacheWrapper) Close() error {
	gc.cache.Flush()
	return nil
}

func toInt64(v interface{}) (int64, error) {
	return cast.ToInt64E(v)
}
