package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCache 基于 ristretto 的本地内存缓存 (L1)
type LocalCache struct {
	cache    *ristretto.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewLocalCache 创建本地缓存
// maxItems: 最大缓存条目数（建议 10000-100000）
// ttl: 本地缓存 TTL 短一些，保证多实例一致性
func NewLocalCache(maxItems int64, ttl time.Duration) (*LocalCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10, // 计数器数量，建议为 maxItems 的 10 倍
		MaxCost:     maxItems,      // cost=1 per entry
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	emptyTTL := ttl
	if emptyTTL > 2*time.Second {
		emptyTTL = 2 * time.Second
	}
	return &LocalCache{cache: cache, ttl: ttl, emptyTTL: emptyTTL}, nil
}

// Get returns the record, or nil with ok=true for a cached miss.
func (l *LocalCache) Get(key string) (*record, bool) {
	v, ok := l.cache.Get(key)
	if !ok {
		return nil, false
	}
	rec, _ := v.(*record)
	if rec == notFound {
		return nil, true
	}
	return rec, true
}

func (l *LocalCache) Set(key string, rec *record) {
	l.cache.SetWithTTL(key, rec, 1, l.ttl)
}

func (l *LocalCache) SetNotFound(key string) {
	l.cache.SetWithTTL(key, notFound, 1, l.emptyTTL)
}

func (l *LocalCache) Del(key string) {
	l.cache.Del(key)
}

// Clear drops everything; used when a whole domain is invalidated.
func (l *LocalCache) Clear() {
	l.cache.Clear()
}

// Wait blocks until buffered writes are visible.
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
