package cache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// SlugFilter is a bloom filter over (domain, slug) keys that screens
// generated slugs before they reach the database. A false positive only costs
// one allocation attempt; the unique constraint stays authoritative.
type SlugFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewSlugFilter 创建布隆过滤器
// expectedItems: 预期存储的元素数量
// falsePositiveRate: 误判率（建议 0.01 即 1%）
func NewSlugFilter(expectedItems uint, falsePositiveRate float64) *SlugFilter {
	return &SlugFilter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

func (b *SlugFilter) Add(domain, slug string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.AddString(filterKey(domain, slug))
}

// MightExist 返回 false 表示一定不存在；true 表示可能存在
func (b *SlugFilter) MightExist(domain, slug string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.TestString(filterKey(domain, slug))
}

// Count 返回已添加的元素数量（估算）
func (b *SlugFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}

// SlugSource lists existing links for Warm.
type SlugSource interface {
	EachSlug(ctx context.Context, fn func(domain, slug string)) error
}

// Warm loads every stored (domain, slug) into the filter.
func (b *SlugFilter) Warm(ctx context.Context, src SlugSource) error {
	n := 0
	err := src.EachSlug(ctx, func(domain, slug string) {
		b.Add(domain, slug)
		n++
	})
	if err != nil {
		return err
	}
	slog.Info("slug filter warmed", "links", n)
	return nil
}

func filterKey(domain, slug string) string {
	return domain + "/" + slug
}
