// Package cache puts a two-level cache in front of the resolver's link
// lookups and holds the slug bloom filter.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/platform/metrics"
)

const (
	keyPrefix        = "sl:"
	notFoundSentinel = "__nil__"
)

// notFound marks a negative entry in the local cache.
var notFound = &record{}

// record is the cached subset of a link: what resolution needs, and no more.
// Eligibility is re-evaluated from IsActive and ExpiresAt on every hit.
type record struct {
	ID             int64      `json:"id"`
	Slug           string     `json:"slug"`
	Domain         string     `json:"domain"`
	DestinationURL string     `json:"destinationUrl"`
	IsActive       bool       `json:"isActive"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	RedirectType   int        `json:"redirectType"`
}

func toRecord(l *shortener.Link) *record {
	return &record{
		ID:             l.ID,
		Slug:           l.Slug,
		Domain:         l.Domain,
		DestinationURL: l.DestinationURL,
		IsActive:       l.IsActive,
		ExpiresAt:      l.ExpiresAt,
		RedirectType:   int(l.RedirectType),
	}
}

func (r *record) link() *shortener.Link {
	return &shortener.Link{
		ID:             r.ID,
		Slug:           r.Slug,
		Domain:         r.Domain,
		DestinationURL: r.DestinationURL,
		IsActive:       r.IsActive,
		ExpiresAt:      r.ExpiresAt,
		RedirectType:   shortener.RedirectType(r.RedirectType),
	}
}

// LinkCache implements shortener.LinkLookup over L1 (ristretto) and L2
// (redis) in front of the store, and shortener.Invalidator for the write
// path. Either level may be nil. Redis failures fall through to the store.
type LinkCache struct {
	next     shortener.LinkLookup
	client   *redis.Client
	local    *LocalCache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewLinkCache(next shortener.LinkLookup, client *redis.Client, local *LocalCache, ttl time.Duration) *LinkCache {
	emptyTTL := ttl / 3
	if emptyTTL > 10*time.Second {
		emptyTTL = 10 * time.Second
	}
	return &LinkCache{
		next:     next,
		client:   client,
		local:    local,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

func cacheKey(domain, slug string) string {
	return keyPrefix + domain + ":" + slug
}

func (c *LinkCache) FindLink(ctx context.Context, domain, slug string) (*shortener.Link, error) {
	key := cacheKey(domain, slug)

	// L1
	if c.local != nil {
		if rec, ok := c.local.Get(key); ok {
			if rec == nil {
				metrics.CacheOperations.WithLabelValues("local", "negative_hit").Inc()
				return nil, shortener.ErrNotFound
			}
			metrics.CacheOperations.WithLabelValues("local", "hit").Inc()
			return rec.link(), nil
		}
		metrics.CacheOperations.WithLabelValues("local", "miss").Inc()
	}

	// L2
	if c.client != nil {
		rec, found, err := c.getRemote(ctx, key)
		switch {
		case err != nil:
			metrics.CacheOperations.WithLabelValues("redis", "error").Inc()
			slog.Warn("link cache read failed", "err", err, "key", key)
		case found && rec == nil:
			metrics.CacheOperations.WithLabelValues("redis", "negative_hit").Inc()
			if c.local != nil {
				c.local.SetNotFound(key)
			}
			return nil, shortener.ErrNotFound
		case found:
			metrics.CacheOperations.WithLabelValues("redis", "hit").Inc()
			if c.local != nil {
				c.local.Set(key, rec)
			}
			return rec.link(), nil
		default:
			metrics.CacheOperations.WithLabelValues("redis", "miss").Inc()
		}
	}

	l, err := c.next.FindLink(ctx, domain, slug)
	if errors.Is(err, shortener.ErrNotFound) {
		c.setNotFound(ctx, key)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, toRecord(l))
	return l, nil
}

// getRemote returns found=true with a nil record for a negative entry.
func (c *LinkCache) getRemote(ctx context.Context, key string) (*record, bool, error) {
	res, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if res == notFoundSentinel {
		return nil, true, nil
	}
	var rec record
	if err := json.Unmarshal([]byte(res), &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (c *LinkCache) set(ctx context.Context, key string, rec *record) {
	if c.local != nil {
		c.local.Set(key, rec)
	}
	if c.client == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("link cache write failed", "err", err, "key", key)
	}
}

// setNotFound 用明确哨兵值做"负缓存"，避免缓存穿透。
func (c *LinkCache) setNotFound(ctx context.Context, key string) {
	if c.local != nil {
		c.local.SetNotFound(key)
	}
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, notFoundSentinel, c.emptyTTL).Err(); err != nil {
		slog.Warn("link cache write failed", "err", err, "key", key)
	}
}

func (c *LinkCache) InvalidateLink(ctx context.Context, domain, slug string) {
	key := cacheKey(domain, slug)
	if c.local != nil {
		c.local.Del(key)
	}
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		slog.Warn("link cache delete failed", "err", err, "key", key)
	}
}

// InvalidateDomain drops every cached record for host. L1 is cleared as a
// whole; L2 is swept with SCAN.
func (c *LinkCache) InvalidateDomain(ctx context.Context, host string) {
	if c.local != nil {
		c.local.Clear()
	}
	if c.client == nil {
		return
	}
	pattern := keyPrefix + escapeGlob(host) + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 500).Iterator()
	var batch []string
	n := 0
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			n += c.del(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		slog.Warn("link cache scan failed", "err", err, "host", host)
	}
	n += c.del(ctx, batch)
	slog.Debug("domain cache invalidated", "host", host, "keys", n)
}

func (c *LinkCache) del(ctx context.Context, keys []string) int {
	if len(keys) == 0 {
		return 0
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("link cache delete failed", "err", err)
		return 0
	}
	return len(keys)
}

// Close 关闭本地缓存
func (c *LinkCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("local link cache closed")
	}
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
