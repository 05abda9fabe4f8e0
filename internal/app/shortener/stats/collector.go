// Package stats moves visits from the redirect path into the visit store.
//
// DirectTracker writes each visit on its own goroutine. The collector/consumer
// pairs buffer visits (in process, in a Redis stream or in Kafka) and write
// them in batches. Every event carries a UUID, so a batch replayed after a
// crash is not counted twice.
package stats

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/platform/metrics"
)

// ClickEvent 点击事件
type ClickEvent struct {
	ID        string    `json:"id"`
	LinkID    int64     `json:"linkId"`
	Domain    string    `json:"domain"`
	Slug      string    `json:"slug"`
	ClickedAt time.Time `json:"clickedAt"` // 点击时间
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"` // 客户端信息（浏览器、操作系统）
	Referer   string    `json:"referer,omitempty"`   // 从哪个页面点击过来的
}

// NewClickEvent converts a visit and assigns it an ID if it has none.
func NewClickEvent(v shortener.Visit) ClickEvent {
	id := v.EventID
	if id == "" {
		id = uuid.NewString()
	}
	at := v.At
	if at.IsZero() {
		at = time.Now()
	}
	return ClickEvent{
		ID:        id,
		LinkID:    v.LinkID,
		Domain:    v.Domain,
		Slug:      v.Slug,
		ClickedAt: at.UTC(),
		IP:        v.IP,
		UserAgent: v.UserAgent,
		Referer:   v.Referer,
	}
}

func (e ClickEvent) Visit() shortener.Visit {
	return shortener.Visit{
		EventID:   e.ID,
		LinkID:    e.LinkID,
		Domain:    e.Domain,
		Slug:      e.Slug,
		At:        e.ClickedAt,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		Referer:   e.Referer,
	}
}

// Collector 收集器接口：channel / redis stream / kafka
type Collector interface {
	Collect(event ClickEvent)
	Close()
}

// CollectorTracker adapts a Collector to shortener.Tracker.
type CollectorTracker struct {
	c Collector
}

func NewCollectorTracker(c Collector) *CollectorTracker {
	return &CollectorTracker{c: c}
}

func (t *CollectorTracker) Track(v shortener.Visit) {
	t.c.Collect(NewClickEvent(v))
}

// ChannelCollector 基于 channel 的收集器
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan ClickEvent
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &ChannelCollector{ch: make(chan ClickEvent, bufferSize)}
}

// Collect never blocks: when the buffer is full the event is dropped.
func (c *ChannelCollector) Collect(event ClickEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		metrics.ClicksDropped.WithLabelValues("channel").Inc()
		return
	}
	select {
	case c.ch <- event:
	default:
		// 通道满了，丢弃
		metrics.ClicksDropped.WithLabelValues("channel").Inc()
	}
}

func (c *ChannelCollector) Events() <-chan ClickEvent {
	return c.ch
}

// Close stops accepting events; the consumer drains what is buffered.
func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
