package stats

import (
	"context"
	"time"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
)

// Consumer 消费 ChannelCollector 里的点击事件，批量写入
type Consumer struct {
	store     shortener.VisitStore
	events    <-chan ClickEvent
	batchSize int
	interval  time.Duration
}

func NewConsumer(store shortener.VisitStore, collector *ChannelCollector) *Consumer {
	return &Consumer{
		store:     store,
		events:    collector.Events(),
		batchSize: defaultBatchSize, // 批量写入大小
		interval:  defaultInterval,  // 最大等待时间
	}
}

// Run blocks until ctx is done or the collector is closed, flushing what it
// holds on the way out.
func (c *Consumer) Run(ctx context.Context) {
	batch := make([]ClickEvent, 0, c.batchSize)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain(batch)
			return
		case event, ok := <-c.events:
			if !ok {
				flushOrDrop(c.store, batch, "channel")
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				flushOrDrop(c.store, batch, "channel")
				batch = batch[:0] // 清空切片，但保留容量不变
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flushOrDrop(c.store, batch, "channel")
				batch = batch[:0]
			}
		}
	}
}

// drain flushes the batch and whatever is still buffered without blocking.
func (c *Consumer) drain(batch []ClickEvent) {
	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				flushOrDrop(c.store, batch, "channel")
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				flushOrDrop(c.store, batch, "channel")
				batch = batch[:0]
			}
		default:
			flushOrDrop(c.store, batch, "channel")
			return
		}
	}
}
