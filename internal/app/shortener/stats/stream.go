package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/platform/metrics"
)

const (
	DefaultStream = "openshort:clicks"
	DefaultGroup  = "openshort:click-writers"

	streamField  = "event"
	streamMaxLen = 1_000_000
)

// StreamCollector appends click events to a Redis stream. Events go through
// a small buffer so the redirect path never waits on XADD.
type StreamCollector struct {
	rdb    *redis.Client
	stream string
	ch     chan ClickEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewStreamCollector(rdb *redis.Client, stream string, bufferSize int) *StreamCollector {
	if stream == "" {
		stream = DefaultStream
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	c := &StreamCollector{
		rdb:    rdb,
		stream: stream,
		ch:     make(chan ClickEvent, bufferSize),
		done:   make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *StreamCollector) Collect(event ClickEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		metrics.ClicksDropped.WithLabelValues("redis").Inc()
		return
	}
	select {
	case c.ch <- event:
	default:
		metrics.ClicksDropped.WithLabelValues("redis").Inc()
	}
}

// pump pipelines whatever is buffered into one round trip.
func (c *StreamCollector) pump() {
	defer close(c.done)
	batch := make([]ClickEvent, 0, defaultBatchSize)
	for event := range c.ch {
		batch = append(batch[:0], event)
	fill:
		for len(batch) < defaultBatchSize {
			select {
			case e, ok := <-c.ch:
				if !ok {
					break fill
				}
				batch = append(batch, e)
			default:
				break fill
			}
		}
		c.publish(batch)
	}
}

func (c *StreamCollector) publish(batch []ClickEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pipe := c.rdb.Pipeline()
	for _, e := range batch {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: c.stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]any{streamField: data},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.ClicksDropped.WithLabelValues("redis").Add(float64(len(batch)))
		slog.Error("click stream: xadd failed", "err", err, "count", len(batch))
	}
}

// Close stops accepting events and waits until the buffer is published.
func (c *StreamCollector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	c.mu.Unlock()
	<-c.done
}

type StreamConsumerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int
	Block     time.Duration
}

// StreamConsumer reads the click stream through a consumer group and acks a
// batch only after it is recorded. Unacked entries are read again on start.
type StreamConsumer struct {
	rdb   *redis.Client
	store shortener.VisitStore
	cfg   StreamConsumerConfig
}

func NewStreamConsumer(ctx context.Context, rdb *redis.Client, store shortener.VisitStore, cfg StreamConsumerConfig) (*StreamConsumer, error) {
	if rdb == nil {
		return nil, errors.New("nil redis client")
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "writer-1"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}

	// Create consumer group (idempotent).
	gctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := rdb.XGroupCreateMkStream(gctx, cfg.Stream, cfg.Group, "0").Err(); err != nil && !isBusyGroup(err) {
		return nil, err
	}
	return &StreamConsumer{rdb: rdb, store: store, cfg: cfg}, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func (s *StreamConsumer) Run(ctx context.Context) {
	// "0" replays this consumer's pending entries, ">" reads new ones.
	pending := true
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := ">"
		if pending {
			start = "0"
		}
		msgs, err := s.read(ctx, start)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("click stream: read failed", "err", err)
			sleep(ctx, 200*time.Millisecond)
			continue
		}
		if len(msgs) == 0 {
			pending = false
			continue
		}

		if err := s.handle(ctx, msgs); err != nil {
			slog.Error("click stream: flush failed", "err", err, "count", len(msgs))
			pending = true
			sleep(ctx, time.Second)
		}
	}
}

func (s *StreamConsumer) read(ctx context.Context, start string) ([]redis.XMessage, error) {
	block := s.cfg.Block
	if start == "0" {
		block = -1 // pending reads never block
	}
	res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, start},
		Count:    int64(s.cfg.BatchSize),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out []redis.XMessage
	for _, st := range res {
		out = append(out, st.Messages...)
	}
	return out, nil
}

func (s *StreamConsumer) handle(ctx context.Context, msgs []redis.XMessage) error {
	ids := make([]string, 0, len(msgs))
	batch := make([]ClickEvent, 0, len(msgs))
	for _, msg := range msgs {
		ids = append(ids, msg.ID)
		event, err := decodeStreamEvent(msg)
		if err != nil {
			// malformed entries are acked and dropped
			slog.Warn("click stream: bad entry", "err", err, "id", msg.ID)
			metrics.ClicksDropped.WithLabelValues("redis").Inc()
			continue
		}
		batch = append(batch, event)
	}

	if err := writeBatch(s.store, batch); err != nil {
		return err
	}
	if err := s.rdb.XAck(ctx, s.cfg.Stream, s.cfg.Group, ids...).Err(); err != nil {
		// Recorded but unacked: the replay is deduplicated by event ID.
		slog.Warn("click stream: ack failed", "err", err, "count", len(ids))
	}
	slog.Debug("click stream: flushed", "count", len(batch))
	return nil
}

func decodeStreamEvent(msg redis.XMessage) (ClickEvent, error) {
	raw, ok := msg.Values[streamField].(string)
	if !ok {
		return ClickEvent{}, errors.New("missing event field")
	}
	var e ClickEvent
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return ClickEvent{}, err
	}
	if e.ID == "" || e.LinkID <= 0 {
		return ClickEvent{}, errors.New("incomplete event")
	}
	return e, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
