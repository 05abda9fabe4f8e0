package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/platform/metrics"
)

const DefaultKafkaGroup = "click-stats-consumer"

// KafkaConsumer commits offsets only after the batch they cover is recorded.
// A failed batch is kept and retried on the ticker only.
type KafkaConsumer struct {
	reader    *kafka.Reader
	store     shortener.VisitStore
	batchSize int
	interval  time.Duration
	maxHeld   int
}

func NewKafkaConsumer(brokers []string, topic string, store shortener.VisitStore) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  DefaultKafkaGroup,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		store:     store,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
		maxHeld:   10 * defaultBatchSize,
	}
}

func (k *KafkaConsumer) Run(ctx context.Context) {
	pending := &heldBatch{
		store:     k.store,
		commit:    k.reader.CommitMessages,
		batchSize: k.batchSize,
		maxHeld:   k.maxHeld,
	}
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	// 用于非阻塞读取 Kafka
	msgCh := make(chan kafka.Message, k.batchSize)

	// 启动读取协程
	go func() {
		defer close(msgCh)
		for {
			msg, err := k.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				slog.Error("kafka read failed", "err", err)
				sleep(ctx, 200*time.Millisecond)
				continue
			}
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			pending.flush()
			return

		case msg, ok := <-msgCh:
			if !ok {
				pending.flush()
				return
			}
			if pending.add(msg) {
				pending.flush()
			}

		case <-ticker.C:
			pending.flush()
		}
	}
}

// heldBatch keeps fetched messages until the events they carry are recorded
// and their offsets committed. After a failed write it only grows, and the
// next attempt waits for the ticker unless maxHeld is reached.
type heldBatch struct {
	store     shortener.VisitStore
	commit    func(context.Context, ...kafka.Message) error
	batchSize int
	maxHeld   int

	batch  []ClickEvent
	msgs   []kafka.Message
	failed bool
}

// add reports whether the batch should be flushed right away.
func (h *heldBatch) add(msg kafka.Message) bool {
	h.msgs = append(h.msgs, msg)
	event, err := decodeKafkaEvent(msg)
	if err != nil {
		slog.Warn("kafka consumer: bad message", "err", err, "offset", msg.Offset)
		metrics.ClicksDropped.WithLabelValues("kafka").Inc()
	} else {
		h.batch = append(h.batch, event)
	}
	if len(h.msgs) >= h.maxHeld {
		return true
	}
	return !h.failed && len(h.msgs) >= h.batchSize
}

func (h *heldBatch) flush() {
	if len(h.msgs) == 0 {
		return
	}
	if err := writeBatch(h.store, h.batch); err != nil {
		slog.Error("kafka consumer: flush failed", "err", err, "count", len(h.batch))
		h.failed = true
		if len(h.msgs) >= h.maxHeld {
			metrics.ClicksDropped.WithLabelValues("kafka").Add(float64(len(h.batch)))
			h.reset()
		}
		return
	}
	commitCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := h.commit(commitCtx, h.msgs...); err != nil {
		slog.Warn("kafka consumer: commit failed", "err", err, "count", len(h.msgs))
	} else {
		slog.Debug("kafka consumer: flushed", "count", len(h.batch))
	}
	h.reset()
}

func (h *heldBatch) reset() {
	h.batch, h.msgs, h.failed = h.batch[:0], h.msgs[:0], false
}

func decodeKafkaEvent(msg kafka.Message) (ClickEvent, error) {
	var e ClickEvent
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return ClickEvent{}, err
	}
	if e.ID == "" || e.LinkID <= 0 {
		return ClickEvent{}, errors.New("incomplete event")
	}
	return e, nil
}

func (k *KafkaConsumer) Close() {
	if err := k.reader.Close(); err != nil {
		slog.Error("kafka reader close failed", "err", err)
	}
}
