package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/emanueledeamicis/OpenShort/internal/platform/metrics"
)

type KafkaCollector struct {
	writer *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{}, // 同一个 link 落在同一分区
			Async:    true,          // 异步发送
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					metrics.ClicksDropped.WithLabelValues("kafka").Add(float64(len(messages)))
					slog.Error("kafka write failed", "err", err, "count", len(messages))
				}
			},
		},
	}
}

func (k *KafkaCollector) Collect(event ClickEvent) {
	msg, err := encodeKafkaEvent(event)
	if err != nil {
		return
	}
	if err := k.writer.WriteMessages(context.Background(), msg); err != nil {
		metrics.ClicksDropped.WithLabelValues("kafka").Inc()
		slog.Error("kafka write failed", "err", err)
	}
}

// Close flushes pending async writes.
func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Error("kafka writer close failed", "err", err)
	}
}

func encodeKafkaEvent(e ClickEvent) (kafka.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(e.LinkID, 10)),
		Value: data,
	}, nil
}
