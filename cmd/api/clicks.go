package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/stats"
	"github.com/emanueledeamicis/OpenShort/internal/platform/config"
)

// clickPipeline is the tracker handed to the resolver plus the background
// consumer behind it.
type clickPipeline struct {
	tracker shortener.Tracker
	run     func(ctx context.Context)
	close   func()
}

// start runs the consumer, if any, until ctx is done.
func (p *clickPipeline) start(ctx context.Context, wg *sync.WaitGroup) {
	if p.run == nil {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.run(ctx)
	}()
}

func newClickPipeline(cfg config.Config, visits shortener.VisitStore, rdb *redis.Client) (*clickPipeline, error) {
	switch cfg.ClickSink {
	case "channel":
		slog.Info("使用 Channel 收集点击统计")
		col := stats.NewChannelCollector(10000)
		cons := stats.NewConsumer(visits, col)
		return &clickPipeline{
			tracker: stats.NewCollectorTracker(col),
			run:     cons.Run,
			close:   col.Close,
		}, nil

	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("CLICK_SINK=redis but redis is unavailable")
		}
		slog.Info("使用 Redis Stream 收集点击统计", "stream", cfg.RedisStream)
		col := stats.NewStreamCollector(rdb, cfg.RedisStream, 10000)
		consumer, _ := os.Hostname()
		cons, err := stats.NewStreamConsumer(context.Background(), rdb, visits, stats.StreamConsumerConfig{
			Stream:   cfg.RedisStream,
			Consumer: consumer,
		})
		if err != nil {
			col.Close()
			return nil, fmt.Errorf("click stream consumer: %w", err)
		}
		return &clickPipeline{
			tracker: stats.NewCollectorTracker(col),
			run:     cons.Run,
			close:   col.Close,
		}, nil

	case "kafka":
		slog.Info("使用 Kafka 收集点击统计", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		col := stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		cons := stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, visits)
		return &clickPipeline{
			tracker: stats.NewCollectorTracker(col),
			run: func(ctx context.Context) {
				cons.Run(ctx)
				cons.Close()
			},
			close: col.Close,
		}, nil

	default:
		slog.Info("点击计数直接写库", "timeout", cfg.TrackTimeout)
		tr := stats.NewDirectTracker(visits, cfg.TrackTimeout)
		return &clickPipeline{tracker: tr, close: tr.Close}, nil
	}
}
