package stats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/platform/metrics"
)

const (
	defaultBatchSize = 100
	defaultInterval  = time.Second
	flushTimeout     = 5 * time.Second
)

// writeBatch records a batch with one retry on transient store errors.
func writeBatch(store shortener.VisitStore, batch []ClickEvent) error {
	if len(batch) == 0 {
		return nil
	}
	visits := make([]shortener.Visit, len(batch))
	for i, e := range batch {
		visits[i] = e.Visit()
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	err := store.RecordVisits(ctx, visits)
	if errors.Is(err, shortener.ErrTransientStore) {
		err = store.RecordVisits(ctx, visits)
	}
	return err
}

// flushOrDrop is the flush of the in-process consumer: a failed batch is
// logged and counted as dropped.
func flushOrDrop(store shortener.VisitStore, batch []ClickEvent, sink string) {
	if err := writeBatch(store, batch); err != nil {
		slog.Error("click stats: flush failed", "err", err, "sink", sink, "count", len(batch))
		metrics.ClicksDropped.WithLabelValues(sink).Add(float64(len(batch)))
		return
	}
	if len(batch) > 0 {
		slog.Debug("click stats: flushed", "sink", sink, "count", len(batch))
	}
}
