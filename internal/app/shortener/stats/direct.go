package stats

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/platform/metrics"
)

const DefaultTrackTimeout = 500 * time.Millisecond

// DirectTracker writes every visit straight to the store on its own
// goroutine, bounded by a short timeout. Failures are logged and dropped.
type DirectTracker struct {
	store   shortener.VisitStore
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDirectTracker(store shortener.VisitStore, timeout time.Duration) *DirectTracker {
	if timeout <= 0 {
		timeout = DefaultTrackTimeout
	}
	return &DirectTracker{store: store, timeout: timeout}
}

func (t *DirectTracker) Track(v shortener.Visit) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		metrics.ClicksDropped.WithLabelValues("direct").Inc()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	event := NewClickEvent(v)
	go func() {
		defer t.wg.Done()
		t.record(event.Visit())
	}()
}

func (t *DirectTracker) record(v shortener.Visit) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	visits := []shortener.Visit{v}
	err := t.store.RecordVisits(ctx, visits)
	if errors.Is(err, shortener.ErrTransientStore) && ctx.Err() == nil {
		err = t.store.RecordVisits(ctx, visits)
	}
	if err != nil {
		metrics.ClicksDropped.WithLabelValues("direct").Inc()
		slog.Warn("click tracking failed", "err", err, "link_id", v.LinkID)
	}
}

// Close stops accepting visits and waits for in-flight writes.
func (t *DirectTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.wg.Wait()
}
