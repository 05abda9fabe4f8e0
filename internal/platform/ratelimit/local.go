package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is the in-process fallback used when Redis is unreachable.
// Limits are per instance, so a fleet of N instances admits up to N times the
// configured rate.
type LocalLimiter struct {
	mu        sync.Mutex
	keys      map[string]*localEntry
	global    *rate.Limiter
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter caps every key by its own window and, when globalRPS > 0,
// all keys together at globalRPS.
func NewLocalLimiter(globalRPS float64) *LocalLimiter {
	l := &LocalLimiter{
		keys:    make(map[string]*localEntry),
		idleTTL: 3 * time.Minute,
		now:     time.Now,
	}
	if globalRPS > 0 {
		l.global = rate.NewLimiter(rate.Limit(globalRPS), int(globalRPS)+1)
	}
	l.lastSweep = l.now()
	return l
}

// Allow matches Limiter.Allow; member is unused since tokens are not tracked
// individually.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, _ string) (bool, time.Duration, error) {
	if limit <= 0 || window <= 0 {
		return true, 0, nil
	}
	now := l.now()

	l.mu.Lock()
	entry, ok := l.keys[key]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		l.keys[key] = entry
	}
	entry.lastSeen = now
	if now.Sub(l.lastSweep) > time.Minute {
		for k, e := range l.keys {
			if now.Sub(e.lastSeen) > l.idleTTL {
				delete(l.keys, k)
			}
		}
		l.lastSweep = now
	}
	l.mu.Unlock()

	if ok, wait := take(entry.limiter, now); !ok {
		return false, wait, nil
	}
	if l.global != nil {
		if ok, wait := take(l.global, now); !ok {
			return false, wait, nil
		}
	}
	return true, 0, nil
}

func take(lim *rate.Limiter, now time.Time) (bool, time.Duration) {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}
