// Package ratelimit implements a per-key sliding-window counter, the write
// path guard the vote service consults before every upsert. Unlike
// golang.org/x/time/rate's token bucket (used elsewhere in this repo for a
// coarse anonymous-QPS cap), this is a true sliding window: it remembers the
// timestamp of every accepted call within the window and drains expired
// ones lazily.
package ratelimit

import (
	"sync"
	"time"

	"github.com/trustguide/directory/internal/clock"
)

// Limiter gates calls per key within a fixed window.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	clock       clock.Clock
	queues      map[string][]time.Time

	sweepThreshold int
}

// New builds a Limiter allowing up to maxRequests accepts per key within
// window.
func New(maxRequests int, window time.Duration, c clock.Clock) *Limiter {
	if c == nil {
		c = clock.Real
	}
	return &Limiter{
		maxRequests:    maxRequests,
		window:         window,
		clock:          c,
		queues:         make(map[string][]time.Time),
		sweepThreshold: 10000,
	}
}

// Allow drains expired timestamps for key, then accepts the call if the
// remaining count is below maxRequests.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	queue := l.queues[key]
	queue = drainExpired(queue, cutoff)

	if len(queue) >= l.maxRequests {
		l.queues[key] = queue
		return false
	}

	queue = append(queue, now)
	l.queues[key] = queue

	if len(l.queues) > l.sweepThreshold {
		l.sweepLocked(cutoff)
	}
	return true
}

// drainExpired removes leading entries older than cutoff. Entries are
// appended in arrival order so the oldest is always at the front.
func drainExpired(queue []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(queue) && !queue[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return queue
	}
	return append(queue[:0], queue[i:]...)
}

// sweepLocked evicts keys whose queues have fully drained. Called while
// l.mu is already held.
func (l *Limiter) sweepLocked(cutoff time.Time) {
	for k, q := range l.queues {
		q = drainExpired(q, cutoff)
		if len(q) == 0 {
			delete(l.queues, k)
		} else {
			l.queues[k] = q
		}
	}
}
