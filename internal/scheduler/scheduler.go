// Package scheduler fires the ingestion coordinator's refresh on a fixed
// interval, per spec.md §4.4. Grounded on the prototype's
// Scheduler::start_refresh_loop (a tokio::time::interval loop), translated
// to a time.Ticker-driven goroutine.
package scheduler

import (
	"context"
	"time"

	"github.com/trustguide/directory/internal/sklog"
)

// Refresher is the single operation the scheduler drives. *ingestion.Coordinator
// satisfies this without the scheduler needing to import the ingestion
// package directly, matching spec.md §9's "no ambient singletons" note.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler ticks Refresher.Refresh at a fixed interval, discarding the
// first tick per spec.md §4.4. A time.Ticker's first tick arrives one
// interval after Run starts, so the first scheduled refresh happens two
// intervals after start.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
}

// minInterval is the floor spec.md §4.4 imposes on the configured
// interval.
const minInterval = time.Hour

// New builds a Scheduler. intervalHours below 1 is clamped up to 1.
func New(refresher Refresher, intervalHours int) *Scheduler {
	interval := time.Duration(intervalHours) * time.Hour
	if interval < minInterval {
		interval = minInterval
	}
	return &Scheduler{refresher: refresher, interval: interval}
}

// Run blocks, ticking Refresh every interval until ctx is cancelled. The
// first tick is consumed without action per spec.md §4.4. A refresh error
// is logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	first := true
	sklog.Infof("scheduler: started, refreshing every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			sklog.Infof("scheduler: stopping, context cancelled")
			return
		case <-ticker.C:
			if first {
				first = false
				continue
			}
			if err := s.refresher.Refresh(ctx); err != nil {
				sklog.Errorf("scheduler: refresh failed: %s", err)
			}
		}
	}
}
