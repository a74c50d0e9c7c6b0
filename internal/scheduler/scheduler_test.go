package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingRefresher struct {
	calls int32
}

func (c *countingRefresher) Refresh(_ context.Context) error {
	atomic.AddInt32(&c.calls, 1)
	return nil
}

func TestScheduler_New_ClampsIntervalToOneHour(t *testing.T) {
	s := New(&countingRefresher{}, 0)
	assert.Equal(t, time.Hour, s.interval)

	s2 := New(&countingRefresher{}, 24)
	assert.Equal(t, 24*time.Hour, s2.interval)
}

func TestScheduler_Run_SkipsFirstTickThenRefreshes(t *testing.T) {
	r := &countingRefresher{}
	s := &Scheduler{refresher: r, interval: 5 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 22*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	// At most 4 ticks fit in the window; the first is consumed, so calls
	// land in [1,3] depending on scheduling jitter, never 0 and never equal
	// to the raw tick count.
	calls := atomic.LoadInt32(&r.calls)
	assert.GreaterOrEqual(t, calls, int32(1))
	assert.LessOrEqual(t, calls, int32(3))
}
