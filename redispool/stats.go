package redispool

import (
	"sync/atomic"
)

// Stats is a point-in-time snapshot of pool accounting.
type Stats struct {
	// Sizes.
	Total     int
	Available int
	Active    int
	Waiting   int

	// Lifetime counters.
	Acquired           int64
	Released           int64
	Created            int64
	Destroyed          int64
	HealthFailures     int64
	ValidationFailures int64
	ReconnectAttempts  int64
	ReconnectSuccesses int64

	// Acquire latency.
	AvgAcquireMs float64
	MaxAcquireMs int64
	PeakActive   int64
}

type counters struct {
	acquired           atomic.Int64
	released           atomic.Int64
	created            atomic.Int64
	destroyed          atomic.Int64
	healthFailures     atomic.Int64
	validationFailures atomic.Int64
	reconnectAttempts  atomic.Int64
	reconnectSuccesses atomic.Int64
	waiting            atomic.Int64
	active             atomic.Int64
	peakActive         atomic.Int64
	acquireCount       atomic.Int64
	acquireTotalMs     atomic.Int64
	acquireMaxMs       atomic.Int64
}

func (c *counters) noteAcquire(elapsedMs int64) {
	c.acquired.Add(1)
	c.acquireCount.Add(1)
	c.acquireTotalMs.Add(elapsedMs)
	for {
		max := c.acquireMaxMs.Load()
		if elapsedMs <= max || c.acquireMaxMs.CompareAndSwap(max, elapsedMs) {
			break
		}
	}
	active := c.active.Add(1)
	for {
		peak := c.peakActive.Load()
		if active <= peak || c.peakActive.CompareAndSwap(peak, active) {
			break
		}
	}
}
