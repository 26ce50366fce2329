package atom

import (
	"sync/atomic"
	"time"
)

// Clock supplies logical timestamps for time-ordered leaves.
type Clock interface {
	Now() int64
}

// WallClock returns wall-clock nanoseconds, forced strictly increasing so
// that two writes in the same process never share a timestamp.
//
// Thread-safety: WallClock is safe for concurrent use (atomic operations).
type WallClock struct {
	last atomic.Int64
}

// Now returns max(wall-clock ns, previous+1).
func (c *WallClock) Now() int64 {
	for {
		prev := c.last.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// DefaultClock stamps every Timed.Set in this process.
var DefaultClock Clock = &WallClock{}
