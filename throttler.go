package spanz

import (
	"sync"

	"github.com/zoobzio/clockz"
	"golang.org/x/time/rate"
)

// maxThrottledOperations bounds the per-operation limiter map. Operations
// beyond it share one limiter.
const maxThrottledOperations = 2048

// DebugThrottler rate limits sampling priority elevation per operation.
// Safe for concurrent use by multiple goroutines.
type DebugThrottler struct {
	limiters map[string]*rate.Limiter
	overflow *rate.Limiter
	clock    clockz.Clock
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
}

// NewDebugThrottler allows perSecond elevations per operation with the
// given burst. perSecond <= 0 allows everything.
func NewDebugThrottler(perSecond float64, burst int, clock clockz.Clock) *DebugThrottler {
	if clock == nil {
		clock = clockz.RealClock
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &DebugThrottler{
		limiters: make(map[string]*rate.Limiter),
		overflow: rate.NewLimiter(limit, burst),
		clock:    clock,
		limit:    limit,
		burst:    burst,
	}
}

// IsAllowed consumes one elevation token for operation.
func (d *DebugThrottler) IsAllowed(operation string) bool {
	if d == nil || d.limit == rate.Inf {
		return true
	}
	return d.limiter(operation).AllowN(d.clock.Now(), 1)
}

func (d *DebugThrottler) limiter(operation string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	if l, ok := d.limiters[operation]; ok {
		return l
	}
	if len(d.limiters) >= maxThrottledOperations {
		return d.overflow
	}
	l := rate.NewLimiter(d.limit, d.burst)
	d.limiters[operation] = l
	return l
}
