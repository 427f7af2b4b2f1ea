package guard

import (
	"sync"

	"golang.org/x/time/rate"
)

// DefaultCallsPerMinute is the per-method admission rate when none is
// configured.
const DefaultCallsPerMinute = 60

// MethodLimiter enforces a maximum call rate per request-method name. The key
// is the method, not the caller: no caller identity is modeled, so this is a
// global fuse against runaway clients rather than a per-client quota.
type MethodLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewMethodLimiter builds a limiter admitting callsPerMinute calls per method
// over a sliding window. Non-positive values fall back to the default.
func NewMethodLimiter(callsPerMinute int) *MethodLimiter {
	if callsPerMinute <= 0 {
		callsPerMinute = DefaultCallsPerMinute
	}
	return &MethodLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(callsPerMinute) / 60.0),
		burst:    callsPerMinute,
	}
}

// Allow reports whether a call to the named method is admitted right now.
// Counters never lose increments under concurrent callers; the per-method
// limiter is created on first use and lives for the process.
func (ml *MethodLimiter) Allow(method string) bool {
	ml.mu.Lock()
	l, ok := ml.limiters[method]
	if !ok {
		l = rate.NewLimiter(ml.limit, ml.burst)
		ml.limiters[method] = l
	}
	ml.mu.Unlock()
	return l.Allow()
}
