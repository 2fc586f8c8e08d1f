package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool hands out one token bucket per bot. A non-positive rate
// disables limiting.
type limiterPool struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newLimiterPool(perSecond float64, burst int) *limiterPool {
	if burst < 1 {
		burst = 1
	}
	return &limiterPool{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (p *limiterPool) Allow(botID string) bool {
	if p.limit <= 0 {
		return true
	}
	p.mu.Lock()
	l, ok := p.limiters[botID]
	if !ok {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters[botID] = l
	}
	p.mu.Unlock()
	return l.Allow()
}

func (p *limiterPool) Forget(botID string) {
	p.mu.Lock()
	delete(p.limiters, botID)
	p.mu.Unlock()
}
