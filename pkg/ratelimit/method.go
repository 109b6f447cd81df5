package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"ladderharvest/pkg/config"
)

// MethodLimiter applies per-endpoint ceilings on top of the host windows.
// Each (host, endpoint kind) pair gets its own token bucket; kinds without
// a configured limit pass straight through.
type MethodLimiter struct {
	mu       sync.Mutex
	limits   map[string]config.MethodLimit
	limiters map[string]*rate.Limiter
}

// NewMethodLimiter creates a limiter from endpoint kind to ceiling
func NewMethodLimiter(limits map[string]config.MethodLimit) *MethodLimiter {
	return &MethodLimiter{
		limits:   limits,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the endpoint kind on host may be called, or ctx is done
func (m *MethodLimiter) Wait(ctx context.Context, host, kind string) error {
	lim := m.getLimiter(host, kind)
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

func (m *MethodLimiter) getLimiter(host, kind string) *rate.Limiter {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := host + "|" + kind
	if lim, ok := m.limiters[key]; ok {
		return lim
	}

	ml, ok := m.limits[kind]
	if !ok || ml.Requests <= 0 || ml.Per <= 0 {
		return nil
	}

	burst := ml.Requests / 10
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(float64(ml.Requests)/ml.Per.Seconds()), burst)
	m.limiters[key] = lim
	return lim
}
