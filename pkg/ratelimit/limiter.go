package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter paces outbound requests. Acquire blocks until one more request
// may be issued, or until ctx is done.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Window is a ceiling of Limit requests in any rolling span of Duration
type Window struct {
	Limit    int
	Duration time.Duration
}

func (w Window) String() string {
	return fmt.Sprintf("%d/%s", w.Limit, w.Duration)
}

// RollingWindow enforces several rolling-window ceilings at once.
// It keeps one timestamp per issued request for the longest window.
type RollingWindow struct {
	mu      sync.Mutex
	windows []Window
	longest time.Duration
	stamps  []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a RollingWindow
type Option func(*RollingWindow)

// WithClock replaces the time source and sleeper, used by tests to run without real waits
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(rw *RollingWindow) {
		rw.now = now
		rw.sleep = sleep
	}
}

// NewRollingWindow creates a limiter enforcing every given window
func NewRollingWindow(windows []Window, opts ...Option) (*RollingWindow, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("at least one window is required")
	}

	rw := &RollingWindow{
		windows: make([]Window, 0, len(windows)),
		now:     time.Now,
		sleep:   sleepContext,
	}
	capacity := 0
	for _, w := range windows {
		if w.Limit <= 0 || w.Duration <= 0 {
			return nil, fmt.Errorf("invalid window %s", w)
		}
		rw.windows = append(rw.windows, w)
		if w.Duration > rw.longest {
			rw.longest = w.Duration
			capacity = w.Limit
		}
	}
	rw.stamps = make([]time.Time, 0, capacity)

	for _, opt := range opts {
		opt(rw)
	}
	return rw, nil
}

// NewDualWindow is the common short/long pair, e.g. 20 per second and 100 per two minutes
func NewDualWindow(shortLimit int, short time.Duration, longLimit int, long time.Duration, opts ...Option) (*RollingWindow, error) {
	return NewRollingWindow([]Window{
		{Limit: shortLimit, Duration: short},
		{Limit: longLimit, Duration: long},
	}, opts...)
}

// Acquire blocks until issuing one more request would exceed no window.
// After each sleep every window is checked again, since satisfying the
// short window can still leave the long one full.
func (rw *RollingWindow) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rw.mu.Lock()
		wait := rw.reserve(rw.now())
		rw.mu.Unlock()

		if wait <= 0 {
			return nil
		}
		if err := rw.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Allow records a request and returns true if it fits every window right now
func (rw *RollingWindow) Allow() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	return rw.reserve(rw.now()) <= 0
}

// Reset clears all recorded requests
func (rw *RollingWindow) Reset() {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.stamps = rw.stamps[:0]
}

// Windows returns the configured ceilings
func (rw *RollingWindow) Windows() []Window {
	out := make([]Window, len(rw.windows))
	copy(out, rw.windows)
	return out
}

// reserve records now and returns zero if every window has room,
// otherwise returns how long to wait without recording anything.
// Callers must hold mu.
func (rw *RollingWindow) reserve(now time.Time) time.Duration {
	rw.cleanOldRequests(now)

	var wait time.Duration
	for _, w := range rw.windows {
		if len(rw.stamps) < w.Limit {
			continue
		}
		// The request Limit positions back must leave this window first
		oldest := rw.stamps[len(rw.stamps)-w.Limit]
		if !oldest.After(now.Add(-w.Duration)) {
			continue
		}
		if d := oldest.Add(w.Duration).Sub(now); d > wait {
			wait = d
		}
	}

	if wait > 0 {
		return wait
	}
	rw.stamps = append(rw.stamps, now)
	return 0
}

// cleanOldRequests drops stamps outside the longest window
func (rw *RollingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-rw.longest)

	i := 0
	for i < len(rw.stamps) && !rw.stamps[i].After(cutoff) {
		i++
	}

	if i > 0 {
		n := copy(rw.stamps, rw.stamps[i:])
		rw.stamps = rw.stamps[:n]
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
