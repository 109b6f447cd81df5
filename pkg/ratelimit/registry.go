package ratelimit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"ladderharvest/pkg/config"
)

// Factory builds the limiter for one routing host
type Factory func(host string) (Limiter, error)

// Registry hands out one limiter per routing host. The remote quota is
// counted per host, so every worker calling the same host shares one limiter.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]Limiter
	factory  Factory
	closeFn  func() error
}

// NewRegistry creates a registry that builds limiters with factory on first use
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		limiters: make(map[string]Limiter),
		factory:  factory,
	}
}

// Get returns the limiter for host, creating it on first use
func (r *Registry) Get(host string) (Limiter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[host]; ok {
		return lim, nil
	}

	lim, err := r.factory(host)
	if err != nil {
		return nil, fmt.Errorf("create limiter for %s: %w", host, err)
	}
	r.limiters[host] = lim
	return lim, nil
}

// Hosts returns the hosts that have a limiter, sorted
func (r *Registry) Hosts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	hosts := make([]string, 0, len(r.limiters))
	for h := range r.limiters {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Close releases the backing store, if any
func (r *Registry) Close() error {
	if r.closeFn == nil {
		return nil
	}
	return r.closeFn()
}

// MemoryFactory builds an in-process RollingWindow per host
func MemoryFactory(windows []Window, opts ...Option) Factory {
	return func(string) (Limiter, error) {
		return NewRollingWindow(windows, opts...)
	}
}

// RedisFactory builds a RedisWindow per host under prefix:host
func RedisFactory(rdb redis.Scripter, prefix string, windows []Window) Factory {
	return func(host string) (Limiter, error) {
		return NewRedisWindow(rdb, prefix+":"+host, windows)
	}
}

// WindowsFromConfig returns the short and long windows of the rate limit section
func WindowsFromConfig(rl config.RateLimitConfig) []Window {
	return []Window{
		{Limit: rl.ShortRequests, Duration: rl.ShortWindow},
		{Limit: rl.LongRequests, Duration: rl.LongWindow},
	}
}

// NewRegistryFromConfig builds a registry for the configured backend
func NewRegistryFromConfig(rl config.RateLimitConfig) (*Registry, error) {
	windows := WindowsFromConfig(rl)

	switch rl.Backend {
	case "", "memory":
		return NewRegistry(MemoryFactory(windows)), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr: rl.RedisAddr,
			DB:   rl.RedisDB,
		})
		reg := NewRegistry(RedisFactory(rdb, "ladderharvest:ratelimit", windows))
		reg.closeFn = rdb.Close
		return reg, nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", rl.Backend)
	}
}
