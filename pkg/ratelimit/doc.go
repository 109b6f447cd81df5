// Package ratelimit paces requests to the remote API.
//
// The service enforces two ceilings per routing host at the same time, a
// short one (for a development key, 20 requests per second) and a long one
// (100 requests per two minutes). RollingWindow tracks a timestamp for every
// issued request and makes Acquire wait until neither window would be
// exceeded. RedisWindow applies the same rule through a Redis sorted set so
// several processes sharing one key share one quota.
//
// Registry hands out one limiter per host; every worker talking to a host
// must go through the same instance. MethodLimiter layers the per-endpoint
// ceilings on top using token buckets from golang.org/x/time/rate.
//
//	reg, err := ratelimit.NewRegistryFromConfig(cfg.RateLimit)
//	lim, err := reg.Get("euw1")
//	if err := lim.Acquire(ctx); err != nil {
//		return err // ctx cancelled
//	}
package ratelimit
