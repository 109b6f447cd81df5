// Package retry provides backoff and retry logic for remote API calls.
//
// Two budgets apply. Rate limit rejections (errors of type rate_limit) are
// retried for as long as the context lives, waiting for the server's
// Retry-After when it sent one and for RateLimitBackoff otherwise. Network
// and server errors are retried with jittered exponential backoff until
// MaxAttempts failures, after which Do returns an error wrapping
// ErrMaxAttempts. Auth, not-found and parsing errors are returned at once.
//
// Defaults: transient failures back off from 1s doubling to a 3 minute
// ceiling with 20% jitter over 5 attempts; rate limit rejections without
// Retry-After back off from 30s by 1.5x to 5 minutes with 30% jitter.
//
//	page, err := retry.DoWithResult(ctx, func() ([]riot.LeagueEntry, error) {
//		return client.LeagueEntries(ctx, tier, division, page)
//	}, retry.FromConfig(cfg.Retry, log))
package retry
