package riot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"ladderharvest/pkg/config"
	errs "ladderharvest/pkg/errors"
	"ladderharvest/pkg/logger"
	"ladderharvest/pkg/ratelimit"
	"ladderharvest/pkg/retry"
)

// HostLimiters hands out the pacing limiter for a routing host
type HostLimiters interface {
	Get(host string) (ratelimit.Limiter, error)
}

// Client issues paced, retried requests to the remote API
type Client struct {
	*RequestBuilder

	httpClient *http.Client
	limiters   HostLimiters
	methods    *ratelimit.MethodLimiter
	retry      *retry.Config
	queue      string
	logger     logger.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithMethodLimiter adds per-endpoint ceilings
func WithMethodLimiter(m *ratelimit.MethodLimiter) ClientOption {
	return func(c *Client) { c.methods = m }
}

// WithRetry replaces the retry policy
func WithRetry(cfg *retry.Config) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a client for the configured API key and base URL
func NewClient(cfg config.RiotConfig, limiters HostLimiters, log logger.Logger, opts ...ClientOption) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	c := &Client{
		RequestBuilder: NewRequestBuilder(cfg.APIKey, cfg.BaseURLPattern),
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		limiters:       limiters,
		retry:          retry.DefaultConfig(),
		queue:          cfg.Queue,
		logger:         log,
	}
	c.retry.Logger = log
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch sends req and decodes the JSON body into target. Every attempt,
// including retries, first waits on the host limiter and the method limiter.
func (c *Client) Fetch(ctx context.Context, req *Request, target interface{}) error {
	lim, err := c.limiters.Get(req.Host)
	if err != nil {
		return err
	}

	return retry.Do(ctx, func() error {
		if err := lim.Acquire(ctx); err != nil {
			return err
		}
		if err := c.methods.Wait(ctx, req.Host, string(req.Kind)); err != nil {
			return err
		}
		return c.getJSON(ctx, req, target)
	}, c.retry)
}

// getJSON performs one attempt of req
func (c *Client) getJSON(ctx context.Context, req *Request, target interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	httpReq.Header = req.Header.Clone()

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.WarnWithFields("API request failed", map[string]interface{}{
			"endpoint": string(req.Kind),
			"host":     req.Host,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}
	defer resp.Body.Close()

	logger.LogRequest(c.logger, string(req.Kind), req.URL, resp.StatusCode, time.Since(start))

	if err := c.checkResponseStatus(req, resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"endpoint":     string(req.Kind),
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
		}
	}

	return nil
}

// checkResponseStatus maps the HTTP status to a typed error
func (c *Client) checkResponseStatus(req *Request, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.ErrorWithFields("API key rejected", map[string]interface{}{
			"status":   resp.StatusCode,
			"endpoint": string(req.Kind),
		})
		return &errs.Error{
			Type:    errs.ErrorTypeAuth,
			Message: "API key missing, invalid or expired",
			Code:    resp.StatusCode,
		}

	case resp.StatusCode == http.StatusNotFound:
		return &errs.Error{
			Type:    errs.ErrorTypeNotFound,
			Message: "resource not found",
			Code:    resp.StatusCode,
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		logger.LogRateLimit(c.logger, string(req.Kind), retryAfter)
		return &errs.Error{
			Type:       errs.ErrorTypeRateLimit,
			Message:    fmt.Sprintf("rate limit exceeded (%s)", resp.Header.Get("X-Rate-Limit-Type")),
			Code:       resp.StatusCode,
			RetryAfter: retryAfter,
		}

	case resp.StatusCode >= 500:
		return &errs.Error{
			Type:    errs.ErrorTypeServerError,
			Message: "server error",
			Code:    resp.StatusCode,
		}

	default:
		c.logger.ErrorWithFields("unexpected API error", map[string]interface{}{
			"status":   resp.StatusCode,
			"endpoint": string(req.Kind),
		})
		return &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
}

// parseRetryAfter reads the delay-seconds form of Retry-After
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// LeagueEntries fetches one page of a tier and division on shard
func (c *Client) LeagueEntries(ctx context.Context, shard, tier, division string, page int) ([]LeagueEntry, error) {
	req, err := c.BuildRequest(KindLeagueEntries, Params{
		Host: shard, Queue: c.queue, Tier: tier, Division: division, Page: page,
	})
	if err != nil {
		return nil, err
	}

	var entries []LeagueEntry
	if err := c.Fetch(ctx, req, &entries); err != nil {
		return nil, fmt.Errorf("league entries %s %s %s page %d: %w", shard, tier, division, page, err)
	}
	return entries, nil
}

// HighTierEntries fetches one page of an apex tier on shard
func (c *Client) HighTierEntries(ctx context.Context, shard, tier string, page int) ([]LeagueEntry, error) {
	req, err := c.BuildRequest(KindHighTierEntries, Params{
		Host: shard, Queue: c.queue, Tier: tier, Page: page,
	})
	if err != nil {
		return nil, err
	}

	var entries []LeagueEntry
	if err := c.Fetch(ctx, req, &entries); err != nil {
		return nil, fmt.Errorf("high tier entries %s %s page %d: %w", shard, tier, page, err)
	}
	return entries, nil
}

// ApexLeague fetches a whole apex league on shard. Entries get the league's tier filled in.
func (c *Client) ApexLeague(ctx context.Context, shard, tier string) (*LeagueList, error) {
	req, err := c.BuildRequest(KindApexLeague, Params{Host: shard, Queue: c.queue, Tier: tier})
	if err != nil {
		return nil, err
	}

	var list LeagueList
	if err := c.Fetch(ctx, req, &list); err != nil {
		return nil, fmt.Errorf("apex league %s %s: %w", shard, tier, err)
	}
	for i := range list.Entries {
		if list.Entries[i].Tier == "" {
			list.Entries[i].Tier = list.Tier
		}
	}
	return &list, nil
}

// SummonerByID resolves a summoner id on shard
func (c *Client) SummonerByID(ctx context.Context, shard, summonerID string) (*Summoner, error) {
	req, err := c.BuildRequest(KindSummonerByID, Params{Host: shard, SummonerID: summonerID})
	if err != nil {
		return nil, err
	}

	var summoner Summoner
	if err := c.Fetch(ctx, req, &summoner); err != nil {
		return nil, fmt.Errorf("summoner %s on %s: %w", summonerID, shard, err)
	}
	return &summoner, nil
}

// MatchIDs lists match ids for puuid in region started at or after since
func (c *Client) MatchIDs(ctx context.Context, region, puuid string, since time.Time, queueID, start, count int) ([]string, error) {
	req, err := c.BuildRequest(KindMatchIDs, Params{
		Host: region, PUUID: puuid, StartTime: since, QueueID: queueID, Start: start, Count: count,
	})
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := c.Fetch(ctx, req, &ids); err != nil {
		return nil, fmt.Errorf("match ids for %s from %d: %w", puuid, start, err)
	}
	return ids, nil
}

// Match fetches one match detail from region
func (c *Client) Match(ctx context.Context, region, matchID string) (*Match, error) {
	req, err := c.BuildRequest(KindMatchDetail, Params{Host: region, MatchID: matchID})
	if err != nil {
		return nil, err
	}

	var m Match
	if err := c.Fetch(ctx, req, &m); err != nil {
		return nil, fmt.Errorf("match %s: %w", matchID, err)
	}
	return &m, nil
}
