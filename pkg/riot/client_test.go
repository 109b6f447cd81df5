package riot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ladderharvest/pkg/config"
	errs "ladderharvest/pkg/errors"
	"ladderharvest/pkg/logger"
	"ladderharvest/pkg/ratelimit"
	"ladderharvest/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRoundTripper allows us to intercept HTTP requests
type mockRoundTripper struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

func newMockHTTPClient(handler func(req *http.Request) (*http.Response, error)) *http.Client {
	return &http.Client{
		Transport: &mockRoundTripper{handler: handler},
		Timeout:   5 * time.Second,
	}
}

func newResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

// countingLimiters records how many times each host was paced
type countingLimiters struct {
	mu       sync.Mutex
	acquires map[string]int
}

func (c *countingLimiters) Get(host string) (ratelimit.Limiter, error) {
	return limiterFunc(func(ctx context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.acquires == nil {
			c.acquires = make(map[string]int)
		}
		c.acquires[host]++
		return ctx.Err()
	}), nil
}

func (c *countingLimiters) count(host string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquires[host]
}

type limiterFunc func(ctx context.Context) error

func (f limiterFunc) Acquire(ctx context.Context) error { return f(ctx) }

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxAttempts:      3,
		Backoff:          &retry.ConstantBackoff{Delay: time.Millisecond},
		RateLimitBackoff: &retry.ConstantBackoff{Delay: time.Millisecond},
		Logger:           logger.NewNopLogger(),
	}
}

func testRiotConfig(pattern string) config.RiotConfig {
	return config.RiotConfig{
		APIKey:         "RGAPI-test",
		BaseURLPattern: pattern,
		Timeout:        5 * time.Second,
		Queue:          "RANKED_SOLO_5x5",
	}
}

func newTestClient(log logger.Logger, limiters HostLimiters, handler func(req *http.Request) (*http.Response, error)) *Client {
	return NewClient(testRiotConfig(""), limiters, log,
		WithHTTPClient(newMockHTTPClient(handler)),
		WithRetry(fastRetry()),
	)
}

func TestClientLeagueEntries(t *testing.T) {
	limiters := &countingLimiters{}
	var gotToken string

	client := newTestClient(logger.NewTestLogger(), limiters, func(req *http.Request) (*http.Response, error) {
		gotToken = req.Header.Get(TokenHeader)
		assert.Equal(t, "na1.api.riotgames.com", req.URL.Host)
		assert.Equal(t, "/lol/league/v4/entries/RANKED_SOLO_5x5/GOLD/II", req.URL.Path)
		return newResponse(http.StatusOK, `[
			{"summonerId":"s1","puuid":"p1","tier":"GOLD","rank":"II","leaguePoints":40,"wins":10,"losses":8},
			{"summonerId":"s2","tier":"GOLD","rank":"II","leaguePoints":12}
		]`), nil
	})

	entries, err := client.LeagueEntries(context.Background(), "na1", "GOLD", "II", 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "RGAPI-test", gotToken)
	assert.Equal(t, "s1", entries[0].SummonerID)
	assert.Equal(t, 40, entries[0].LeaguePoints)
	assert.Equal(t, 1, limiters.count("na1"))
}

func TestClientRateLimitedThenSucceeds(t *testing.T) {
	limiters := &countingLimiters{}
	log := logger.NewTestLogger()
	var calls int32

	client := newTestClient(log, limiters, func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) <= 4 {
			resp := newResponse(http.StatusTooManyRequests, "")
			resp.Header.Set("X-Rate-Limit-Type", "application")
			return resp, nil
		}
		return newResponse(http.StatusOK, `["NA1_1","NA1_2"]`), nil
	})

	// Four throttled responses exceed MaxAttempts but must not exhaust it
	ids, err := client.MatchIDs(context.Background(), "americas", "p1", time.Time{}, 420, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"NA1_1", "NA1_2"}, ids)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
	assert.Equal(t, 5, limiters.count("americas"), "every attempt is paced")
	assert.True(t, log.HasMessage("Rate limit reached, backing off"))
}

func TestClientHonorsRetryAfter(t *testing.T) {
	var calls int32
	var first, second time.Time

	client := newTestClient(logger.NewNopLogger(), &countingLimiters{}, func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			first = time.Now()
			resp := newResponse(http.StatusTooManyRequests, "")
			resp.Header.Set("Retry-After", "1")
			return resp, nil
		}
		second = time.Now()
		return newResponse(http.StatusOK, `{"id":"s1","puuid":"p1"}`), nil
	})

	summoner, err := client.SummonerByID(context.Background(), "euw1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "p1", summoner.PUUID)
	assert.GreaterOrEqual(t, second.Sub(first), time.Second)
}

func TestClientAuthNotRetried(t *testing.T) {
	var calls int32

	client := newTestClient(logger.NewTestLogger(), &countingLimiters{}, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return newResponse(http.StatusForbidden, `{"status":{"message":"Forbidden"}}`), nil
	})

	_, err := client.Match(context.Background(), "europe", "EUW1_1")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientNotFoundNotRetried(t *testing.T) {
	var calls int32

	client := newTestClient(logger.NewNopLogger(), &countingLimiters{}, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return newResponse(http.StatusNotFound, ""), nil
	})

	_, err := client.SummonerByID(context.Background(), "kr", "gone")
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientServerErrorExhaustsAttempts(t *testing.T) {
	var calls int32

	client := newTestClient(logger.NewNopLogger(), &countingLimiters{}, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return newResponse(http.StatusServiceUnavailable, ""), nil
	})

	_, err := client.LeagueEntries(context.Background(), "br1", "IRON", "IV", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, retry.ErrMaxAttempts))
	assert.True(t, errs.Is(err, errs.ErrorTypeServerError))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientNetworkErrorRetried(t *testing.T) {
	var calls int32

	client := newTestClient(logger.NewNopLogger(), &countingLimiters{}, func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("connection reset by peer")
		}
		return newResponse(http.StatusOK, `[]`), nil
	})

	entries, err := client.HighTierEntries(context.Background(), "kr", "CHALLENGER", 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientParseError(t *testing.T) {
	log := logger.NewTestLogger()
	var calls int32

	client := newTestClient(log, &countingLimiters{}, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return newResponse(http.StatusOK, `<html>maintenance</html>`), nil
	})

	_, err := client.Match(context.Background(), "asia", "KR_1")
	assert.True(t, errs.Is(err, errs.ErrorTypeParsing))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	msg, ok := log.FindMessage("failed to parse JSON response")
	require.True(t, ok)
	assert.Equal(t, "<html>maintenance</html>", msg.Fields["body_preview"])
}

func TestClientApexLeagueFillsTier(t *testing.T) {
	client := newTestClient(logger.NewNopLogger(), &countingLimiters{}, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/lol/league/v4/masterleagues/by-queue/RANKED_SOLO_5x5", req.URL.Path)
		return newResponse(http.StatusOK, `{
			"tier":"MASTER","leagueId":"L1","queue":"RANKED_SOLO_5x5",
			"entries":[{"summonerId":"s1","rank":"I","leaguePoints":120},{"summonerId":"s2","rank":"I","leaguePoints":5}]
		}`), nil
	})

	list, err := client.ApexLeague(context.Background(), "na1", "MASTER")
	require.NoError(t, err)
	require.Len(t, list.Entries, 2)
	for _, e := range list.Entries {
		assert.Equal(t, "MASTER", e.Tier)
	}
}

func TestClientCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	client := newTestClient(logger.NewNopLogger(), &countingLimiters{}, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return newResponse(http.StatusOK, `[]`), nil
	})

	_, err := client.LeagueEntries(ctx, "na1", "GOLD", "I", 1)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestClientAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The routing host is the first path segment
		if r.URL.Path != "/europe/lol/match/v5/matches/EUW1_42" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"metadata":{"matchId":"EUW1_42","participants":["p1"]},
			"info":{"gameCreation":1714521600000,"gameDuration":1800,"queueId":420,"endOfGameResult":"GameComplete",
				"teams":[{"teamId":100,"win":true},{"teamId":200,"win":false}],
				"participants":[{"puuid":"p1","teamId":100,"win":true,"totalMinionsKilled":200,"neutralMinionsKilled":40}]}
		}`))
	}))
	defer srv.Close()

	registry := ratelimit.NewRegistry(ratelimit.MemoryFactory([]ratelimit.Window{{Limit: 100, Duration: time.Second}}))
	client := NewClient(testRiotConfig(srv.URL+"/%s"), registry, logger.NewTestLogger(), WithRetry(fastRetry()))

	m, err := client.Match(context.Background(), "europe", "EUW1_42")
	require.NoError(t, err)
	assert.Equal(t, "EUW1_42", m.Metadata.MatchID)
	assert.False(t, m.Aborted())
	assert.Equal(t, 240, m.Info.Participants[0].TotalMinionsKilled+m.Info.Participants[0].NeutralMinionsKilled)
	assert.Equal(t, []string{"europe"}, registry.Hosts())
}
