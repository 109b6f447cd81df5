package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladderharvest/pkg/config"
)

func TestRegistrySharesLimiterPerHost(t *testing.T) {
	reg := NewRegistry(MemoryFactory([]Window{{Limit: 20, Duration: time.Second}}))

	a, err := reg.Get("na1")
	require.NoError(t, err)
	b, err := reg.Get("na1")
	require.NoError(t, err)
	c, err := reg.Get("americas")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, []string{"americas", "na1"}, reg.Hosts())
	assert.NoError(t, reg.Close())
}

func TestRegistryFactoryError(t *testing.T) {
	reg := NewRegistry(MemoryFactory(nil))

	_, err := reg.Get("kr")
	assert.Error(t, err)
	assert.Empty(t, reg.Hosts())
}

func TestNewRegistryFromConfig(t *testing.T) {
	rl := config.DefaultConfig().RateLimit

	reg, err := NewRegistryFromConfig(rl)
	require.NoError(t, err)
	lim, err := reg.Get("euw1")
	require.NoError(t, err)

	rw, ok := lim.(*RollingWindow)
	require.True(t, ok)
	assert.Equal(t, []Window{{20, time.Second}, {100, 2 * time.Minute}}, rw.Windows())

	rl.Backend = "carrier-pigeon"
	_, err = NewRegistryFromConfig(rl)
	assert.Error(t, err)
}

func TestMethodLimiter(t *testing.T) {
	ml := NewMethodLimiter(map[string]config.MethodLimit{
		"match_ids": {Requests: 1, Per: time.Hour},
	})

	require.NoError(t, ml.Wait(context.Background(), "americas", "match_ids"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, ml.Wait(ctx, "americas", "match_ids"), "second call in the hour should not fit")

	// Other hosts and unlimited kinds are independent
	assert.NoError(t, ml.Wait(context.Background(), "europe", "match_ids"))
	assert.NoError(t, ml.Wait(ctx, "americas", "match_detail"))

	var nilLimiter *MethodLimiter
	assert.NoError(t, nilLimiter.Wait(context.Background(), "kr", "match_ids"))
}

func TestRedisWindow(t *testing.T) {
	addr := os.Getenv("LADDERHARVEST_TEST_REDIS")
	if addr == "" {
		t.Skip("LADDERHARVEST_TEST_REDIS not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	key := "ladderharvest:test:" + uuid.NewString()
	defer rdb.Del(context.Background(), key)

	rw, err := NewRedisWindow(rdb, key, []Window{
		{Limit: 3, Duration: 500 * time.Millisecond},
		{Limit: 4, Duration: 5 * time.Second},
	})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, rw.Acquire(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond, "fourth request waits for the short window")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rw.Acquire(ctx), context.DeadlineExceeded, "long window is full")
}
