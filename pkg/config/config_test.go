package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Riot.APIKey = "RGAPI-test"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 20, cfg.RateLimit.ShortRequests)
	assert.Equal(t, time.Second, cfg.RateLimit.ShortWindow)
	assert.Equal(t, 100, cfg.RateLimit.LongRequests)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.LongWindow)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)

	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 3*time.Minute, cfg.Retry.MaxDelay)

	assert.Equal(t, 30*time.Minute, cfg.Ladder.IdleInterval)
	assert.Equal(t, []string{"CHALLENGER", "GRANDMASTER", "MASTER"}, cfg.Ladder.HighTiers)
	assert.Len(t, cfg.Ladder.Tiers, 7)
	assert.Equal(t, []string{"I", "II", "III", "IV"}, cfg.Ladder.Divisions)

	assert.Equal(t, 15*time.Second, cfg.Match.BootstrapPoll)
	assert.Equal(t, 100, cfg.Match.PageSize)
	assert.Equal(t, 420, cfg.Match.QueueID)

	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, []string{"americas", "asia", "europe", "sea"}, cfg.RegionNames())
	assert.Equal(t, []string{"kr", "jp1"}, cfg.Regions["asia"])
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RIOT_API_KEY", "RGAPI-env")
	t.Setenv("CONNECTION_STRING", "postgres://legacy")
	t.Setenv("LADDERHARVEST_DATABASE_DSN", "postgres://prefixed")
	t.Setenv("LADDERHARVEST_RATE_SHORT", "500")
	t.Setenv("LADDERHARVEST_RATE_LONG", "30000")
	t.Setenv("LADDERHARVEST_RATE_BACKEND", "redis")
	t.Setenv("LADDERHARVEST_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "RGAPI-env", cfg.Riot.APIKey)
	assert.Equal(t, "postgres://prefixed", cfg.Database.DSN)
	assert.Equal(t, 500, cfg.RateLimit.ShortRequests)
	assert.Equal(t, 30000, cfg.RateLimit.LongRequests)
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("LADDERHARVEST_RATE_SHORT", "lots")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LADDERHARVEST_RATE_SHORT")
	assert.Equal(t, 20, cfg.RateLimit.ShortRequests)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ladderharvest.yaml")
	content := `
riot:
  api_key: RGAPI-file
rate_limit:
  short_requests: 50
  long_window: 10m
ladder:
  idle_interval: 5m
match:
  start_time: 2025-01-01T00:00:00Z
regions:
  europe: [euw1]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "RGAPI-file", cfg.Riot.APIKey)
	assert.Equal(t, 50, cfg.RateLimit.ShortRequests)
	assert.Equal(t, 100, cfg.RateLimit.LongRequests)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.LongWindow)
	assert.Equal(t, 5*time.Minute, cfg.Ladder.IdleInterval)
	assert.Equal(t, 2025, cfg.Match.StartTime.Year())
	assert.Equal(t, map[string][]string{"europe": {"euw1"}}, cfg.Regions)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.Riot.APIKey = "" },
			wantErr: "riot API key is required",
		},
		{
			name:    "zero short window",
			mutate:  func(c *Config) { c.RateLimit.ShortWindow = 0 },
			wantErr: "rate limit windows must be positive",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.RateLimit.Backend = "etcd" },
			wantErr: "unknown rate limit backend",
		},
		{
			name:    "page size over api maximum",
			mutate:  func(c *Config) { c.Match.PageSize = 250 },
			wantErr: "match page size",
		},
		{
			name:    "shard in two regions",
			mutate:  func(c *Config) { c.Regions["sea"] = append(c.Regions["sea"], "kr") },
			wantErr: "shard kr is mapped to both",
		},
		{
			name:    "no regions",
			mutate:  func(c *Config) { c.Regions = nil },
			wantErr: "at least one region is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Riot.APIKey = ""
	cfg.Database.DSN = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), "\n")+1)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := validConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"dsn":       "postgres://flag",
		"log-level": "warn",
		"regions":   []string{"EUROPE", "atlantis"},
	})

	assert.Equal(t, "postgres://flag", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, []string{"europe"}, cfg.RegionNames())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := validConfig()
	cfg.Ladder.IdleInterval = 45 * time.Minute

	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 45*time.Minute, loaded.Ladder.IdleInterval)
	assert.Equal(t, cfg.Regions, loaded.Regions)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ladderharvest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\ndatabase:\n  dsn: file.db\n"), 0644))
	t.Setenv("LADDERHARVEST_LOG_LEVEL", "warn")

	cfg, err := Load(path, map[string]interface{}{"log-level": "debug"})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "file.db", cfg.Database.DSN)
}
