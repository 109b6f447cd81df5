package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ladderharvest/pkg/storage"
)

func TestMaskDSN(t *testing.T) {
	tests := map[string]string{
		"postgres://harvest:s3cret@db:5432/ladder": "postgres://harvest:****@db:5432/ladder",
		"postgres://harvest@db/ladder":             "postgres://harvest@db/ladder",
		"./data/ladder.db":                         "./data/ladder.db",
		"memory":                                   "memory",
	}
	for in, want := range tests {
		assert.Equal(t, want, maskDSN(in), in)
	}
}

func TestStatusRows(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := statusRows([]storage.RegionStats{
		{Region: "europe", Players: 1234567, PlayersFetched: 1200, Ratings: 98000, Matches: 2500000, LatestMatch: now.Add(-3 * time.Hour)},
		{Region: "sea"},
	}, now)

	assert.Equal(t, []string{"europe", "1,234,567", "1,200", "98,000", "2,500,000", "3 hours ago"}, rows[0])
	assert.Equal(t, []string{"sea", "0", "0", "0", "0", "never"}, rows[1])
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"run"}, {"status"}, {"migrate"},
		{"config", "init"}, {"config", "show"}, {"config", "validate"},
		{"auth", "set-key"}, {"auth", "clear-key"}, {"auth", "show"}, {"auth", "guide"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if assert.NoError(t, err, path) {
			assert.Equal(t, path[len(path)-1], cmd.Name())
		}
	}
}
