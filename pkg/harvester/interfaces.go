package harvester

import (
	"context"
	"time"

	"ladderharvest/pkg/riot"
)

// LadderAPI defines the ladder and summoner operations a LadderWorker needs
type LadderAPI interface {
	LeagueEntries(ctx context.Context, shard, tier, division string, page int) ([]riot.LeagueEntry, error)
	HighTierEntries(ctx context.Context, shard, tier string, page int) ([]riot.LeagueEntry, error)
	ApexLeague(ctx context.Context, shard, tier string) (*riot.LeagueList, error)
	SummonerByID(ctx context.Context, shard, summonerID string) (*riot.Summoner, error)
}

// MatchAPI defines the match history operations a MatchWorker needs
type MatchAPI interface {
	MatchIDs(ctx context.Context, region, puuid string, since time.Time, queueID, start, count int) ([]string, error)
	Match(ctx context.Context, region, matchID string) (*riot.Match, error)
}

var (
	_ LadderAPI = (*riot.Client)(nil)
	_ MatchAPI  = (*riot.Client)(nil)
)
