package harvester

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ladderharvest/pkg/config"
	"ladderharvest/pkg/riot"
)

// fakeAPI serves canned ladder pages and matches
type fakeAPI struct {
	mu sync.Mutex

	pages     map[string][][]riot.LeagueEntry
	pageErrs  map[string]error
	apex      map[string]*riot.LeagueList
	summoners map[string]string

	matchIDs    map[string][]string
	matchIDErrs map[string]error
	matches     map[string]*riot.Match
	matchErrs   map[string]error

	calls      []string
	sinceByKey map[string]time.Time
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages:       make(map[string][][]riot.LeagueEntry),
		pageErrs:    make(map[string]error),
		apex:        make(map[string]*riot.LeagueList),
		summoners:   make(map[string]string),
		matchIDs:    make(map[string][]string),
		matchIDErrs: make(map[string]error),
		matches:     make(map[string]*riot.Match),
		matchErrs:   make(map[string]error),
		sinceByKey:  make(map[string]time.Time),
	}
}

func (f *fakeAPI) setPages(tier, division string, pages ...[]riot.LeagueEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[tier+"/"+division] = pages
}

func (f *fakeAPI) failPage(tier, division string, page int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageErrs[fmt.Sprintf("%s/%s/%d", tier, division, page)] = err
}

func (f *fakeAPI) page(tier, division string, page int) ([]riot.LeagueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fmt.Sprintf("%s/%s/%d", tier, division, page))
	if err := f.pageErrs[fmt.Sprintf("%s/%s/%d", tier, division, page)]; err != nil {
		return nil, err
	}
	pages := f.pages[tier+"/"+division]
	if page-1 < len(pages) {
		return pages[page-1], nil
	}
	return nil, nil
}

func (f *fakeAPI) LeagueEntries(ctx context.Context, shard, tier, division string, page int) ([]riot.LeagueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.page(tier, division, page)
}

func (f *fakeAPI) HighTierEntries(ctx context.Context, shard, tier string, page int) ([]riot.LeagueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.page(tier, "I", page)
}

func (f *fakeAPI) ApexLeague(ctx context.Context, shard, tier string) (*riot.LeagueList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "apex/"+tier)
	if list, ok := f.apex[tier]; ok {
		return list, nil
	}
	return &riot.LeagueList{Tier: tier}, nil
}

func (f *fakeAPI) SummonerByID(ctx context.Context, shard, summonerID string) (*riot.Summoner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "summoner/"+summonerID)
	return &riot.Summoner{ID: summonerID, PUUID: f.summoners[summonerID]}, nil
}

func (f *fakeAPI) MatchIDs(ctx context.Context, region, puuid string, since time.Time, queueID, start, count int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fmt.Sprintf("ids/%s/%d", puuid, start))
	f.sinceByKey[puuid] = since
	if err := f.matchIDErrs[puuid]; err != nil {
		return nil, err
	}
	ids := f.matchIDs[puuid]
	if start >= len(ids) {
		return []string{}, nil
	}
	end := start + count
	if end > len(ids) {
		end = len(ids)
	}
	return ids[start:end], nil
}

func (f *fakeAPI) Match(ctx context.Context, region, matchID string) (*riot.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, "match/"+matchID)
	if err := f.matchErrs[matchID]; err != nil {
		return nil, err
	}
	m, ok := f.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("no canned match %s", matchID)
	}
	return m, nil
}

func (f *fakeAPI) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeAPI) since(puuid string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinceByKey[puuid]
}

func entry(puuid, tier, rank string, lp int) riot.LeagueEntry {
	return riot.LeagueEntry{
		PUUID:        puuid,
		SummonerID:   "sum-" + puuid,
		Tier:         tier,
		Rank:         rank,
		LeaguePoints: lp,
		Wins:         10,
		Losses:       9,
	}
}

func testLadderConfig() config.LadderConfig {
	return config.LadderConfig{
		IdleInterval:   10 * time.Millisecond,
		HighTiers:      []string{"CHALLENGER"},
		Tiers:          []string{"GOLD"},
		Divisions:      []string{"I", "II"},
		HighTierSource: "paged",
	}
}

func testMatchConfig() config.MatchConfig {
	return config.MatchConfig{
		BootstrapPoll: 10 * time.Millisecond,
		PassDelay:     10 * time.Millisecond,
		PageSize:      100,
		QueueID:       420,
		StartTime:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

// newMatch builds a finished match where the first team wins
func newMatch(id string, start time.Time, puuids ...string) *riot.Match {
	m := &riot.Match{
		Metadata: riot.MatchMetadata{MatchID: id, Participants: puuids},
		Info: riot.MatchInfo{
			GameCreation:    start.UnixMilli(),
			GameDuration:    1800,
			GameVersion:     "14.10.1",
			PlatformID:      "NA1",
			QueueID:         420,
			EndOfGameResult: "GameComplete",
			Teams:           []riot.Team{{TeamID: 100, Win: true}, {TeamID: 200, Win: false}},
		},
	}
	for i, p := range puuids {
		team := 100
		if i >= len(puuids)/2 && len(puuids) > 1 {
			team = 200
		}
		m.Info.Participants = append(m.Info.Participants, riot.Participant{
			PUUID:                p,
			RiotIDGameName:       "name-" + p,
			RiotIDTagline:        "NA1",
			TeamID:               team,
			Win:                  team == 100,
			TotalMinionsKilled:   180,
			NeutralMinionsKilled: 30,
		})
	}
	return m
}
