package harvester

import (
	"context"
	"errors"
	"testing"
	"time"

	"ladderharvest/pkg/checkpoint"
	errs "ladderharvest/pkg/errors"
	"ladderharvest/pkg/logger"
	"ladderharvest/pkg/riot"
	"ladderharvest/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLadderWorker(api LadderAPI, store storage.Gateway, log logger.Logger, opts ...LadderOption) *LadderWorker {
	return NewLadderWorker("americas", "na1", api, store, testLadderConfig(), "RANKED_SOLO_5x5", log, opts...)
}

func TestLadderBootstrapSeedsExactlyOnePlayer(t *testing.T) {
	api := newFakeAPI()
	api.setPages("CHALLENGER", "I",
		[]riot.LeagueEntry{entry("P", "CHALLENGER", "I", 1500), entry("Q", "CHALLENGER", "I", 1400)},
		[]riot.LeagueEntry{entry("R", "CHALLENGER", "I", 1300)},
	)
	store := storage.NewMemory()
	ctx := context.Background()

	summary, err := newTestLadderWorker(api, store, logger.NewTestLogger()).RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Seeded)

	players, err := store.ListPlayers(ctx, "americas")
	require.NoError(t, err)
	require.Len(t, players, 1, "exactly one bootstrap player")
	assert.Equal(t, "P", players[0].PUUID)
	assert.Equal(t, "na1", players[0].Platform)
	assert.True(t, players[0].LastFetch.IsZero())

	// Every entry still gets a rating
	assert.Equal(t, 3, summary.Written)
	assert.Equal(t, 3, summary.Entries)
}

func TestLadderNoSeedWhenPlayersExist(t *testing.T) {
	api := newFakeAPI()
	api.setPages("CHALLENGER", "I", []riot.LeagueEntry{entry("P", "CHALLENGER", "I", 1500)})
	store := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.UpsertPlayer(ctx, storage.Player{PUUID: "existing", Region: "americas", Platform: "br1"}))

	summary, err := newTestLadderWorker(api, store, logger.NewNopLogger()).RunCycle(ctx)
	require.NoError(t, err)
	assert.False(t, summary.Seeded)

	players, err := store.ListPlayers(ctx, "americas")
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "existing", players[0].PUUID)
}

func TestLadderBootstrapChecksEveryCycle(t *testing.T) {
	api := newFakeAPI()
	api.setPages("CHALLENGER", "I", []riot.LeagueEntry{entry("P", "CHALLENGER", "I", 1500)})
	ctx := context.Background()

	w := newTestLadderWorker(api, storage.NewMemory(), logger.NewNopLogger())
	first, err := w.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, first.Seeded)

	// A cleared store is seeded again on the next cycle
	w.store = storage.NewMemory()
	second, err := w.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, second.Seeded)
}

func TestLadderBootstrapResolvesSummonerID(t *testing.T) {
	api := newFakeAPI()
	noPUUID := entry("", "CHALLENGER", "I", 1500)
	noPUUID.SummonerID = "enc-1"
	api.setPages("CHALLENGER", "I", []riot.LeagueEntry{noPUUID})
	api.summoners["enc-1"] = "resolved-puuid"
	store := storage.NewMemory()
	ctx := context.Background()

	_, err := newTestLadderWorker(api, store, logger.NewNopLogger()).RunCycle(ctx)
	require.NoError(t, err)

	players, err := store.ListPlayers(ctx, "americas")
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "resolved-puuid", players[0].PUUID)
	assert.Equal(t, "enc-1", players[0].SummonerID)
}

func TestLadderRatingWrittenOnlyOnChange(t *testing.T) {
	api := newFakeAPI()
	store := storage.NewMemory()
	ctx := context.Background()
	w := newTestLadderWorker(api, store, logger.NewNopLogger())

	var written []int
	for _, lp := range []int{40, 40, 41} {
		api.setPages("GOLD", "II", []riot.LeagueEntry{entry("P", "GOLD", "II", lp)})
		summary, err := w.RunCycle(ctx)
		require.NoError(t, err)
		written = append(written, summary.Written)
	}

	assert.Equal(t, []int{1, 0, 1}, written)
	assert.Len(t, store.RatingHistory("P"), 2)

	r, err := store.GetRating(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 41, r.LeaguePoints)
	assert.Equal(t, "americas", r.Region)
	assert.Equal(t, "na1", r.Platform)
}

func TestLadderMalformedEntriesSkipped(t *testing.T) {
	api := newFakeAPI()
	log := logger.NewTestLogger()
	store := storage.NewMemory()

	noID := entry("", "GOLD", "I", 10)
	noID.SummonerID = ""
	noRank := entry("X", "GOLD", "", 10)
	api.setPages("GOLD", "I", []riot.LeagueEntry{noID, entry("OK", "GOLD", "I", 10), noRank})

	summary, err := newTestLadderWorker(api, store, log).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, summary.Written)
	assert.Equal(t, 2, log.CountMessages("Malformed record skipped"))

	msg, ok := log.FindMessage("Malformed record skipped")
	require.True(t, ok)
	assert.Equal(t, "ladder_entry", msg.Fields["record"])
}

func TestLadderFailedPageAbandonsDivisionOnly(t *testing.T) {
	api := newFakeAPI()
	api.setPages("GOLD", "I",
		[]riot.LeagueEntry{entry("A", "GOLD", "I", 1)},
		[]riot.LeagueEntry{entry("B", "GOLD", "I", 2)},
		[]riot.LeagueEntry{entry("C", "GOLD", "I", 3)},
	)
	api.setPages("GOLD", "II", []riot.LeagueEntry{entry("D", "GOLD", "II", 4)})
	api.failPage("GOLD", "I", 2, errs.New(errs.ErrorTypeServerError, 503, "unavailable"))

	store := storage.NewMemory()
	summary, err := newTestLadderWorker(api, store, logger.NewNopLogger()).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedPages)

	_, err = store.GetRating(context.Background(), "C")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "rest of the division is abandoned")
	_, err = store.GetRating(context.Background(), "D")
	assert.NoError(t, err, "next division still crawled")
}

func TestLadderAuthErrorIsFatal(t *testing.T) {
	api := newFakeAPI()
	api.failPage("CHALLENGER", "I", 1, errs.New(errs.ErrorTypeAuth, 401, "bad key"))

	w := newTestLadderWorker(api, storage.NewMemory(), logger.NewNopLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := w.Run(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, StateStopped, w.State())
	assert.Equal(t, 1, api.callCount("CHALLENGER/I/"))
}

func TestLadderRunStopsOnCancel(t *testing.T) {
	api := newFakeAPI()
	w := newTestLadderWorker(api, storage.NewMemory(), logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("ladder worker did not stop after cancel")
	}
	assert.Greater(t, api.callCount("CHALLENGER/I/"), 1, "several cycles ran")
}

func TestLadderApexSource(t *testing.T) {
	api := newFakeAPI()
	api.apex["CHALLENGER"] = &riot.LeagueList{
		Tier:    "CHALLENGER",
		Entries: []riot.LeagueEntry{{PUUID: "A", Tier: "CHALLENGER", Rank: "I", LeaguePoints: 900}},
	}
	cfg := testLadderConfig()
	cfg.HighTierSource = "apex"
	cfg.Tiers = nil
	store := storage.NewMemory()

	w := NewLadderWorker("americas", "na1", api, store, cfg, "RANKED_SOLO_5x5", logger.NewNopLogger())
	summary, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Written)
	assert.Equal(t, 1, api.callCount("apex/"))
	assert.Equal(t, 0, api.callCount("CHALLENGER/I/"))
}

func TestLadderCheckpointResume(t *testing.T) {
	api := newFakeAPI()
	api.setPages("CHALLENGER", "I", []riot.LeagueEntry{entry("A", "CHALLENGER", "I", 1)})
	api.setPages("GOLD", "I",
		[]riot.LeagueEntry{entry("B", "GOLD", "I", 1)},
		[]riot.LeagueEntry{entry("C", "GOLD", "I", 2)},
	)
	api.setPages("GOLD", "II", []riot.LeagueEntry{entry("D", "GOLD", "II", 3)})

	mgr, err := checkpoint.NewManager(t.TempDir(), "na1", logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, mgr.Save(&checkpoint.Cursor{Shard: "na1", Tier: "GOLD", Division: "I", Page: 1}))

	store := storage.NewMemory()
	w := newTestLadderWorker(api, store, logger.NewNopLogger(), WithCheckpoint(mgr))

	summary, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Resumed)

	assert.Equal(t, 0, api.callCount("CHALLENGER/I/"), "completed steps are not re-read")
	assert.Equal(t, 0, api.callCount("GOLD/I/1"))
	assert.Equal(t, 1, api.callCount("GOLD/I/2"))
	assert.Equal(t, 1, api.callCount("GOLD/II/1"))
	assert.False(t, mgr.Exists(), "a completed cycle clears the checkpoint")

	// The next cycle starts from the top
	_, err = w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, api.callCount("CHALLENGER/I/1"))
}

func TestLadderCheckpointWrittenPerPage(t *testing.T) {
	api := newFakeAPI()
	api.setPages("GOLD", "I", []riot.LeagueEntry{entry("B", "GOLD", "I", 1)})

	mgr, err := checkpoint.NewManager(t.TempDir(), "na1", logger.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	store := &cancellingStore{Memory: storage.NewMemory(), cancelOn: "B", cancel: cancel}
	w := newTestLadderWorker(api, store, logger.NewNopLogger(), WithCheckpoint(mgr))

	_, err = w.RunCycle(ctx)
	require.Error(t, err)

	cursor, err := mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, cursor, "interrupted cycle leaves a cursor")
	assert.Equal(t, "GOLD", cursor.Tier)
	assert.Equal(t, "I", cursor.Division)
	assert.Equal(t, 1, cursor.Page)
}

// cancellingStore cancels the cycle after storing a given player's rating
type cancellingStore struct {
	*storage.Memory
	cancelOn string
	cancel   context.CancelFunc
}

func (s *cancellingStore) UpsertRatingIfChanged(ctx context.Context, r storage.Rating) (bool, error) {
	written, err := s.Memory.UpsertRatingIfChanged(ctx, r)
	if r.PlayerID == s.cancelOn {
		s.cancel()
	}
	return written, err
}

func TestLadderBootstrapSkipsPlayerOfAnotherRegion(t *testing.T) {
	api := newFakeAPI()
	api.setPages("CHALLENGER", "I", []riot.LeagueEntry{entry("moved", "CHALLENGER", "I", 1500), entry("local", "CHALLENGER", "I", 1400)})
	store := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.UpsertPlayer(ctx, storage.Player{PUUID: "moved", Region: "europe", Platform: "euw1"}))

	w := newTestLadderWorker(api, store, logger.NewNopLogger())
	summary, err := w.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Seeded)

	players, err := store.ListPlayers(ctx, "americas")
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "local", players[0].PUUID)

	// The known player stays where it was found first
	players, err = store.ListPlayers(ctx, "europe")
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "moved", players[0].PUUID)

	second, err := w.RunCycle(ctx)
	require.NoError(t, err)
	assert.False(t, second.Seeded, "a seeded region is not seeded again")
}

func TestLadderBootstrapNotReportedWithoutRegionPlayer(t *testing.T) {
	api := newFakeAPI()
	api.setPages("CHALLENGER", "I", []riot.LeagueEntry{entry("moved", "CHALLENGER", "I", 1500)})
	store := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.UpsertPlayer(ctx, storage.Player{PUUID: "moved", Region: "europe", Platform: "euw1"}))

	summary, err := newTestLadderWorker(api, store, logger.NewNopLogger()).RunCycle(ctx)
	require.NoError(t, err)
	assert.False(t, summary.Seeded)

	exists, err := store.PlayersExistForRegion(ctx, "americas")
	require.NoError(t, err)
	assert.False(t, exists)
}
