package harvester

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"ladderharvest/pkg/checkpoint"
	"ladderharvest/pkg/config"
	errs "ladderharvest/pkg/errors"
	"ladderharvest/pkg/logger"
	"ladderharvest/pkg/retry"
	"ladderharvest/pkg/riot"
	"ladderharvest/pkg/storage"
)

// State is the current phase of a worker
type State string

const (
	StateBootstrapCheck      State = "bootstrap_check"
	StateFetchHighTier       State = "fetch_high_tier"
	StateFetchRemainingTiers State = "fetch_remaining_tiers"
	StateIdle                State = "idle"
	StateWaitForBootstrap    State = "wait_for_bootstrap"
	StateFetchLoop           State = "fetch_loop"
	StateStopped             State = "stopped"
)

// ladderStep is one tier/division crawled to exhaustion
type ladderStep struct {
	tier     string
	division string
	high     bool
}

// LadderSummary reports one ladder cycle
type LadderSummary struct {
	Pages       int
	Entries     int
	Written     int
	Unchanged   int
	Skipped     int
	FailedPages int
	StoreErrors int
	Seeded      bool
	Resumed     bool
	Duration    time.Duration
}

// LadderWorker crawls the ranked ladder of one shard and records rating changes.
// It also seeds the shard's region with a first player when the region has none.
type LadderWorker struct {
	region string
	shard  string

	api        LadderAPI
	store      storage.Gateway
	cfg        config.LadderConfig
	queue      string
	checkpoint *checkpoint.Manager
	logger     logger.Logger
	now        func() time.Time
	state      atomic.Value
}

// LadderOption configures a LadderWorker
type LadderOption func(*LadderWorker)

// WithCheckpoint enables resumable cycles
func WithCheckpoint(m *checkpoint.Manager) LadderOption {
	return func(w *LadderWorker) { w.checkpoint = m }
}

// WithLadderClock replaces the clock used for rating timestamps
func WithLadderClock(now func() time.Time) LadderOption {
	return func(w *LadderWorker) { w.now = now }
}

// NewLadderWorker creates a worker for shard, which belongs to region
func NewLadderWorker(region, shard string, api LadderAPI, store storage.Gateway, cfg config.LadderConfig, queue string, log logger.Logger, opts ...LadderOption) *LadderWorker {
	if log == nil {
		log = logger.GetLogger()
	}
	w := &LadderWorker{
		region: region,
		shard:  shard,
		api:    api,
		store:  store,
		cfg:    cfg,
		queue:  queue,
		logger: log.WithFields(map[string]interface{}{
			"component": "ladder_worker",
			"region":    region,
			"shard":     shard,
		}),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.setState(StateBootstrapCheck)
	return w
}

// Region returns the macro-region this worker seeds
func (w *LadderWorker) Region() string { return w.region }

// Shard returns the shard this worker crawls
func (w *LadderWorker) Shard() string { return w.shard }

// State returns the worker's current phase
func (w *LadderWorker) State() State {
	return w.state.Load().(State)
}

func (w *LadderWorker) setState(s State) {
	w.state.Store(s)
}

// Run crawls the ladder forever, idling between cycles. It returns when ctx
// is cancelled or a fatal error occurs.
func (w *LadderWorker) Run(ctx context.Context) error {
	logger.LogComponentStart(w.logger, "ladder_worker", map[string]interface{}{
		"idle_interval":    w.cfg.IdleInterval.String(),
		"high_tier_source": w.highTierSource(),
		"checkpoint":       w.checkpoint != nil,
	})
	defer w.setState(StateStopped)

	for {
		summary, err := w.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.LogComponentStop(w.logger, "ladder_worker", "context cancelled")
				return ctx.Err()
			}
			if errs.IsFatal(err) {
				w.logger.WithError(err).Error("Ladder worker stopping on fatal error")
				return err
			}
			w.logger.WithError(err).Warn("Ladder cycle failed")
		} else {
			w.logSummary(summary)
		}

		w.setState(StateIdle)
		if err := retry.Wait(ctx, w.cfg.IdleInterval); err != nil {
			logger.LogComponentStop(w.logger, "ladder_worker", "context cancelled")
			return err
		}
	}
}

// RunCycle performs one BOOTSTRAP_CHECK, FETCH_HIGH_TIER, FETCH_REMAINING_TIERS pass
func (w *LadderWorker) RunCycle(ctx context.Context) (summary LadderSummary, err error) {
	start := time.Now()
	defer func() { summary.Duration = time.Since(start) }()

	w.setState(StateBootstrapCheck)
	exists, err := w.store.PlayersExistForRegion(ctx, w.region)
	if err != nil {
		return summary, err
	}
	needSeed := !exists
	if needSeed {
		w.logger.Info("Region has no players, bootstrap needed")
	}

	steps := w.steps()
	resumeIdx, resumePage, cycleStarted := w.resumePoint(steps)
	summary.Resumed = resumeIdx > 0 || resumePage > 0

	for i, step := range steps {
		if i < resumeIdx {
			continue
		}
		if step.high {
			w.setState(StateFetchHighTier)
		} else {
			w.setState(StateFetchRemainingTiers)
		}

		firstPage := 1
		if i == resumeIdx {
			firstPage = resumePage + 1
		}

		if err := w.crawlStep(ctx, step, firstPage, cycleStarted, &needSeed, &summary); err != nil {
			return summary, err
		}
	}

	if w.checkpoint != nil {
		if err := w.checkpoint.Delete(); err != nil {
			w.logger.WithError(err).Warn("Failed to clear ladder checkpoint")
		}
	}
	return summary, nil
}

// crawlStep pages through one tier/division until an empty page. A failed page
// abandons the step; only fatal and cancellation errors are returned.
func (w *LadderWorker) crawlStep(ctx context.Context, step ladderStep, page int, cycleStarted time.Time, needSeed *bool, summary *LadderSummary) error {
	if step.high && w.highTierSource() == "apex" {
		if page > 1 {
			return nil
		}
		list, err := w.api.ApexLeague(ctx, w.shard, step.tier)
		if err != nil {
			return w.pageFailed(ctx, step, 1, err, summary)
		}
		return w.handlePage(ctx, step, 1, list.Entries, cycleStarted, needSeed, summary)
	}

	for ; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var entries []riot.LeagueEntry
		var err error
		if step.high {
			entries, err = w.api.HighTierEntries(ctx, w.shard, step.tier, page)
		} else {
			entries, err = w.api.LeagueEntries(ctx, w.shard, step.tier, step.division, page)
		}
		if err != nil {
			return w.pageFailed(ctx, step, page, err, summary)
		}
		if len(entries) == 0 {
			return nil
		}

		if err := w.handlePage(ctx, step, page, entries, cycleStarted, needSeed, summary); err != nil {
			return err
		}
	}
}

func (w *LadderWorker) pageFailed(ctx context.Context, step ladderStep, page int, err error, summary *LadderSummary) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errs.IsFatal(err) {
		return err
	}
	summary.FailedPages++
	w.logger.WithError(err).WithFields(map[string]interface{}{
		"tier":     step.tier,
		"division": step.division,
		"page":     page,
	}).Warn("Ladder page failed, abandoning division for this cycle")
	return nil
}

func (w *LadderWorker) handlePage(ctx context.Context, step ladderStep, page int, entries []riot.LeagueEntry, cycleStarted time.Time, needSeed *bool, summary *LadderSummary) error {
	summary.Pages++
	summary.Entries += len(entries)

	if *needSeed {
		seeded, err := w.seed(ctx, entries)
		if err != nil {
			return err
		}
		if seeded {
			*needSeed = false
			summary.Seeded = true
		}
	}

	fetchedAt := w.now()
	for _, e := range entries {
		// Entries from the paged apex endpoint carry the tier; whole-league entries were filled by the client
		if e.Tier == "" {
			e.Tier = step.tier
		}
		rating, err := RatingFromEntry(e, w.region, w.shard, w.queue, fetchedAt)
		if err != nil {
			summary.Skipped++
			logger.LogSkippedRecord(w.logger, "ladder_entry", err.Error(), map[string]interface{}{
				"tier":     step.tier,
				"division": step.division,
				"page":     page,
			})
			continue
		}

		written, err := w.store.UpsertRatingIfChanged(ctx, rating)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			summary.StoreErrors++
			w.logger.WithError(err).WithField("player_id", rating.PlayerID).Warn("Failed to store rating")
			continue
		}
		if written {
			summary.Written++
		} else {
			summary.Unchanged++
		}
	}

	if w.checkpoint != nil {
		err := w.checkpoint.Save(&checkpoint.Cursor{
			Shard:        w.shard,
			Tier:         step.tier,
			Division:     step.division,
			Page:         page,
			Entries:      summary.Entries,
			CycleStarted: cycleStarted,
		})
		if err != nil {
			w.logger.WithError(err).Warn("Failed to save ladder checkpoint")
		}
	}
	return nil
}

// seed inserts the first resolvable entry of the page as a player of the region
func (w *LadderWorker) seed(ctx context.Context, entries []riot.LeagueEntry) (bool, error) {
	for _, e := range entries {
		puuid := e.PUUID
		if puuid == "" {
			if e.SummonerID == "" {
				continue
			}
			summoner, err := w.api.SummonerByID(ctx, w.shard, e.SummonerID)
			if err != nil {
				if ctx.Err() != nil {
					return false, ctx.Err()
				}
				if errs.IsFatal(err) {
					return false, err
				}
				w.logger.WithError(err).WithField("summoner_id", e.SummonerID).Warn("Could not resolve bootstrap candidate")
				continue
			}
			puuid = summoner.PUUID
			if puuid == "" {
				continue
			}
		}

		player := storage.Player{
			PUUID:      puuid,
			SummonerID: e.SummonerID,
			Region:     w.region,
			Platform:   w.shard,
		}
		if err := w.store.UpsertPlayer(ctx, player); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, err
		}

		// An upsert never moves a known player, so a candidate already stored under
		// another region leaves this one empty
		seeded, err := w.store.PlayersExistForRegion(ctx, w.region)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, err
		}
		if !seeded {
			w.logger.WithField("puuid", puuid).Debug("Bootstrap candidate belongs to another region")
			continue
		}

		w.logger.InfoWithFields("Bootstrap player seeded", map[string]interface{}{
			"puuid": puuid,
			"tier":  e.Tier,
		})
		return true, nil
	}
	return false, nil
}

// steps lists the tier/division pairs of one cycle in crawl order
func (w *LadderWorker) steps() []ladderStep {
	var steps []ladderStep
	for _, tier := range w.cfg.HighTiers {
		steps = append(steps, ladderStep{tier: strings.ToUpper(tier), division: "I", high: true})
	}
	for _, tier := range w.cfg.Tiers {
		for _, div := range w.cfg.Divisions {
			steps = append(steps, ladderStep{tier: strings.ToUpper(tier), division: strings.ToUpper(div)})
		}
	}
	return steps
}

// resumePoint returns the step index and last completed page recorded by the checkpoint
func (w *LadderWorker) resumePoint(steps []ladderStep) (int, int, time.Time) {
	now := w.now()
	if w.checkpoint == nil {
		return 0, 0, now
	}

	cursor, err := w.checkpoint.Load()
	if err != nil {
		w.logger.WithError(err).Warn("Failed to load ladder checkpoint, starting a fresh cycle")
		return 0, 0, now
	}
	if cursor == nil || cursor.Shard != w.shard {
		return 0, 0, now
	}

	for i, s := range steps {
		if s.tier == cursor.Tier && s.division == cursor.Division {
			w.logger.InfoWithFields("Resuming ladder cycle", map[string]interface{}{
				"tier":     cursor.Tier,
				"division": cursor.Division,
				"page":     cursor.Page,
			})
			return i, cursor.Page, cursor.CycleStarted
		}
	}

	w.logger.Warn("Ladder checkpoint does not match configured tiers, starting a fresh cycle")
	return 0, 0, now
}

func (w *LadderWorker) highTierSource() string {
	if w.cfg.HighTierSource == "" {
		return "paged"
	}
	return w.cfg.HighTierSource
}

func (w *LadderWorker) logSummary(s LadderSummary) {
	logger.LogMetrics(w.logger, "ladder_cycle", map[string]interface{}{
		"pages":        s.Pages,
		"entries":      s.Entries,
		"written":      s.Written,
		"unchanged":    s.Unchanged,
		"skipped":      s.Skipped,
		"failed_pages": s.FailedPages,
		"store_errors": s.StoreErrors,
		"seeded":       s.Seeded,
		"resumed":      s.Resumed,
		"duration":     s.Duration.String(),
	})
}
