package harvester

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"ladderharvest/pkg/config"
	errs "ladderharvest/pkg/errors"
	"ladderharvest/pkg/logger"
	"ladderharvest/pkg/retry"
	"ladderharvest/pkg/riot"
	"ladderharvest/pkg/storage"
)

// ErrNoPlayers is returned by RunPass when the region has no known players
var ErrNoPlayers = errors.New("no players in region")

// PassSummary reports one pass over a region's players
type PassSummary struct {
	Players       int
	FailedPlayers int
	MatchIDs      int
	Known         int
	Inserted      int
	Aborted       int
	Malformed     int
	FailedMatches int
	Participants  int
	Duration      time.Duration
}

// MatchWorker harvests the match history of every known player of one region
type MatchWorker struct {
	region string

	api    MatchAPI
	store  storage.Gateway
	cfg    config.MatchConfig
	logger logger.Logger
	state  atomic.Value
	passes atomic.Int64
}

// NewMatchWorker creates a worker for region
func NewMatchWorker(region string, api MatchAPI, store storage.Gateway, cfg config.MatchConfig, log logger.Logger) *MatchWorker {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.PageSize <= 0 || cfg.PageSize > riot.MaxMatchIDsPerPage {
		cfg.PageSize = riot.MaxMatchIDsPerPage
	}
	w := &MatchWorker{
		region: region,
		api:    api,
		store:  store,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{
			"component": "match_worker",
			"region":    region,
		}),
	}
	w.setState(StateWaitForBootstrap)
	return w
}

// Region returns the macro-region this worker harvests
func (w *MatchWorker) Region() string { return w.region }

// State returns the worker's current phase
func (w *MatchWorker) State() State {
	return w.state.Load().(State)
}

// Passes returns how many passes have completed
func (w *MatchWorker) Passes() int64 {
	return w.passes.Load()
}

func (w *MatchWorker) setState(s State) {
	w.state.Store(s)
}

// Run waits for the region to be bootstrapped and then harvests forever. It
// returns when ctx is cancelled or a fatal error occurs.
func (w *MatchWorker) Run(ctx context.Context) error {
	logger.LogComponentStart(w.logger, "match_worker", map[string]interface{}{
		"bootstrap_poll": w.cfg.BootstrapPoll.String(),
		"pass_delay":     w.cfg.PassDelay.String(),
		"queue_id":       w.cfg.QueueID,
	})
	defer w.setState(StateStopped)

	for {
		if err := w.WaitForBootstrap(ctx); err != nil {
			logger.LogComponentStop(w.logger, "match_worker", "context cancelled")
			return err
		}

		for {
			summary, err := w.RunPass(ctx)
			if errors.Is(err, ErrNoPlayers) {
				w.logger.Warn("Region lost all players, waiting for bootstrap")
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					logger.LogComponentStop(w.logger, "match_worker", "context cancelled")
					return ctx.Err()
				}
				if errs.IsFatal(err) {
					w.logger.WithError(err).Error("Match worker stopping on fatal error")
					return err
				}
				w.logger.WithError(err).Warn("Match pass failed")
			} else {
				w.logSummary(summary)
			}

			if err := retry.Wait(ctx, w.cfg.PassDelay); err != nil {
				logger.LogComponentStop(w.logger, "match_worker", "context cancelled")
				return err
			}
		}
	}
}

// WaitForBootstrap blocks until the region has at least one player
func (w *MatchWorker) WaitForBootstrap(ctx context.Context) error {
	w.setState(StateWaitForBootstrap)
	logged := false

	for {
		exists, err := w.store.PlayersExistForRegion(ctx, w.region)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.WithError(err).Warn("Bootstrap check failed")
		} else if exists {
			w.logger.Info("Region bootstrapped, starting match harvest")
			return nil
		}

		if !logged {
			w.logger.DebugWithFields("Waiting for bootstrap player", map[string]interface{}{
				"poll": w.cfg.BootstrapPoll.String(),
			})
			logged = true
		}
		if err := retry.Wait(ctx, w.cfg.BootstrapPoll); err != nil {
			return err
		}
	}
}

// RunPass harvests new matches of every player of the region once
func (w *MatchWorker) RunPass(ctx context.Context) (summary PassSummary, err error) {
	w.setState(StateFetchLoop)
	start := time.Now()
	defer func() { summary.Duration = time.Since(start) }()

	players, err := w.store.ListPlayers(ctx, w.region)
	if err != nil {
		return summary, err
	}
	if len(players) == 0 {
		return summary, ErrNoPlayers
	}

	for _, p := range players {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Players++
		if err := w.harvestPlayer(ctx, p, &summary); err != nil {
			return summary, err
		}
	}

	w.passes.Add(1)
	return summary, nil
}

// harvestPlayer stores the player's unseen matches and advances its last fetch.
// Only fatal and cancellation errors are returned.
func (w *MatchWorker) harvestPlayer(ctx context.Context, p storage.Player, summary *PassSummary) error {
	log := w.logger.WithField("puuid", p.PUUID)

	since := p.LastFetch
	if since.Before(w.cfg.StartTime) {
		since = w.cfg.StartTime
	}

	ids, err := w.listMatchIDs(ctx, p.PUUID, since)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errs.IsFatal(err) {
			return err
		}
		summary.FailedPlayers++
		log.WithError(err).Warn("Match id listing failed, player skipped")
		return nil
	}
	summary.MatchIDs += len(ids)

	var latest time.Time
	complete := true
	for _, id := range ids {
		start, ok, err := w.harvestMatch(ctx, id, summary)
		if err != nil {
			return err
		}
		if !ok {
			complete = false
			continue
		}
		if start.After(latest) {
			latest = start
		}
	}

	// A failed match must be listed again next pass, so last fetch only moves
	// when every id of the batch was settled
	if !complete || latest.IsZero() {
		return nil
	}
	if err := w.store.UpdatePlayerLastFetch(ctx, p.PUUID, latest); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("Failed to advance last fetch")
	}
	return nil
}

// harvestMatch settles one match id. ok is false when the match should be retried
// on a later pass. start is the match start when it is known, including matches
// stored earlier through another player; it is zero for malformed payloads.
func (w *MatchWorker) harvestMatch(ctx context.Context, id string, summary *PassSummary) (start time.Time, ok bool, err error) {
	log := w.logger.WithField("match_id", id)

	stored, exists, err := w.store.MatchStart(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return start, false, ctx.Err()
		}
		summary.FailedMatches++
		log.WithError(err).Warn("Match lookup failed")
		return start, false, nil
	}
	if exists {
		summary.Known++
		return stored, true, nil
	}

	m, err := w.api.Match(ctx, w.region, id)
	if err != nil {
		if ctx.Err() != nil {
			return start, false, ctx.Err()
		}
		if errs.IsFatal(err) {
			return start, false, err
		}
		if errs.Is(err, errs.ErrorTypeNotFound) || errs.Is(err, errs.ErrorTypeParsing) {
			summary.Malformed++
			logger.LogSkippedRecord(log, "match", err.Error(), nil)
			return start, true, nil
		}
		summary.FailedMatches++
		log.WithError(err).Warn("Match fetch failed")
		return start, false, nil
	}

	if m.Aborted() {
		summary.Aborted++
		log.Debug("Skipping aborted match")
		if m.Info.GameCreation > 0 {
			start = time.UnixMilli(m.Info.GameCreation).UTC()
		}
		return start, true, nil
	}

	record, err := TransformMatch(m, w.region)
	if err != nil {
		summary.Malformed++
		logger.LogSkippedRecord(log, "match", err.Error(), nil)
		return start, true, nil
	}

	for _, participant := range m.Info.Participants {
		player := playerFromParticipant(participant, w.region, m.Info.PlatformID)
		player.ProfileSeen = record.StartTime
		if err := w.store.UpsertPlayer(ctx, player); err != nil {
			if ctx.Err() != nil {
				return start, false, ctx.Err()
			}
			log.WithError(err).WithField("participant", participant.PUUID).Warn("Failed to store participant")
			continue
		}
		summary.Participants++
	}

	inserted, err := w.store.InsertMatch(ctx, record)
	if err != nil {
		if ctx.Err() != nil {
			return start, false, ctx.Err()
		}
		summary.FailedMatches++
		log.WithError(err).Warn("Failed to store match")
		return start, false, nil
	}
	if inserted {
		summary.Inserted++
	} else {
		summary.Known++
	}
	return record.StartTime, true, nil
}

// listMatchIDs pages through the player's match ids until a short page
func (w *MatchWorker) listMatchIDs(ctx context.Context, puuid string, since time.Time) ([]string, error) {
	var all []string
	for start := 0; ; start += w.cfg.PageSize {
		ids, err := w.api.MatchIDs(ctx, w.region, puuid, since, w.cfg.QueueID, start, w.cfg.PageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
		if len(ids) < w.cfg.PageSize {
			return all, nil
		}
	}
}

func (w *MatchWorker) logSummary(s PassSummary) {
	logger.LogMetrics(w.logger, "match_pass", map[string]interface{}{
		"players":        s.Players,
		"failed_players": s.FailedPlayers,
		"match_ids":      s.MatchIDs,
		"known":          s.Known,
		"inserted":       s.Inserted,
		"aborted":        s.Aborted,
		"malformed":      s.Malformed,
		"failed_matches": s.FailedMatches,
		"participants":   s.Participants,
		"duration":       s.Duration.String(),
	})
}
