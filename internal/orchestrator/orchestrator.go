package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ladderharvest/pkg/checkpoint"
	"ladderharvest/pkg/config"
	errs "ladderharvest/pkg/errors"
	"ladderharvest/pkg/harvester"
	"ladderharvest/pkg/logger"
	"ladderharvest/pkg/retry"
	"ladderharvest/pkg/storage"
)

// API is everything the workers ask of the remote service
type API interface {
	harvester.LadderAPI
	harvester.MatchAPI
}

// Worker is a long-running unit the orchestrator supervises
type Worker interface {
	Run(ctx context.Context) error
}

// unit is one supervised worker and its bookkeeping
type unit struct {
	name     string
	region   string
	shard    string
	worker   Worker
	restarts atomic.Int64
	running  atomic.Bool
}

// WorkerStatus is a point-in-time view of one supervised worker
type WorkerStatus struct {
	Name     string
	Region   string
	Shard    string
	Running  bool
	Restarts int64
}

// Orchestrator runs one MatchWorker per region and one LadderWorker per shard
// of that region, restarting any worker that crashes.
type Orchestrator struct {
	regions map[string][]string
	matches map[string]*unit
	ladders map[string][]*unit

	backoff retry.BackoffStrategy
	logger  logger.Logger

	mu      sync.Mutex
	started bool
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRestartBackoff replaces the delay schedule between worker restarts
func WithRestartBackoff(b retry.BackoffStrategy) Option {
	return func(o *Orchestrator) { o.backoff = b }
}

// New builds every worker for cfg.Regions. Ladder cursors are kept under
// cfg.Ladder.CheckpointDir when it is set.
func New(cfg *config.Config, api API, store storage.Gateway, log logger.Logger, opts ...Option) (*Orchestrator, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if len(cfg.Regions) == 0 {
		return nil, errs.New(errs.ErrorTypeConfig, 0, "no regions configured")
	}

	o := &Orchestrator{
		regions: cfg.Regions,
		matches: make(map[string]*unit, len(cfg.Regions)),
		ladders: make(map[string][]*unit, len(cfg.Regions)),
		backoff: retry.DefaultExponentialBackoff(),
		logger:  log.WithField("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}

	for region, shards := range cfg.Regions {
		o.matches[region] = &unit{
			name:   "match/" + region,
			region: region,
			worker: harvester.NewMatchWorker(region, api, store, cfg.Match, log),
		}

		for _, shard := range shards {
			var ladderOpts []harvester.LadderOption
			if cfg.Ladder.CheckpointDir != "" {
				cp, err := checkpoint.NewManager(cfg.Ladder.CheckpointDir, shard, log)
				if err != nil {
					return nil, fmt.Errorf("checkpoint for %s: %w", shard, err)
				}
				ladderOpts = append(ladderOpts, harvester.WithCheckpoint(cp))
			}
			o.ladders[region] = append(o.ladders[region], &unit{
				name:   "ladder/" + shard,
				region: region,
				shard:  shard,
				worker: harvester.NewLadderWorker(region, shard, api, store, cfg.Ladder, cfg.Riot.Queue, log, ladderOpts...),
			})
		}
	}

	return o, nil
}

// Regions returns the configured regions in sorted order
func (o *Orchestrator) Regions() []string {
	regions := make([]string, 0, len(o.regions))
	for r := range o.regions {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions
}

// Status reports every supervised worker, match workers first within each region
func (o *Orchestrator) Status() []WorkerStatus {
	var out []WorkerStatus
	for _, region := range o.Regions() {
		units := append([]*unit{o.matches[region]}, o.ladders[region]...)
		for _, u := range units {
			out = append(out, WorkerStatus{
				Name:     u.name,
				Region:   u.region,
				Shard:    u.shard,
				Running:  u.running.Load(),
				Restarts: u.restarts.Load(),
			})
		}
	}
	return out
}

// Run starts every worker and blocks until ctx is cancelled or a worker
// returns a fatal error. Cancellation is a clean stop and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()

	regions := o.Regions()
	o.logger.InfoWithFields("Starting workers", map[string]interface{}{
		"regions": regions,
		"workers": len(o.Status()),
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, region := range regions {
		g.Go(func() error {
			return o.runRegion(gctx, region)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		o.logger.WithError(err).Error("Stopping all workers on fatal error")
		return err
	}

	o.logger.Info("All workers stopped")
	return nil
}

// runRegion runs the region's match worker alongside its ladder workers
func (o *Orchestrator) runRegion(ctx context.Context, region string) error {
	g, gctx := errgroup.WithContext(ctx)

	match := o.matches[region]
	g.Go(func() error { return o.supervise(gctx, match) })

	for _, ladder := range o.ladders[region] {
		g.Go(func() error { return o.supervise(gctx, ladder) })
	}

	return g.Wait()
}

// supervise keeps u running until ctx ends or it fails fatally
func (o *Orchestrator) supervise(ctx context.Context, u *unit) error {
	log := o.logger.WithFields(map[string]interface{}{
		"worker": u.name,
		"region": u.region,
	})

	for {
		err := o.runOnce(ctx, u, log)

		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil && errs.IsFatal(err):
			return err
		}

		restarts := u.restarts.Add(1)
		delay := o.backoff.NextDelay(int(restarts))
		fields := map[string]interface{}{
			"restarts": restarts,
			"delay":    delay.String(),
		}
		if err != nil {
			log.WithError(err).WarnWithFields("Worker stopped unexpectedly, restarting", fields)
		} else {
			log.WarnWithFields("Worker returned without error, restarting", fields)
		}

		if err := retry.Wait(ctx, delay); err != nil {
			return nil
		}
	}
}

// runOnce runs the worker, turning a panic into an error
func (o *Orchestrator) runOnce(ctx context.Context, u *unit, log logger.Logger) (err error) {
	u.running.Store(true)
	started := time.Now()
	defer func() {
		u.running.Store(false)
		if r := recover(); r != nil {
			log.ErrorWithFields("Worker panicked", map[string]interface{}{
				"panic":  fmt.Sprint(r),
				"uptime": time.Since(started).String(),
				"stack":  string(debug.Stack()),
			})
			err = fmt.Errorf("worker %s panicked: %v", u.name, r)
		}
	}()

	return u.worker.Run(ctx)
}
