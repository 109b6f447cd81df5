package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ladderharvest/internal/orchestrator"
	"ladderharvest/pkg/logger"
	"ladderharvest/pkg/ratelimit"
	"ladderharvest/pkg/retry"
	"ladderharvest/pkg/riot"
	"ladderharvest/pkg/storage"
)

var timeNow = time.Now

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the ladder and match workers",
	Long: `Start one match worker per configured region and one ladder worker per shard.

The harvester runs until interrupted (Ctrl+C or SIGTERM). An invalid API key
stops every worker and exits with status 1.`,
	Example: `  # Harvest every configured region into a local SQLite file
  ladderharvest run --dsn ./data/ladder.db

  # Harvest only Europe and Korea into Postgres
  ladderharvest run --regions europe,asia --dsn postgres://harvest@localhost/ladder`,
	Args: cobra.NoArgs,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := resolveAPIKey(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.WithFields(map[string]interface{}{
		"run_id":  uuid.NewString(),
		"version": version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiters, err := ratelimit.NewRegistryFromConfig(cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("failed to create rate limiters: %w", err)
	}
	defer limiters.Close()

	client := riot.NewClient(cfg.Riot, limiters, log,
		riot.WithMethodLimiter(ratelimit.NewMethodLimiter(cfg.RateLimit.MethodLimits)),
		riot.WithRetry(retry.FromConfig(cfg.Retry, log)),
	)

	store, err := storage.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		log.WithError(err).Error("Failed to open store")
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	orch, err := orchestrator.New(cfg, client, store, log)
	if err != nil {
		return err
	}

	log.InfoWithFields("Harvester starting", map[string]interface{}{
		"regions":      strings.Join(cfg.RegionNames(), ","),
		"rate_backend": cfg.RateLimit.Backend,
		"queue":        cfg.Riot.Queue,
	})

	if err := orch.Run(ctx); err != nil {
		log.WithError(err).Error("Harvester stopped on fatal error")
		return err
	}

	log.InfoWithFields("Harvester stopped", map[string]interface{}{
		"rate_hosts": strings.Join(limiters.Hosts(), ","),
	})
	return nil
}
