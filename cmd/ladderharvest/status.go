package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ladderharvest/pkg/storage"
	"ladderharvest/pkg/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what has been harvested per region",
	Long: `Show, for every configured region, how many players, ratings and matches
are stored and when the newest stored match started.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	stats := make([]storage.RegionStats, 0, len(cfg.Regions))
	for _, region := range cfg.RegionNames() {
		s, err := store.RegionStats(ctx, region)
		if err != nil {
			return fmt.Errorf("failed to read stats for %s: %w", region, err)
		}
		stats = append(stats, s)
	}

	ui.PrintTable(
		[]string{"REGION", "PLAYERS", "FETCHED", "RATINGS", "MATCHES", "NEWEST MATCH"},
		statusRows(stats, timeNow()),
	)
	return nil
}

// statusRows formats region stats for display
func statusRows(stats []storage.RegionStats, now time.Time) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		newest := "never"
		if !s.LatestMatch.IsZero() {
			newest = humanize.RelTime(s.LatestMatch, now, "ago", "from now")
		}
		rows = append(rows, []string{
			s.Region,
			humanize.Comma(s.Players),
			humanize.Comma(s.PlayersFetched),
			humanize.Comma(s.Ratings),
			humanize.Comma(s.Matches),
			newest,
		})
	}
	return rows
}
