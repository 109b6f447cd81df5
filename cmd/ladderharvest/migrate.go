package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ladderharvest/pkg/storage"
	"ladderharvest/pkg/ui"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long: `Apply every pending schema migration to the configured database and
print the resulting schema version. 'run' migrates on startup as well.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Opening a SQL gateway applies pending migrations
	store, err := storage.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	defer store.Close()

	migrator, ok := store.(storage.Migrator)
	if !ok {
		ui.PrintWarning("Store has no schema", cfg.Database.DSN)
		return nil
	}

	v, err := migrator.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	ui.PrintSuccess(fmt.Sprintf("Schema is at version %d", v))
	return nil
}
