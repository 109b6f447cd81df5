package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"ladderharvest/pkg/auth"
	"ladderharvest/pkg/config"
	"ladderharvest/pkg/ui"
)

var (
	// Version information
	version   = "0.4.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	dsn           string
	regions       []string
	rateBackend   string
	checkpointDir string
	profile       string
	noColor       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ladderharvest",
	Short: "Harvest ranked ladders and match history from the Riot API",
	Long: `ladderharvest crawls the League of Legends ranked ladder of every configured
shard, records each player's rating when it changes, and follows the players
it finds into their match history.

One match worker runs per macro-region (americas, europe, asia, sea) and one
ladder worker per shard of that region. All workers sharing a routing host
share its rate limit.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColor(false)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./ladderharvest.yaml or ~/.config/ladderharvest/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "database DSN: postgres://..., a SQLite path, or memory")
	rootCmd.PersistentFlags().StringSliceVar(&regions, "regions", nil, "only run these macro-regions (comma separated)")
	rootCmd.PersistentFlags().StringVar(&rateBackend, "rate-backend", "", "rate limit backend (memory, redis)")
	rootCmd.PersistentFlags().StringVar(&checkpointDir, "checkpoint-dir", "", "directory for resumable ladder cursors")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", auth.DefaultProfile, "stored API key profile")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.SetVersionTemplate(`ladderharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads configuration from every source with the global flags applied last
func loadConfig() (*config.Config, error) {
	flags := map[string]interface{}{
		"log-level":      logLevel,
		"dsn":            dsn,
		"regions":        regions,
		"rate-backend":   rateBackend,
		"checkpoint-dir": checkpointDir,
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// resolveAPIKey fills the API key from the credential store when no other source set it
func resolveAPIKey(cfg *config.Config) error {
	if cfg.Riot.APIKey != "" {
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	cred, err := manager.Retrieve(profile)
	if err != nil {
		cred, err = manager.RetrieveDefault()
	}
	if err != nil {
		auth.ShowQuickKeyGuide(os.Stderr)
		return fmt.Errorf("no API key configured: %w", err)
	}

	if cred.Expired(timeNow()) {
		ui.PrintWarning("Stored development key has expired", cred.ExpiresAt.Format("2006-01-02 15:04"))
	}

	cfg.Riot.APIKey = cred.APIKey
	return nil
}
